package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/syncagent/internal/flagx"
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-e string   upload endpoint URL
//	-d string   SQLite database path
//	-r string   root directory holding the Dentread tree
//	-l string   log level (debug, info, warn, error)
//	-b string   upload backend (http, s3)
//
// Other arguments are filtered out with flagx.FilterArgs first, so the -c
// flag handled by parseJson does not trip the parser.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-e", "-d", "-r", "-l", "-b"})

	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointURL, "e", config.EndpointURL, "upload endpoint URL")
	fs.StringVar(&config.DBPath, "d", config.DBPath, "SQLite database path")
	fs.StringVar(&config.RootDir, "r", config.RootDir, "root directory")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.UploadBackend, "b", config.UploadBackend, "upload backend (http or s3)")

	return fs.Parse(args)
}
