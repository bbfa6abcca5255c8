// Package config handles configuration for the sync agent: defaults, an
// optional JSON file and command-line flags, applied in that order.
package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	BackendHTTP = "http"
	BackendS3   = "s3"
)

// Config holds runtime settings for the agent.
//
// Fields:
//   - RootDir: directory holding the Dentread tree; the agent's filesystem is rooted here.
//   - EndpointURL: ingestion endpoint that receives multipart uploads.
//   - DBPath: SQLite file for credentials, exclusions and sync history.
//   - AllowedExtensions: file extensions the staging step copies.
//   - StageSourceDir / StageDestDir: staging paths relative to RootDir. An
//     absolute StageSourceDir is read in place. An empty StageDestDir means
//     the logged-in user's workspace directory.
//   - HTTPTimeout: whole-request timeout for uploads.
//   - NotifyDelay: delay of the reminder sent after auto-sync is turned off.
//   - WatchDebounce: quiet period before a change burst triggers staging.
//   - UploadBackend: "http" (default) or "s3".
//   - S3*: settings for the S3 mirror backend.
type Config struct {
	RootDir           string
	EndpointURL       string
	DBPath            string
	AllowedExtensions []string
	StageSourceDir    string
	StageDestDir      string
	HTTPTimeout       time.Duration
	NotifyDelay       time.Duration
	WatchDebounce     time.Duration
	LogLevel          string
	UploadBackend     string
	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
	S3AccessKey       string
	S3SecretKey       string
}

// LoadDefaults populates c with the values used when nothing is configured.
func (c *Config) LoadDefaults() {
	c.RootDir = "."
	c.EndpointURL = "http://testapi.dentread.com/datasync/"
	c.DBPath = "agent.db"
	c.AllowedExtensions = []string{".stl", ".ply", ".obj", ".dcm", ".pdf", ".jpg", ".png"}
	c.StageSourceDir = ""
	c.StageDestDir = ""
	c.HTTPTimeout = 10 * time.Minute
	c.NotifyDelay = 5 * time.Minute
	c.WatchDebounce = 2 * time.Second
	c.LogLevel = "info"
	c.UploadBackend = BackendHTTP
	c.S3Region = "us-east-1"
}

// LoadConfig builds a Config from defaults, then the JSON file named by
// -c/-config in args (if any), then flags in args. Later sources win.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot be fixed up later.
func (c *Config) Validate() error {
	switch c.UploadBackend {
	case BackendHTTP:
		if c.EndpointURL == "" {
			return errors.New("endpoint url is empty")
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return errors.New("s3 backend needs s3_bucket")
		}
	default:
		return fmt.Errorf("unknown upload backend %q", c.UploadBackend)
	}
	if c.DBPath == "" {
		return errors.New("db path is empty")
	}
	return nil
}
