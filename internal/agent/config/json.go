package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/syncagent/internal/flagx"
	"github.com/dmitrijs2005/syncagent/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// "5m"-style strings or integer nanoseconds. Absent fields keep their
// current value.
type JsonConfig struct {
	RootDir           string          `json:"root_dir"`
	EndpointURL       string          `json:"endpoint_url"`
	DBPath            string          `json:"db_path"`
	AllowedExtensions []string        `json:"allowed_extensions"`
	StageSourceDir    string          `json:"stage_source_dir"`
	StageDestDir      string          `json:"stage_dest_dir"`
	HTTPTimeout       *timex.Duration `json:"http_timeout"`
	NotifyDelay       *timex.Duration `json:"notify_delay"`
	WatchDebounce     *timex.Duration `json:"watch_debounce"`
	LogLevel          string          `json:"log_level"`
	UploadBackend     string          `json:"upload_backend"`
	S3Bucket          string          `json:"s3_bucket"`
	S3Region          string          `json:"s3_region"`
	S3BaseEndpoint    string          `json:"s3_base_endpoint"`
	S3AccessKey       string          `json:"s3_access_key"`
	S3SecretKey       string          `json:"s3_secret_key"`
}

// parseJson overlays the file named by -c/-config onto config. Without the
// flag nothing is loaded.
func parseJson(config *Config, args []string) error {
	jsonConfigFile := flagx.ConfigPath(args)
	if jsonConfigFile == "" {
		return nil
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %q: %w", jsonConfigFile, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %q: %w", jsonConfigFile, err)
	}

	setString(&config.RootDir, c.RootDir)
	setString(&config.EndpointURL, c.EndpointURL)
	setString(&config.DBPath, c.DBPath)
	if c.AllowedExtensions != nil {
		config.AllowedExtensions = c.AllowedExtensions
	}
	setString(&config.StageSourceDir, c.StageSourceDir)
	setString(&config.StageDestDir, c.StageDestDir)
	if c.HTTPTimeout != nil {
		config.HTTPTimeout = c.HTTPTimeout.Duration
	}
	if c.NotifyDelay != nil {
		config.NotifyDelay = c.NotifyDelay.Duration
	}
	if c.WatchDebounce != nil {
		config.WatchDebounce = c.WatchDebounce.Duration
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.UploadBackend, c.UploadBackend)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
