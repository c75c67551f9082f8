package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/gc"
)

// Default login throttling: five failed attempts back to back, then one per
// twelve seconds.
const (
	DefaultLoginAttemptsPerMinute = 5
	DefaultLoginBurst             = 5
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDirectoryDefaults(&cfg.Directory)
	applyAuthDefaults(&cfg.Auth)
	cfg.GC.ApplyDefaults()
	applyMetadataDefaults(&cfg.Metadata)
	applyContentDefaults(&cfg.Content)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyDirectoryDefaults(cfg *directory.Config) {
	if cfg.DefaultQuota == 0 {
		cfg.DefaultQuota = directory.DefaultQuota
	}
	if cfg.DownloadChunkSize == 0 {
		cfg.DownloadChunkSize = directory.DefaultDownloadChunkSize
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.LoginAttemptsPerMinute == 0 {
		cfg.LoginAttemptsPerMinute = DefaultLoginAttemptsPerMinute
	}
	if cfg.LoginBurst == 0 {
		cfg.LoginBurst = DefaultLoginBurst
	}
}

// applyMetadataDefaults sets metadata store defaults.
func applyMetadataDefaults(cfg *MetadataConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Mongo == nil {
		cfg.Mongo = make(map[string]any)
	}

	if cfg.Type == "badger" {
		if _, ok := cfg.Badger["db_path"]; !ok {
			cfg.Badger["db_path"] = filepath.Join(dataDir(), "metadata")
		}
	}
	if cfg.Type == "mongo" {
		if _, ok := cfg.Mongo["database"]; !ok {
			cfg.Mongo["database"] = "storagecloud"
		}
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Memory == nil {
		cfg.Memory = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	if cfg.Type == "filesystem" {
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = filepath.Join(dataDir(), "content")
		}
	}
	if cfg.Type == "s3" {
		if _, ok := cfg.S3["region"]; !ok {
			cfg.S3["region"] = "us-east-1"
		}
	}
}

// dataDir is the default root for on-disk stores.
func dataDir() string {
	return filepath.Join(".", "storagecloud-data")
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		GC: gc.Config{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
