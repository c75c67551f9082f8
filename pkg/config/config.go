package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/storagecloud/pkg/directory"
	"github.com/marmos91/storagecloud/pkg/gc"
	"github.com/spf13/viper"
)

// Config represents the complete StorageCloud configuration.
//
// This structure captures all configurable aspects of the service including:
//   - Logging configuration
//   - Server-wide settings (shutdown, metrics endpoint)
//   - Account directory settings (quota, download chunk size)
//   - Login throttling
//   - Stale upload collection
//   - Metadata and content store selection (store-specific)
//
// Configuration sources (in order of precedence):
//  1. Environment variables (STORAGECLOUD_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct carries one map per store type (e.g. content.filesystem,
// content.s3) and only the map matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Directory configures the account directory
	Directory directory.Config `mapstructure:"directory" yaml:"directory"`

	// Auth configures login throttling
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// GC configures the stale upload collector
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Metadata specifies the metadata store type and type-specific configuration
	Metadata MetadataConfig `mapstructure:"metadata" yaml:"metadata"`

	// Content specifies the content store type and type-specific configuration
	Content ContentConfig `mapstructure:"content" yaml:"content"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for background workers
	// to stop when the process is asked to exit
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on metrics collection and the /metrics endpoint
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the HTTP port for the metrics endpoint
	Port int `mapstructure:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
}

// AuthConfig configures password login throttling.
//
// Failed password attempts are counted per username.
type AuthConfig struct {
	// DisableThrottling turns login throttling off
	DisableThrottling bool `mapstructure:"disable_throttling" yaml:"disable_throttling"`

	// LoginAttemptsPerMinute is the sustained rate of failed logins allowed per username
	LoginAttemptsPerMinute uint `mapstructure:"login_attempts_per_minute" yaml:"login_attempts_per_minute"`

	// LoginBurst is the number of failed logins allowed back to back
	LoginBurst uint `mapstructure:"login_burst" yaml:"login_burst"`
}

// MetadataConfig specifies the metadata store type and its configuration.
type MetadataConfig struct {
	// Type selects the backend
	// Valid values: memory, badger, mongo
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger mongo"`

	// Memory holds options for the in-memory store (currently none)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// Badger holds BadgerDB options (db_path, in_memory, block_cache_size_mb, index_cache_size_mb)
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// Mongo holds MongoDB options (uri, database, connect_timeout)
	Mongo map[string]any `mapstructure:"mongo" yaml:"mongo,omitempty"`
}

// ContentConfig specifies the content store type and its configuration.
type ContentConfig struct {
	// Type selects the backend
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem holds options for the local filesystem store (path, fd_cache_size)
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// Memory holds options for the in-memory store (currently none)
	Memory map[string]any `mapstructure:"memory" yaml:"memory,omitempty"`

	// S3 holds S3 options (bucket, region, endpoint, key_prefix, credentials, max_retries)
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (STORAGECLOUD_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: STORAGECLOUD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("STORAGECLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gc.enabled", true)

	// AutomaticEnv only resolves keys viper already knows about
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/storagecloud/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys lists the scalar settings that can be set from the environment
// without appearing in the config file.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"directory.default_quota",
	"directory.download_chunk_size",
	"auth.disable_throttling",
	"auth.login_attempts_per_minute",
	"auth.login_burst",
	"gc.enabled",
	"gc.interval",
	"gc.stale_after",
	"gc.dry_run",
	"metadata.type",
	"content.type",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		// An explicit path that does not exist is treated like a missing default
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "storagecloud")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "storagecloud")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
