package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# StorageCloud Configuration File
#
# Every value can be overridden with an environment variable built from the
# upper-cased key path, e.g. STORAGECLOUD_LOGGING_LEVEL=DEBUG or
# STORAGECLOUD_GC_STALE_AFTER=1h.
#
# metadata.type: memory | badger | mongo
#   badger: db_path, in_memory, block_cache_size_mb, index_cache_size_mb
#   mongo:  uri, database, connect_timeout
#
# content.type: filesystem | memory | s3
#   filesystem: path, fd_cache_size
#   s3: bucket, region, endpoint, key_prefix, access_key_id,
#       secret_access_key, max_retries

`

// InitConfig writes a default configuration file to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: Non-nil if the file exists and force is false
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := renderConfig(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// renderConfig encodes cfg as YAML preceded by the explanatory header.
func renderConfig(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return buf.Bytes(), nil
}
