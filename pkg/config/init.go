package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# Fragments Configuration File
#
# Every key can be overridden from the environment with the FRAGMENTS_ prefix,
# replacing dots with underscores (e.g. FRAGMENTS_LOGGING_LEVEL=DEBUG).
#
# content.type: filesystem | memory | s3
#   filesystem: {path, compress}
#   s3: {region, bucket, key_prefix, endpoint, access_key_id, secret_access_key, max_retries}
#
# metadata.type: memory | badger
#   memory: {max_records}
#   badger: {db_path, in_memory, block_cache_mb, index_cache_mb}
#
# gc removes payloads left without metadata by interrupted writes or deletes.
# 'fragments gc' runs it once. 'fragments serve' runs it every gc.interval
# when gc.enabled is set, and keeps server.metrics up for scraping.
#
# server.rate_limit throttles each owner within one process. It matters to
# programs that embed the fragment service and keep it running; each
# one-shot CLI command starts with a full bucket. With wait set, an owner
# over its limit waits for a token instead of being rejected.

`

// GenerateConfigYAML renders cfg as a commented YAML document.
func GenerateConfigYAML(cfg *Config) ([]byte, error) {
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

// InitConfig writes a default configuration file to the default location.
//
// Returns the path written. An existing file is left untouched unless force
// is set.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a default configuration file to path.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := GenerateConfigYAML(GetDefaultConfig())
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}
