package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected valid config, got error: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:    "invalid log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "VERBOSE" },
			wantErr: "Level",
		},
		{
			name:    "invalid log format",
			mutate:  func(cfg *Config) { cfg.Logging.Format = "xml" },
			wantErr: "Format",
		},
		{
			name:    "invalid content type",
			mutate:  func(cfg *Config) { cfg.Content.Type = "tape" },
			wantErr: "Type",
		},
		{
			name:    "invalid metadata type",
			mutate:  func(cfg *Config) { cfg.Metadata.Type = "postgres" },
			wantErr: "Type",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(cfg *Config) { cfg.Server.Metrics.Port = 70000 },
			wantErr: "Port",
		},
		{
			name: "rate limit enabled without rate",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit = RateLimitConfig{Enabled: true, Burst: 1}
			},
			wantErr: "requests_per_second",
		},
		{
			name: "rate limit enabled without burst",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit = RateLimitConfig{Enabled: true, RequestsPerSecond: 1}
			},
			wantErr: "burst",
		},
		{
			name:    "filesystem without path",
			mutate:  func(cfg *Config) { cfg.Content.Filesystem = map[string]any{} },
			wantErr: "path is required",
		},
		{
			name: "s3 without bucket",
			mutate: func(cfg *Config) {
				cfg.Content.Type = "s3"
				cfg.Content.S3 = map[string]any{"region": "us-east-1"}
			},
			wantErr: "bucket is required",
		},
		{
			name: "badger without path",
			mutate: func(cfg *Config) {
				cfg.Metadata.Type = "badger"
				cfg.Metadata.Badger = map[string]any{}
			},
			wantErr: "db_path is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_BadgerInMemoryNeedsNoPath(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metadata.Type = "badger"
	cfg.Metadata.Badger = map[string]any{"in_memory": true}

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected in-memory badger to be valid, got: %v", err)
	}
}

func TestValidate_LowercaseLevelAccepted(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "debug"

	if err := Validate(cfg); err != nil {
		t.Errorf("Expected lowercase level to be accepted, got: %v", err)
	}
}
