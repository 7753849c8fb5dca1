package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_Success(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	configPath, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}

	contentStr := string(content)
	expectedSections := []string{
		"# Fragments Configuration File",
		"logging:",
		"server:",
		"rate_limit:",
		"content:",
		"metadata:",
	}

	for _, section := range expectedSections {
		if !strings.Contains(contentStr, section) {
			t.Errorf("Config file missing section: %s", section)
		}
	}
}

func TestInitConfig_AlreadyExists(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := InitConfig(false); err != nil {
		t.Fatalf("First InitConfig failed: %v", err)
	}

	_, err := InitConfig(false)
	if err == nil {
		t.Fatal("Expected error when config already exists, got nil")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("Expected 'already exists' error, got: %v", err)
	}
}

func TestInitConfigToPath_ForceOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte("stale"), 0644); err != nil {
		t.Fatalf("Failed to write stale file: %v", err)
	}

	if _, err := InitConfigToPath(path, true); err != nil {
		t.Fatalf("InitConfigToPath with force failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	if strings.Contains(string(content), "stale") {
		t.Error("Expected stale content to be overwritten")
	}
}

func TestGenerateConfigYAML_ValidYAML(t *testing.T) {
	data, err := GenerateConfigYAML(GetDefaultConfig())
	if err != nil {
		t.Fatalf("GenerateConfigYAML failed: %v", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Generated YAML does not parse: %v", err)
	}

	for _, key := range []string{"logging", "server", "content", "metadata"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Generated YAML missing top-level key %q", key)
		}
	}
}

func TestGeneratedConfigIsLoadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := InitConfigToPath(path, false); err != nil {
		t.Fatalf("InitConfigToPath failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}

	want := GetDefaultConfig()
	if cfg.Logging != want.Logging {
		t.Errorf("Expected logging %+v, got %+v", want.Logging, cfg.Logging)
	}
	if cfg.Server != want.Server {
		t.Errorf("Expected server %+v, got %+v", want.Server, cfg.Server)
	}
	if cfg.GC != want.GC {
		t.Errorf("Expected gc %+v, got %+v", want.GC, cfg.GC)
	}
	if cfg.Content.Type != want.Content.Type || cfg.Metadata.Type != want.Metadata.Type {
		t.Errorf("Expected store types %s/%s, got %s/%s",
			want.Content.Type, want.Metadata.Type, cfg.Content.Type, cfg.Metadata.Type)
	}
	if cfg.Content.Filesystem["path"] != DefaultContentPath {
		t.Errorf("Expected content path %q, got %v", DefaultContentPath, cfg.Content.Filesystem["path"])
	}
}
