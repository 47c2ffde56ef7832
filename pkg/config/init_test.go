package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestInitConfig_WritesValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := InitConfig(configPath, false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read generated config: %v", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(content, &parsed); err != nil {
		t.Fatalf("Generated config is not valid YAML: %v", err)
	}

	for _, section := range []string{"logging", "server", "content", "metadata", "transfer", "gc"} {
		if _, ok := parsed[section]; !ok {
			t.Errorf("Generated config missing section %q", section)
		}
	}
}

func TestInitConfig_GeneratedFileLoads(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := InitConfig(configPath, false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Generated config failed to load: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected content type 'filesystem', got %q", cfg.Content.Type)
	}
}

func TestInitConfig_RefusesOverwrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("logging:\n  level: WARN\n"), 0644); err != nil {
		t.Fatalf("Failed to write existing config: %v", err)
	}

	if err := InitConfig(configPath, false); err == nil {
		t.Fatal("Expected error when config file already exists")
	}

	if err := InitConfig(configPath, true); err != nil {
		t.Fatalf("Expected force overwrite to succeed, got: %v", err)
	}
}

func TestInitConfig_CreatesParentDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dir", "config.yaml")

	if err := InitConfig(configPath, false); err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}

	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("Expected config file to exist: %v", err)
	}
}

func TestGenerateYAMLWithComments(t *testing.T) {
	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		t.Fatalf("generateYAMLWithComments failed: %v", err)
	}

	if !strings.Contains(out, "#") {
		t.Error("Expected generated YAML to contain comments")
	}
	if !strings.Contains(out, "WSCLOUD_") {
		t.Error("Expected generated YAML to mention env var overrides")
	}
	if !strings.Contains(out, "INFO") {
		t.Error("Expected generated YAML to contain the default log level")
	}
	if !strings.Contains(out, "badger") {
		t.Error("Expected generated YAML to contain the metadata store type")
	}
}
