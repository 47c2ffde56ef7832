package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/farid-asgarli/ws-cloud/pkg/transfer"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

content:
  type: "filesystem"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Transfer.ChunkSize != transfer.DefaultChunkSize {
		t.Errorf("Expected default chunk size %d, got %d", transfer.DefaultChunkSize, cfg.Transfer.ChunkSize)
	}
	if !cfg.Transfer.Reaper.Enabled {
		t.Error("Expected reaper enabled by default")
	}
	if !cfg.GC.Enabled {
		t.Error("Expected gc enabled by default")
	}
	if cfg.GC.BatchSize != 1000 {
		t.Errorf("Expected default gc batch size 1000, got %d", cfg.GC.BatchSize)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error with missing config file, got: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata type 'badger', got %q", cfg.Metadata.Type)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error with invalid YAML, got nil")
	}
}

func TestLoad_TOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[logging]
level = "WARN"
format = "json"

[content]
type = "filesystem"

[transfer]
chunk_size = 524288
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "WARN" {
		t.Errorf("Expected level 'WARN', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Transfer.ChunkSize != 524288 {
		t.Errorf("Expected chunk size 524288, got %d", cfg.Transfer.ChunkSize)
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("WSCLOUD_LOGGING_LEVEL", "ERROR")
	t.Setenv("WSCLOUD_METADATA_TYPE", "badger")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

content:
  type: "filesystem"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
}

func TestGetDefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Metadata.Type != "badger" {
		t.Errorf("Expected default metadata type 'badger', got %q", cfg.Metadata.Type)
	}
	if cfg.Content.Filesystem["path"] == "" {
		t.Error("Expected default filesystem content path")
	}
	if cfg.Metadata.Badger["db_path"] == "" {
		t.Error("Expected default badger db_path")
	}
	if cfg.Transfer.IdleTimeout != transfer.DefaultIdleTimeout {
		t.Errorf("Expected default idle timeout %v, got %v", transfer.DefaultIdleTimeout, cfg.Transfer.IdleTimeout)
	}
	if cfg.GC.Interval != 24*time.Hour {
		t.Errorf("Expected default gc interval 24h, got %v", cfg.GC.Interval)
	}
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()

	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute path, got %q", path)
	}
	if filepath.Base(path) != "config.yaml" {
		t.Errorf("Expected filename 'config.yaml', got %q", filepath.Base(path))
	}
}

func TestReaperConfigConversion(t *testing.T) {
	cfg := GetDefaultConfig()

	rc := cfg.Transfer.ReaperConfig()
	if !rc.Enabled {
		t.Error("Expected converted reaper config enabled")
	}
	if rc.IdleTimeout != cfg.Transfer.IdleTimeout {
		t.Errorf("Expected idle timeout %v, got %v", cfg.Transfer.IdleTimeout, rc.IdleTimeout)
	}

	gcCfg := cfg.GC.CollectorConfig()
	if !gcCfg.Enabled {
		t.Error("Expected converted gc config enabled")
	}
	if gcCfg.BatchSize != cfg.GC.BatchSize {
		t.Errorf("Expected batch size %d, got %d", cfg.GC.BatchSize, gcCfg.BatchSize)
	}
}
