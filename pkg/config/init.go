package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InitConfig writes a commented sample configuration file with all defaults.
//
// An empty path uses the default location. Refuses to overwrite an existing
// file unless force is set.
func InitConfig(path string, force bool) error {
	if path == "" {
		path = GetDefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateYAMLWithComments renders the configuration as YAML with a section
// comment above each top-level block.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b strings.Builder
	b.WriteString("# WS Cloud configuration\n")
	b.WriteString("# Every value can be overridden with a WSCLOUD_* environment variable,\n")
	b.WriteString("# e.g. WSCLOUD_LOGGING_LEVEL=DEBUG.\n\n")

	sections := []struct {
		comment string
		key     string
		value   any
	}{
		{"Log output", "logging", map[string]any{
			"level":  cfg.Logging.Level,
			"format": cfg.Logging.Format,
			"output": cfg.Logging.Output,
		}},
		{"Server-wide settings", "server", map[string]any{
			"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
			"staging_path":     cfg.Server.StagingPath,
		}},
		{"Durable content store (type: filesystem or s3)", "content", map[string]any{
			"type":       cfg.Content.Type,
			"filesystem": cfg.Content.Filesystem,
			"s3":         cfg.Content.S3,
		}},
		{"Metadata store", "metadata", map[string]any{
			"type":   cfg.Metadata.Type,
			"badger": cfg.Metadata.Badger,
		}},
		{"Chunked transfer sessions", "transfer", map[string]any{
			"chunk_size":   cfg.Transfer.ChunkSize,
			"idle_timeout": cfg.Transfer.IdleTimeout.String(),
			"reaper": map[string]any{
				"enabled":  cfg.Transfer.Reaper.Enabled,
				"interval": cfg.Transfer.Reaper.Interval.String(),
			},
		}},
		{"Orphan blob collection", "gc", map[string]any{
			"enabled":    cfg.GC.Enabled,
			"interval":   cfg.GC.Interval.String(),
			"batch_size": cfg.GC.BatchSize,
			"dry_run":    cfg.GC.DryRun,
		}},
	}

	for _, s := range sections {
		b.WriteString("# " + s.comment + "\n")
		out, err := yaml.Marshal(map[string]any{s.key: s.value})
		if err != nil {
			return "", fmt.Errorf("failed to marshal %s section: %w", s.key, err)
		}
		b.Write(out)
		b.WriteString("\n")
	}

	return b.String(), nil
}
