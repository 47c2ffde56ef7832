package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/farid-asgarli/ws-cloud/pkg/gc"
	"github.com/farid-asgarli/ws-cloud/pkg/transfer"
)

// Config represents the complete WS Cloud configuration.
//
// This structure captures all configurable aspects of the server:
//   - Logging configuration
//   - Server-wide settings (shutdown, staging area)
//   - Content store selection and configuration (store-specific)
//   - Metadata store selection and configuration (store-specific)
//   - Transfer session settings and the stale-session reaper
//   - Orphan blob collection
//
// Configuration sources (in order of precedence):
//  1. Environment variables (WSCLOUD_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type and factory
// function. The Config struct contains type-specific sections (e.g.
// content.filesystem, content.s3) and only the section matching the selected
// type is used.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains server-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Content specifies the content store type and type-specific configuration
	Content ContentConfig `mapstructure:"content"`

	// Metadata specifies the metadata store type and type-specific configuration
	Metadata MetadataConfig `mapstructure:"metadata"`

	// Transfer contains chunked transfer session settings
	Transfer TransferConfig `mapstructure:"transfer"`

	// GC contains orphan blob collection settings
	GC GCConfig `mapstructure:"gc"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains server-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// StagingPath is the local directory holding in-flight upload sessions.
	// Staging is always local regardless of the durable content store type.
	StagingPath string `mapstructure:"staging_path" validate:"required"`
}

// ContentConfig specifies durable content store configuration.
//
// The Type field determines which store implementation is used. Only the
// corresponding type-specific configuration section is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// MetadataConfig specifies metadata store configuration.
type MetadataConfig struct {
	// Type specifies which metadata store implementation to use
	// Valid values: badger
	Type string `mapstructure:"type" validate:"required,oneof=badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// TransferConfig contains chunked transfer session settings.
type TransferConfig struct {
	// ChunkSize is the default chunk size for sessions that don't request one
	ChunkSize int64 `mapstructure:"chunk_size" validate:"required,gt=0"`

	// IdleTimeout is the inactivity threshold after which sessions expire
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0"`

	// Reaper controls the background sweep of stale sessions
	Reaper ReaperConfig `mapstructure:"reaper"`
}

// ReaperConfig controls the stale session reaper.
type ReaperConfig struct {
	// Enabled controls whether the reaper runs
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to sweep for stale sessions
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`
}

// GCConfig controls orphan blob collection.
type GCConfig struct {
	// Enabled controls whether collection runs
	Enabled bool `mapstructure:"enabled"`

	// Interval is how often to run collection
	Interval time.Duration `mapstructure:"interval" validate:"required,gt=0"`

	// BatchSize is how many orphaned blobs to delete per batch
	BatchSize int `mapstructure:"batch_size" validate:"required,gt=0"`

	// DryRun logs what would be deleted without deleting
	DryRun bool `mapstructure:"dry_run"`
}

// ReaperConfig converts the transfer section into the reaper's own config.
func (c *TransferConfig) ReaperConfig() transfer.ReaperConfig {
	return transfer.ReaperConfig{
		Enabled:     c.Reaper.Enabled,
		Interval:    c.Reaper.Interval,
		IdleTimeout: c.IdleTimeout,
	}
}

// CollectorConfig converts the gc section into the collector's own config.
func (c *GCConfig) CollectorConfig() gc.Config {
	return gc.Config{
		Enabled:   c.Enabled,
		Interval:  c.Interval,
		BatchSize: c.BatchSize,
		DryRun:    c.DryRun,
	}
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (WSCLOUD_*)
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

// setupViper configures viper with environment variables and config file
// settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the WSCLOUD_ prefix and underscores.
	// Example: WSCLOUD_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("WSCLOUD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists. A missing file
// is acceptable; defaults apply.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "wscloud")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "wscloud")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
