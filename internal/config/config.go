// ABOUTME: healthetl configuration: database location, device offset, batching and duplicate policy.
// ABOUTME: Read from YAML under XDG_CONFIG_HOME, with .env and HEALTH_DB_PATH overrides.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/harperreed/healthetl/internal/models"
	"github.com/harperreed/healthetl/internal/storage"
)

// EnvDBPath overrides the configured database path.
const EnvDBPath = "HEALTH_DB_PATH"

// Defaults applied when a field is unset.
const (
	DefaultUTCOffsetHours    = -3
	DefaultBatchSize         = 100
	DefaultDuplicateStrategy = "update"
	DefaultLogLevel          = "info"
)

// Config stores healthetl configuration.
type Config struct {
	// DBPath is the SQLite file. Supports ~ expansion.
	DBPath string `yaml:"db_path,omitempty"`

	// DataSource tags imported rows. Defaults to "zepp".
	DataSource string `yaml:"data_source,omitempty"`

	// UTCOffsetHours is the device's local offset used to shift UTC timestamps.
	UTCOffsetHours *int `yaml:"utc_offset_hours,omitempty"`

	BatchSize         int    `yaml:"batch_size,omitempty"`
	DuplicateStrategy string `yaml:"duplicate_strategy,omitempty"`
	LogLevel          string `yaml:"log_level,omitempty"`

	path string
}

// GetDBPath returns the database path with ~ expanded. HEALTH_DB_PATH wins
// over the file, and the XDG data directory is the fallback.
func (c *Config) GetDBPath() string {
	if env := os.Getenv(EnvDBPath); env != "" {
		return ExpandPath(env)
	}
	if c.DBPath != "" {
		return ExpandPath(c.DBPath)
	}
	return storage.DefaultDBPath()
}

// GetDataSource returns the configured source tag.
func (c *Config) GetDataSource() string {
	if c.DataSource == "" {
		return models.DefaultDataSource
	}
	return c.DataSource
}

// GetUTCOffsetHours returns the device offset in hours.
func (c *Config) GetUTCOffsetHours() int {
	if c.UTCOffsetHours == nil {
		return DefaultUTCOffsetHours
	}
	return *c.UTCOffsetHours
}

// GetBatchSize returns the write batch size.
func (c *Config) GetBatchSize() int {
	if c.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return c.BatchSize
}

// GetDuplicateStrategy returns the bulk duplicate policy name.
func (c *Config) GetDuplicateStrategy() string {
	if c.DuplicateStrategy == "" {
		return DefaultDuplicateStrategy
	}
	return c.DuplicateStrategy
}

// GetLogLevel returns the log level name.
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return DefaultLogLevel
	}
	return c.LogLevel
}

// Path returns the file this config was loaded from or will be saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return GetConfigPath()
	}
	return c.path
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// GetConfigPath returns the default config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "healthetl", "config.yaml")
}

// LoadEnv reads a .env file from the working directory when one exists.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Load reads config from the default path.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads config from path. A missing file yields defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{path: ExpandPath(path)}
	data, err := os.ReadFile(cfg.path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", cfg.path, err)
	}
	return cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := c.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
