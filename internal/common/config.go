package common

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment" validate:"omitempty,oneof=development production"`
	Storage     StorageConfig     `toml:"storage"`
	Definitions DefinitionsConfig `toml:"definitions"`
	Logging     LoggingConfig     `toml:"logging"`
	Run         RunConfig         `toml:"run"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// DefinitionsConfig locates the declarative job, connection and variable files
type DefinitionsConfig struct {
	JobsDir         string `toml:"jobs_dir" validate:"required"`
	ConnectionsFile string `toml:"connections_file" validate:"required"`
	VariablesFile   string `toml:"variables_file"`
	EnvFile         string `toml:"env_file"` // Optional .env loaded before ${env:} resolution
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Output     []string `toml:"output"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

// RunConfig tunes job execution
type RunConfig struct {
	Workers          int    `toml:"workers" validate:"gte=0"`           // Concurrent jobs per execution level (0 = level size)
	RowLimit         int    `toml:"row_limit" validate:"gte=0"`         // Default LIMIT applied to queries (0 = none)
	ProgressInterval string `toml:"progress_interval"`                  // e.g. "2s" - min delay between validation progress emissions
	HistoryLimit     int    `toml:"history_limit" validate:"gte=0"`     // Default audit query page size
}

// DefaultConfig returns the built-in configuration defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/ordino",
			},
		},
		Definitions: DefinitionsConfig{
			JobsDir:         "./jobs",
			ConnectionsFile: "./connections.toml",
			VariablesFile:   "./variables.toml",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Run: RunConfig{
			Workers:          4,
			ProgressInterval: "2s",
			HistoryLimit:     100,
		},
	}
}

// LoadConfig loads configuration from defaults then the given TOML files in
// order, later files overriding earlier ones. Missing optional files are
// skipped; a named file that exists but fails to parse is an error.
func LoadConfig(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(content, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration using go-playground/validator tags plus
// the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.ProgressInterval(); err != nil {
		return err
	}
	return nil
}

// ProgressInterval parses the configured progress emission interval
func (c *Config) ProgressInterval() (time.Duration, error) {
	if c.Run.ProgressInterval == "" {
		return 2 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Run.ProgressInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid run.progress_interval %q: %w", c.Run.ProgressInterval, err)
	}
	return d, nil
}
