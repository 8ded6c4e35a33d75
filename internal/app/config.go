package app

import (
	"errors"
	"fmt"
)

// Defaults applied by the CLI.
const (
	DefaultWorkers   = 4
	DefaultLogFormat = "text"
	DefaultLogLevel  = "info"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string // .hcl file or directory

	// StagingRoot and Output override the project file when set.
	StagingRoot string
	Output      string

	Workers   int
	CacheSize int // template cache entries, 0 for the default

	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" {
		return nil, errors.New("ConfigPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.CacheSize < 0 {
		return nil, fmt.Errorf("cache size must not be negative, got %d", cfg.CacheSize)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	return &cfg, nil
}
