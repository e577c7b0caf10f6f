package config

import (
	"errors"

	"github.com/dshills/treesync/internal/logging"
)

// Config is the complete treesync configuration.
type Config struct {
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// SyncConfig controls the commit pipeline.
type SyncConfig struct {
	// MaxTreeDepth is the depth above which a reparsed tree replaces the old
	// root wholesale instead of being diffed. Negative disables the limit.
	MaxTreeDepth int `toml:"max_tree_depth"`

	// Workers is the number of background diff slots shared by all documents.
	Workers int `toml:"workers"`

	// AutoCommit requests a commit after every buffer edit.
	AutoCommit bool `toml:"auto_commit"`

	// MaxRetries bounds how often a faulting background commit is requeued
	// before the document falls back to a full reparse.
	MaxRetries int `toml:"max_retries"`

	// ConsistencyCheck compares tree text with buffer text after each commit.
	ConsistencyCheck bool `toml:"consistency_check"`
}

// LoggingConfig controls the logger.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Sync: SyncConfig{
			MaxTreeDepth:     256,
			Workers:          1,
			AutoCommit:       true,
			MaxRetries:       8,
			ConsistencyCheck: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks every setting and joins all failures.
func (c Config) Validate() error {
	var errs []error
	if c.Sync.MaxTreeDepth == 0 {
		errs = append(errs, &ValidationError{
			Path:    "sync.max_tree_depth",
			Message: "must be positive, or negative to disable",
			Value:   c.Sync.MaxTreeDepth,
		})
	}
	if c.Sync.Workers < 1 {
		errs = append(errs, &ValidationError{
			Path:    "sync.workers",
			Message: "must be at least 1",
			Value:   c.Sync.Workers,
		})
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, &ValidationError{
			Path:    "sync.max_retries",
			Message: "must not be negative",
			Value:   c.Sync.MaxRetries,
		})
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, &ValidationError{
			Path:    "logging.level",
			Message: err.Error(),
			Value:   c.Logging.Level,
		})
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed logging level, falling back to info.
func (c Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}
