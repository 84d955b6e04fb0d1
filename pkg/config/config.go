// Package config provides configuration management for EmbedDB. It
// supports JSON-based configuration files with sensible defaults for
// local-first use.
package config

import (
	"encoding/json"
	"os"

	"github.com/sarveshkapre/embeddb/pkg/embedding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/logging"
)

// Config holds all configuration for an EmbedDB engine.
type Config struct {
	// DataDir is the directory where all data files are stored.
	// Required.
	DataDir string `json:"data_dir"`

	// Embedder computes vectors for embedding jobs. When nil, Open
	// installs a deterministic hashing embedder of HashEmbedderDim
	// dimensions. Not serializable; hosts loading config from a file
	// set this programmatically afterwards.
	Embedder embedding.Embedder `json:"-"`

	// Jobs configures embedding job retry behavior.
	Jobs JobsConfig `json:"jobs"`

	// WAL configures write-ahead log maintenance.
	WAL WALConfig `json:"wal"`

	// HashEmbedderDim is the vector dimension of the default hashing
	// embedder, used only when Embedder is nil.
	// Default: 128
	HashEmbedderDim int `json:"hash_embedder_dim"`

	// LogLevel is the minimum severity the engine logs at.
	// Default: "info"
	LogLevel string `json:"log_level"`
}

// JobsConfig holds embedding-job retry configuration.
type JobsConfig struct {
	// MaxAttempts is the retry cap; a job that fails this many times
	// transitions to Failed.
	// Default: 5
	MaxAttempts int `json:"max_attempts"`

	// RetryBaseMS is the base backoff delay in milliseconds; attempt
	// n schedules the next try base*2^(n-1) ms out.
	// Default: 500
	RetryBaseMS int64 `json:"retry_base_ms"`

	// RetryMaxMS caps the exponential backoff.
	// Default: 60000
	RetryMaxMS int64 `json:"retry_max_ms"`
}

// WALConfig holds write-ahead log configuration.
type WALConfig struct {
	// AutoCheckpointBytes triggers a checkpoint before any append
	// once wal.log reaches this size. 0 disables the preflight.
	// Default: 0
	AutoCheckpointBytes int64 `json:"auto_checkpoint_bytes"`
}

// Default returns a Config with every field at its default. DataDir
// is left empty and must be filled by the caller.
func Default() Config {
	return Config{
		Jobs: JobsConfig{
			MaxAttempts: 5,
			RetryBaseMS: 500,
			RetryMaxMS:  60_000,
		},
		HashEmbedderDim: embedding.DefaultDimension,
		LogLevel:        "info",
	}
}

// WithDataDir returns a default Config rooted at dir.
func WithDataDir(dir string) Config {
	cfg := Default()
	cfg.DataDir = dir
	return cfg
}

// Validate fills zero-valued fields with defaults and rejects values
// that are out of range.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.InvalidArgument("config: data_dir is required")
	}
	if c.Jobs.MaxAttempts == 0 {
		c.Jobs.MaxAttempts = 5
	}
	if c.Jobs.MaxAttempts < 0 {
		return errors.InvalidArgument("config: max_attempts must be positive, got %d", c.Jobs.MaxAttempts)
	}
	if c.Jobs.RetryBaseMS == 0 {
		c.Jobs.RetryBaseMS = 500
	}
	if c.Jobs.RetryBaseMS < 0 {
		return errors.InvalidArgument("config: retry_base_ms must be positive, got %d", c.Jobs.RetryBaseMS)
	}
	if c.Jobs.RetryMaxMS == 0 {
		c.Jobs.RetryMaxMS = 60_000
	}
	if c.Jobs.RetryMaxMS < c.Jobs.RetryBaseMS {
		return errors.InvalidArgument("config: retry_max_ms %d below retry_base_ms %d", c.Jobs.RetryMaxMS, c.Jobs.RetryBaseMS)
	}
	if c.WAL.AutoCheckpointBytes < 0 {
		return errors.InvalidArgument("config: auto_checkpoint_bytes must be non-negative, got %d", c.WAL.AutoCheckpointBytes)
	}
	if c.HashEmbedderDim == 0 {
		c.HashEmbedderDim = embedding.DefaultDimension
	}
	if c.HashEmbedderDim < 0 {
		return errors.InvalidArgument("config: hash_embedder_dim must be positive, got %d", c.HashEmbedderDim)
	}
	return nil
}

// Level returns the parsed log level.
func (c *Config) Level() logging.Level {
	return logging.ParseLevel(c.LogLevel)
}

// LoadFromFile reads a JSON config from path and validates it.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.NewIOError("read", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.InvalidArgument("config: parse %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SaveToFile writes the config to path as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.InvalidArgument("config: marshal: %v", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.NewIOError("write", path, err)
	}
	return nil
}
