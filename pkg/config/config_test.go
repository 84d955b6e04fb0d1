package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/logging"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 5, cfg.Jobs.MaxAttempts)
	assert.Equal(t, int64(500), cfg.Jobs.RetryBaseMS)
	assert.Equal(t, int64(60_000), cfg.Jobs.RetryMaxMS)
	assert.Equal(t, int64(0), cfg.WAL.AutoCheckpointBytes)
	assert.Equal(t, 128, cfg.HashEmbedderDim)
	assert.Equal(t, logging.LevelInfo, cfg.Level())
}

func TestValidateRequiresDataDir(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	cfg.DataDir = "/tmp/db"
	assert.NoError(t, cfg.Validate())
}

func TestValidateFillsZeroValues(t *testing.T) {
	cfg := Config{DataDir: "/tmp/db"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.Jobs.MaxAttempts)
	assert.Equal(t, int64(500), cfg.Jobs.RetryBaseMS)
	assert.Equal(t, int64(60_000), cfg.Jobs.RetryMaxMS)
	assert.Equal(t, 128, cfg.HashEmbedderDim)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := WithDataDir("/tmp/db")
	cfg.Jobs.MaxAttempts = -1
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidArgument)

	cfg = WithDataDir("/tmp/db")
	cfg.Jobs.RetryBaseMS = 1000
	cfg.Jobs.RetryMaxMS = 100
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidArgument)

	cfg = WithDataDir("/tmp/db")
	cfg.WAL.AutoCheckpointBytes = -5
	assert.ErrorIs(t, cfg.Validate(), errors.ErrInvalidArgument)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := WithDataDir("/data/embeddb")
	cfg.Jobs.MaxAttempts = 3
	cfg.Jobs.RetryBaseMS = 250
	cfg.WAL.AutoCheckpointBytes = 1 << 20
	cfg.LogLevel = "warn"
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/embeddb", loaded.DataDir)
	assert.Equal(t, 3, loaded.Jobs.MaxAttempts)
	assert.Equal(t, int64(250), loaded.Jobs.RetryBaseMS)
	assert.Equal(t, int64(1<<20), loaded.WAL.AutoCheckpointBytes)
	assert.Equal(t, logging.LevelWarn, loaded.Level())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadFromFile(path)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestLoadAppliesDefaultsToSparseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"data_dir": "/data/db"}`), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Jobs.MaxAttempts)
	assert.Equal(t, int64(60_000), cfg.Jobs.RetryMaxMS)
}
