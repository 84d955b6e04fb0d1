package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/errors"
)

func TestAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, l.Holder())
	assert.FileExists(t, filepath.Join(dir, FileName))

	require.NoError(t, l.Release())
}

func TestReacquireAfterRelease(t *testing.T) {
	dir := t.TempDir()

	l1, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l1.Release())

	l2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestLockFileRecordsHolder(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "pid=")
}

func TestSecondAcquireFails(t *testing.T) {
	// flock is per-process on some platforms, so this only asserts
	// the in-process double-acquire path where the OS reports the
	// conflict; on Linux flock conflicts are per-open-file and two
	// opens in one process do conflict.
	dir := t.TempDir()

	l1, err := Acquire(dir)
	require.NoError(t, err)
	defer l1.Release()

	l2, err := Acquire(dir)
	if err == nil {
		// Platform treats same-process relock as a no-op; nothing
		// further to assert.
		_ = l2.Release()
		t.Skip("platform allows same-process relock")
	}
	assert.ErrorIs(t, err, errors.ErrAlreadyOpen)
}
