package wal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/types"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	m, result, err := Open(dir)
	require.NoError(t, err)
	assert.Empty(t, result.Records)

	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 1}))
	require.NoError(t, m.Append(Record{
		Kind:    KindPutRow,
		Table:   "notes",
		RowID:   1,
		Payload: types.Payload{"title": types.StringValue("Hello")},
	}))
	require.NoError(t, m.Close())

	m2, result2, err := Open(dir)
	require.NoError(t, err)
	defer m2.Close()

	require.Len(t, result2.Records, 2)
	assert.Equal(t, KindSetNextRowID, result2.Records[0].Kind)
	assert.Equal(t, KindPutRow, result2.Records[1].Kind)
	assert.Equal(t, "notes", result2.Records[1].Table)
}

func TestReplayEmptyWAL(t *testing.T) {
	dir := t.TempDir()
	m, result, err := Open(dir)
	require.NoError(t, err)
	defer m.Close()
	assert.Empty(t, result.Records)
	assert.False(t, result.Truncated)
}

func TestReplayTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	m, _, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 5}))
	require.NoError(t, m.Close())

	path := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 99, 1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m2, result, err := Open(dir)
	require.NoError(t, err)
	defer m2.Close()
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(5), result.Records[0].NextRowID)
}

func TestReplayMidStreamCorruptionFails(t *testing.T) {
	dir := t.TempDir()
	m, _, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 1}))
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 2}))
	require.NoError(t, m.Close())

	path := filepath.Join(dir, logFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte inside the first frame's payload; plenty of bytes
	// follow it (the second frame), so this is mid-stream, not tail.
	data[6] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, _, err = Open(dir)
	require.Error(t, err)
}

func TestRewriteRotation(t *testing.T) {
	dir := t.TempDir()
	m, _, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 1}))
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 2}))

	sizeBefore := m.Size()
	require.NoError(t, m.Rewrite([]Record{{Kind: KindSetNextRowID, NextRowID: 101}}))
	assert.Less(t, m.Size(), sizeBefore)

	_, statErr := os.Stat(filepath.Join(dir, prevFileName))
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, m.Close())

	m2, result, err := Open(dir)
	require.NoError(t, err)
	defer m2.Close()
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(101), result.Records[0].NextRowID)
}

func TestOpenRecoversFromInterruptedRotation(t *testing.T) {
	dir := t.TempDir()
	m, _, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, m.Append(Record{Kind: KindSetNextRowID, NextRowID: 1}))
	require.NoError(t, m.Close())

	// Simulate a crash right after both renames completed but before
	// wal.prev was removed: copy wal.log's content into wal.prev too.
	logPath := filepath.Join(dir, logFileName)
	prevPath := filepath.Join(dir, prevFileName)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(prevPath, data, 0o644))

	m2, result, err := Open(dir)
	require.NoError(t, err)
	defer m2.Close()
	require.Len(t, result.Records, 1)

	_, statErr := os.Stat(prevPath)
	assert.True(t, os.IsNotExist(statErr))
}
