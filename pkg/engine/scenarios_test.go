package engine

// End-to-end scenarios exercising durability, recovery, job retry,
// checkpointing, and search through full close/reopen cycles.

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarveshkapre/embeddb/pkg/embedding"
	"github.com/sarveshkapre/embeddb/pkg/search"
	"github.com/sarveshkapre/embeddb/pkg/types"
	"github.com/sarveshkapre/embeddb/tests/testutil"
)

// Insert, flush, reopen: the row and its pending job survive.
func TestScenarioInsertFlushReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	id, err := e.InsertRow("notes", testutil.Note("Hello", "World"))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
	require.NoError(t, e.Flush("notes"))
	require.NoError(t, e.Close())

	e2 := openEngine(t, cfg)
	row, err := e2.GetRow("notes", 1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", row["title"].Str)
	assert.Equal(t, "World", row["body"].Str)

	jobs, err := e2.ListEmbeddingJobs("notes")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(1), jobs[0].RowID)
	assert.Equal(t, types.JobPending, jobs[0].Status)
	assert.Equal(t, 0, jobs[0].Attempts)
}

// Update after flush, compact, reopen: the newest payload wins and
// the job is Pending with reset attempts.
func TestScenarioUpdateAfterFlushAndCompact(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	_, err = e.InsertRow("notes", testutil.Note("Hello", "World"))
	require.NoError(t, err)
	require.NoError(t, e.Flush("notes"))

	require.NoError(t, e.UpdateRow("notes", 1, testutil.Note("Hi", "World")))
	require.NoError(t, e.Flush("notes"))
	require.NoError(t, e.Compact("notes"))
	require.NoError(t, e.Close())

	e2 := openEngine(t, cfg)
	row, err := e2.GetRow("notes", 1)
	require.NoError(t, err)
	assert.Equal(t, "Hi", row["title"].Str)

	jobs, err := e2.ListEmbeddingJobs("notes")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobPending, jobs[0].Status)
	assert.Equal(t, 0, jobs[0].Attempts)
}

// Process pending after reopen: the job runs to Ready with a
// fixed-dimension non-zero vector.
func TestScenarioProcessPendingAfterReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	_, err = e.InsertRow("notes", testutil.Note("Hello", "World"))
	require.NoError(t, err)
	require.NoError(t, e.Close())

	e2 := openEngine(t, cfg)
	res, err := e2.ProcessPendingJobs(context.Background(), "notes", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	jobs, err := e2.ListEmbeddingJobs("notes")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobReady, jobs[0].Status)
	assert.Equal(t, cfg.HashEmbedderDim, jobs[0].VectorDim)
}

// Retry backoff: three scripted failures, then success; the retry
// instants double from the configured base.
func TestScenarioRetryBackoff(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.Jobs.RetryBaseMS = 250
	inner, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)
	flaky := &testutil.FlakyEmbedder{Inner: inner, FailuresBeforeSuccess: 3}
	cfg.Embedder = flaky

	e := openEngine(t, cfg)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	_, err = e.InsertRow("notes", testutil.Note("Hello", "World"))
	require.NoError(t, err)

	ctx := context.Background()
	clock := testutil.NewClock(0)

	// t=0s: attempt 1 fails, next retry at base.
	res, err := e.ProcessPendingJobs(ctx, "notes", 0, clock.NowMS())
	require.NoError(t, err)
	assert.Equal(t, JobBatchResult{Retried: 1}, res)
	jobs, _ := e.ListEmbeddingJobs("notes")
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, int64(250), jobs[0].NextRetryAtMs)

	// t=1s: attempt 2, backoff doubles.
	clock.Advance(1000)
	res, err = e.ProcessPendingJobs(ctx, "notes", 0, clock.NowMS())
	require.NoError(t, err)
	assert.Equal(t, JobBatchResult{Retried: 1}, res)
	jobs, _ = e.ListEmbeddingJobs("notes")
	assert.Equal(t, 2, jobs[0].Attempts)
	assert.Equal(t, int64(1000+500), jobs[0].NextRetryAtMs)

	// t=2s: attempt 3, doubles again.
	clock.Advance(1000)
	res, err = e.ProcessPendingJobs(ctx, "notes", 0, clock.NowMS())
	require.NoError(t, err)
	assert.Equal(t, JobBatchResult{Retried: 1}, res)
	jobs, _ = e.ListEmbeddingJobs("notes")
	assert.Equal(t, 3, jobs[0].Attempts)
	assert.Equal(t, int64(2000+1000), jobs[0].NextRetryAtMs)

	// t=3s: attempt 4 succeeds.
	clock.Advance(1000)
	res, err = e.ProcessPendingJobs(ctx, "notes", 0, clock.NowMS())
	require.NoError(t, err)
	assert.Equal(t, JobBatchResult{Processed: 1}, res)
	jobs, _ = e.ListEmbeddingJobs("notes")
	assert.Equal(t, types.JobReady, jobs[0].Status)
	assert.Equal(t, 4, jobs[0].Attempts)
	assert.Equal(t, 4, flaky.Calls())
}

// Checkpoint truncates the WAL and preserves the row-id allocator.
func TestScenarioCheckpointTruncatesWAL(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	for i := 0; i < 100; i++ {
		_, err := e.InsertRow("notes", testutil.Note("t", "b"))
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush("notes"))

	db, err := e.Stats()
	require.NoError(t, err)
	require.Equal(t, int64(101), db.NextRowID)
	walBefore := db.WALBytes

	require.NoError(t, e.Checkpoint())
	db, err = e.Stats()
	require.NoError(t, err)
	assert.Less(t, db.WALBytes, walBefore)
	require.NoError(t, e.Close())

	e2 := openEngine(t, cfg)
	id, err := e2.InsertRow("notes", testutil.Note("after", "reopen"))
	require.NoError(t, err)
	assert.Equal(t, int64(101), id)

	// Every pre-checkpoint row is still visible.
	for rowID := int64(1); rowID <= 100; rowID++ {
		_, err := e2.GetRow("notes", rowID)
		require.NoError(t, err)
	}
}

// Crashed checkpoint rotation: wal.prev still present alongside an
// intact wal.log. Reopen keeps all data and clears wal.prev.
func TestScenarioCrashedRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	for i := 0; i < 10; i++ {
		_, err := e.InsertRow("notes", testutil.Note("t", "b"))
		require.NoError(t, err)
	}
	require.NoError(t, e.Checkpoint())
	require.NoError(t, e.Close())

	// Simulate a crash between the wal.log.new -> wal.log rename and
	// the removal of wal.prev: both files exist, wal.log intact.
	logPath := filepath.Join(dir, "wal.log")
	prevPath := filepath.Join(dir, "wal.prev")
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(prevPath, data, 0o644))

	e2 := openEngine(t, cfg)
	for rowID := int64(1); rowID <= 10; rowID++ {
		_, err := e2.GetRow("notes", rowID)
		require.NoError(t, err)
	}
	_, statErr := os.Stat(prevPath)
	assert.True(t, os.IsNotExist(statErr))
}

// Crashed rotation with a torn new wal.log: recovery falls back to
// wal.prev and the pre-checkpoint state.
func TestScenarioCrashedRotationTornNewLog(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	for i := 0; i < 5; i++ {
		_, err := e.InsertRow("notes", testutil.Note("t", "b"))
		require.NoError(t, err)
	}
	require.NoError(t, e.Flush("notes"))
	require.NoError(t, e.Close())

	// The old complete WAL becomes wal.prev; wal.log is replaced with
	// a torn fragment as if the new image never finished writing.
	logPath := filepath.Join(dir, "wal.log")
	prevPath := filepath.Join(dir, "wal.prev")
	require.NoError(t, os.Rename(logPath, prevPath))
	require.NoError(t, os.WriteFile(logPath, []byte{0, 0, 1, 200, 7, 7}, 0o644))

	e2 := openEngine(t, cfg)
	for rowID := int64(1); rowID <= 5; rowID++ {
		_, err := e2.GetRow("notes", rowID)
		require.NoError(t, err)
	}
}

// Filtered kNN with NaN-safe ordering: a zero vector (NaN cosine
// distance) never outranks finite candidates and only appears when k
// exceeds the finite candidate count, strictly last.
func TestScenarioFilteredKNNWithNaN(t *testing.T) {
	cfg := testConfig(t.TempDir())
	vectors := map[string][]float32{
		"a":    {1, 0},
		"b":    {0.9, 0.1},
		"c":    {0, 1},
		"zero": {0, 0},
	}
	cfg.Embedder = testutil.VectorTable(vectors, 2)

	e := openEngine(t, cfg)
	schema := types.Schema{Columns: []types.Column{
		{Name: "name", Type: types.ColumnString},
		{Name: "age", Type: types.ColumnInt},
	}}
	spec := &types.EmbeddingSpec{SourceColumns: []string{"name"}, DefaultMetric: types.MetricCosine}
	require.NoError(t, e.CreateTable("people", schema, spec))

	for _, name := range []string{"a", "b", "c", "zero"} {
		_, err := e.InsertRow("people", types.Payload{
			"name": types.StringValue(name), "age": types.IntValue(30)})
		require.NoError(t, err)
	}
	ctx := context.Background()
	_, err := e.ProcessPendingJobs(ctx, "people", 0, 0)
	require.NoError(t, err)

	adults := search.Filter{{Column: "age", Op: search.OpGte, Value: types.IntValue(21)}}
	results, err := e.Search(ctx, SearchRequest{
		Table:  "people",
		Vector: []float32{1, 0},
		K:      3,
		Filter: adults,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].Payload["name"].Str)
	assert.Equal(t, "b", results[1].Payload["name"].Str)
	assert.Equal(t, "c", results[2].Payload["name"].Str)
	for i := 1; i < 3; i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}

	// k covering everything: the NaN candidate is strictly last.
	results, err = e.Search(ctx, SearchRequest{
		Table:  "people",
		Vector: []float32{1, 0},
		K:      4,
		Filter: adults,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "zero", results[3].Payload["name"].Str)
}

// Snapshot export/restore round-trip: the restored directory opens as
// an equivalent database.
func TestScenarioSnapshotRoundTrip(t *testing.T) {
	base := t.TempDir()
	srcDir := filepath.Join(base, "src")
	exportDir := filepath.Join(base, "export")
	restoreDir := filepath.Join(base, "restore")

	cfg := testConfig(srcDir)
	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	id1, err := e.InsertRow("notes", testutil.Note("Hello", "World"))
	require.NoError(t, err)
	id2, err := e.InsertRow("notes", testutil.Note("Bye", "Moon"))
	require.NoError(t, err)
	_, err = e.ProcessPendingJobs(context.Background(), "notes", 1, 0)
	require.NoError(t, err)
	require.NoError(t, e.DeleteRow("notes", id2))

	require.NoError(t, e.SnapshotExport(exportDir))
	require.NoError(t, e.Close())

	require.NoError(t, SnapshotRestore(exportDir, restoreDir))

	restoredCfg := testConfig(restoreDir)
	r := openEngine(t, restoredCfg)

	names, err := r.ListTables()
	require.NoError(t, err)
	assert.Equal(t, []string{"notes"}, names)

	info, err := r.DescribeTable("notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "body"}, info.EmbeddingSpec.SourceColumns)

	row, err := r.GetRow("notes", id1)
	require.NoError(t, err)
	assert.Equal(t, "Hello", row["title"].Str)
	_, err = r.GetRow("notes", id2)
	assert.Error(t, err)

	jobs, err := r.ListEmbeddingJobs("notes")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, types.JobReady, jobs[0].Status)
	assert.Equal(t, cfg.HashEmbedderDim, jobs[0].VectorDim)

	// The allocator carried over: the next id continues the sequence.
	id3, err := r.InsertRow("notes", testutil.Note("new", "row"))
	require.NoError(t, err)
	assert.Equal(t, id2+1, id3)
}

// SnapshotRestore refuses a non-empty destination.
func TestSnapshotRestoreRefusesNonEmptyDest(t *testing.T) {
	base := t.TempDir()
	srcDir := filepath.Join(base, "src")
	exportDir := filepath.Join(base, "export")
	destDir := filepath.Join(base, "dest")

	cfg := testConfig(srcDir)
	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), nil))
	require.NoError(t, e.SnapshotExport(exportDir))
	require.NoError(t, e.Close())

	require.NoError(t, os.MkdirAll(destDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(destDir, "junk"), []byte("x"), 0o644))
	err = SnapshotRestore(exportDir, destDir)
	require.Error(t, err)
}

// A torn SST left by a crashed flush is dropped at open; the WAL
// still has every row, so nothing is lost.
func TestCrashedFlushLeavesRecoverableState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("notes", testutil.NotesSchema(), testutil.NotesSpec()))
	for i := 0; i < 3; i++ {
		_, err := e.InsertRow("notes", testutil.Note("t", "b"))
		require.NoError(t, err)
	}
	require.NoError(t, e.Close())

	// Fabricate a torn SST as a crashed flush would leave it.
	sstDir := filepath.Join(dir, "tables", "notes", "sst")
	require.NoError(t, os.MkdirAll(sstDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sstDir, "000001.sst"), []byte("torn"), 0o644))

	e2 := openEngine(t, cfg)
	for rowID := int64(1); rowID <= 3; rowID++ {
		_, err := e2.GetRow("notes", rowID)
		require.NoError(t, err)
	}
	// The torn file is gone after recovery.
	_, statErr := os.Stat(filepath.Join(sstDir, "000001.sst"))
	assert.True(t, os.IsNotExist(statErr))
}
