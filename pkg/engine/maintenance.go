package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/compaction"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/logging"
	"github.com/sarveshkapre/embeddb/pkg/sstable"
	"github.com/sarveshkapre/embeddb/pkg/types"
	"github.com/sarveshkapre/embeddb/pkg/wal"
)

// TableStats is the per-table stats surface.
type TableStats struct {
	Name        string
	MemEntries  int
	MemBytes    int64
	SSTCount    int
	SSTEntries  int64
	SSTBytes    int64
	JobsPending int
	JobsReady   int
	JobsFailed  int
}

// DBStats is the whole-database stats surface.
type DBStats struct {
	Tables     int
	NextRowID  int64
	WALBytes   int64
	WALAppends int64
	WALSyncs   int64
}

// TableStats reports a table's memtable, SST, and job counts.
func (e *Engine) TableStats(name string) (TableStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return TableStats{}, err
	}

	t, err := e.getTable(name)
	if err != nil {
		return TableStats{}, err
	}
	stats := TableStats{
		Name:       t.name,
		MemEntries: t.mem.Len(),
		MemBytes:   t.mem.ApproxBytes(),
		SSTCount:   len(t.ssts),
	}
	for _, r := range t.ssts {
		stats.SSTEntries += r.RowCount()
		stats.SSTBytes += r.Size()
	}
	for _, m := range t.embedding {
		switch m.Status {
		case types.JobPending:
			stats.JobsPending++
		case types.JobReady:
			stats.JobsReady++
		case types.JobFailed:
			stats.JobsFailed++
		}
	}
	return stats, nil
}

// Stats reports database-wide counters.
func (e *Engine) Stats() (DBStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return DBStats{}, err
	}

	appends, syncs := e.wal.Stats()
	return DBStats{
		Tables:     len(e.tables),
		NextRowID:  e.nextRowID,
		WALBytes:   e.wal.Size(),
		WALAppends: appends,
		WALSyncs:   syncs,
	}, nil
}

// Flush writes a table's memtable to a new level-0 SST and clears it.
// The WAL is not truncated here; that belongs to Checkpoint.
func (e *Engine) Flush(table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	t, err := e.getTable(table)
	if err != nil {
		return err
	}
	return e.flushLocked(t)
}

func (e *Engine) flushLocked(t *tableState) error {
	if t.mem.IsEmpty() {
		return nil
	}

	entries := t.mem.SortedEntries()
	// Attach each live row's current embedding state so the SST
	// carries it; the state map stays authoritative in memory.
	for i := range entries {
		if entries[i].IsTombstone() {
			continue
		}
		if m, ok := t.embedding[entries[i].RowID]; ok {
			mc := m.Clone()
			entries[i].Meta = &mc
		}
	}

	dir := e.sstDir(t.name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError("mkdir", dir, err)
	}
	path := filepath.Join(dir, sstFileName(t.nextSSTNum))

	if _, err := sstable.WriteFile(path, entries); err != nil {
		return err
	}
	reader, err := sstable.Open(path)
	if err != nil {
		return err
	}

	t.ssts = append([]*sstable.Reader{reader}, t.ssts...)
	t.nextSSTNum++
	t.mem.Clear()

	e.log.Info("flushed", "table", t.name, "sst", filepath.Base(path), "entries", len(entries))
	return nil
}

// Compact merges all of a table's SSTs into a single newer SST. The
// merged output is the only surviving level, so tombstones are
// elided. Old files are removed only after the new file is durable
// and registered.
func (e *Engine) Compact(table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	t, err := e.getTable(table)
	if err != nil {
		return err
	}
	if len(t.ssts) < 2 {
		return nil
	}

	res, err := compaction.Merge(compaction.Task{Inputs: t.ssts, Full: true})
	if err != nil {
		return err
	}

	path := filepath.Join(e.sstDir(t.name), sstFileName(t.nextSSTNum))
	if _, err := sstable.WriteFile(path, res.Entries); err != nil {
		return err
	}
	reader, err := sstable.Open(path)
	if err != nil {
		return err
	}

	old := t.ssts
	t.ssts = []*sstable.Reader{reader}
	t.nextSSTNum++

	for _, r := range old {
		oldPath := r.Path()
		_ = r.Close()
		if err := os.Remove(oldPath); err != nil {
			e.log.Warn("could not remove compacted sstable", "path", oldPath, logging.Err(err))
		}
	}

	e.log.Info("compacted", "table", t.name,
		"inputs", len(old), "input_entries", res.InputEntries,
		"output_entries", len(res.Entries), "tombstones_elided", res.ElidedTombstones)
	return nil
}

// Checkpoint flushes every table's memtable and rewrites the WAL to a
// minimal snapshot: a CreateTable per table, the row-id allocator,
// and the embedding state that is not already implied by an SST.
// Crash-safe via the wal.log/wal.prev rotation protocol.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}
	return e.checkpointLocked()
}

func (e *Engine) checkpointLocked() error {
	names := make([]string, 0, len(e.tables))
	for name := range e.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.flushLocked(e.tables[name]); err != nil {
			return err
		}
	}

	image := make([]wal.Record, 0, len(e.tables)+1)
	for _, name := range names {
		t := e.tables[name]
		var spec *types.EmbeddingSpec
		if t.spec != nil {
			s := *t.spec
			spec = &s
		}
		image = append(image, wal.Record{
			Kind:          wal.KindCreateTable,
			Table:         name,
			Schema:        t.schema,
			EmbeddingSpec: spec,
		})
	}
	image = append(image, wal.Record{Kind: wal.KindSetNextRowID, NextRowID: e.nextRowID})

	// Embedding state that only lives in WAL: rows whose current meta
	// differs from what the newest SST entry carrying them implies.
	for _, name := range names {
		t := e.tables[name]
		implied, err := e.impliedMeta(t)
		if err != nil {
			return err
		}
		rowIDs := make([]int64, 0, len(t.embedding))
		for rowID := range t.embedding {
			rowIDs = append(rowIDs, rowID)
		}
		sort.Slice(rowIDs, func(i, j int) bool { return rowIDs[i] < rowIDs[j] })
		for _, rowID := range rowIDs {
			m := t.embedding[rowID]
			if im, ok := implied[rowID]; ok && metaEqual(*m, im) {
				continue
			}
			image = append(image, wal.Record{
				Kind:  wal.KindUpsertEmbeddingMeta,
				Table: name,
				RowID: rowID,
				Meta:  *m,
			})
		}
	}

	before := e.wal.Size()
	if err := e.wal.Rewrite(image); err != nil {
		return err
	}
	e.log.Info("checkpoint complete",
		"tables", len(names), "wal_bytes_before", before, "wal_bytes_after", e.wal.Size())
	return nil
}

// impliedMeta returns, per row id, the embedding meta the SSTs alone
// would reconstruct: the newest SST entry for each id decides, and a
// tombstone implies no meta.
func (e *Engine) impliedMeta(t *tableState) (map[int64]types.EmbeddingMeta, error) {
	implied := make(map[int64]types.EmbeddingMeta)
	seen := make(map[int64]bool)
	for _, r := range t.ssts {
		entries, err := r.Scan()
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if seen[entry.RowID] {
				continue
			}
			seen[entry.RowID] = true
			if entry.IsTombstone() || entry.Meta == nil {
				continue
			}
			implied[entry.RowID] = *entry.Meta
		}
	}
	return implied, nil
}

// maybeAutoCheckpoint runs the configured WAL-size preflight. Callers
// hold the engine lock and are about to append; a failed checkpoint
// fails the originating operation.
func (e *Engine) maybeAutoCheckpoint() error {
	threshold := e.cfg.WAL.AutoCheckpointBytes
	if threshold <= 0 || e.wal.Size() < threshold {
		return nil
	}
	e.log.Info("auto checkpoint", "wal_bytes", e.wal.Size(), "threshold", threshold)
	return e.checkpointLocked()
}

func metaEqual(a, b types.EmbeddingMeta) bool {
	if a.Status != b.Status || a.ContentHash != b.ContentHash ||
		a.Attempts != b.Attempts || a.HasNextRetry != b.HasNextRetry ||
		a.NextRetryAtMs != b.NextRetryAtMs || a.LastError != b.LastError {
		return false
	}
	if len(a.Vector) != len(b.Vector) {
		return false
	}
	for i := range a.Vector {
		if a.Vector[i] != b.Vector[i] {
			return false
		}
	}
	return true
}

func sstFileName(num uint64) string {
	return fmt.Sprintf("%06d.sst", num)
}
