// Package engine implements EmbedDB's table engine: schema-validated
// row CRUD over the WAL/memtable/SST stack, the persisted embedding
// job queue, flush/compaction/checkpoint maintenance, snapshots, and
// brute-force kNN search.
//
// An Engine is a value parameterized by its data directory; a process
// may open several engines at different directories. All public
// operations run under one exclusive lock, which keeps WAL ordering
// trivially correct. No background goroutines are started; hosts that
// want background embedding call ProcessPendingJobs from their own
// worker.
package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sarveshkapre/embeddb/pkg/config"
	"github.com/sarveshkapre/embeddb/pkg/embedding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/lock"
	"github.com/sarveshkapre/embeddb/pkg/logging"
	"github.com/sarveshkapre/embeddb/pkg/memtable"
	"github.com/sarveshkapre/embeddb/pkg/sstable"
	"github.com/sarveshkapre/embeddb/pkg/types"
	"github.com/sarveshkapre/embeddb/pkg/wal"
)

// Engine is a single-directory EmbedDB instance.
type Engine struct {
	mu sync.Mutex

	cfg      config.Config
	dataDir  string
	log      *logging.Logger
	dirLock  *lock.DirLock
	wal      *wal.Manager
	embedder embedding.Embedder

	tables    map[string]*tableState
	nextRowID int64

	closed bool
}

// tableState is everything the engine tracks for one table: its
// schema, its memtable, its SST list (newest first), and the
// embedding state map covering every row of the table regardless of
// where the row itself currently lives.
type tableState struct {
	name   string
	schema types.Schema
	spec   *types.EmbeddingSpec

	mem  *memtable.MemTable
	ssts []*sstable.Reader // newest first

	embedding map[int64]*types.EmbeddingMeta

	nextSSTNum uint64
}

// Open acquires the data directory, replays the WAL, verifies and
// registers SST files, and reconstructs the embedding state and the
// row-id allocator. It fails with AlreadyOpen if another engine holds
// the directory.
func Open(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.NewIOError("mkdir", cfg.DataDir, err)
	}

	log := logging.New(logging.Options{Level: cfg.Level(), Component: "engine"})

	dirLock, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	embedder := cfg.Embedder
	if embedder == nil {
		embedder, err = embedding.NewHashEmbedder(cfg.HashEmbedderDim)
		if err != nil {
			_ = dirLock.Release()
			return nil, err
		}
	}

	e := &Engine{
		cfg:       cfg,
		dataDir:   cfg.DataDir,
		log:       log,
		dirLock:   dirLock,
		embedder:  embedder,
		tables:    make(map[string]*tableState),
		nextRowID: 1,
	}

	walMgr, replayed, err := wal.Open(cfg.DataDir)
	if err != nil {
		_ = dirLock.Release()
		return nil, err
	}
	e.wal = walMgr

	if err := e.recover(replayed.Records); err != nil {
		_ = walMgr.Close()
		_ = dirLock.Release()
		return nil, err
	}

	log.Info("opened",
		"data_dir", cfg.DataDir,
		"tables", len(e.tables),
		"wal_records", len(replayed.Records),
		"wal_tail_truncated", replayed.Truncated,
		"next_row_id", e.nextRowID)
	return e, nil
}

// recover rebuilds in-memory state: SSTs first (the older truth),
// then the WAL records in write order on top.
func (e *Engine) recover(records []wal.Record) error {
	// Pass 1: tables must exist before their SSTs can be registered.
	for _, r := range records {
		if r.Kind != wal.KindCreateTable {
			continue
		}
		if _, exists := e.tables[r.Table]; exists {
			continue
		}
		spec := r.EmbeddingSpec
		if spec != nil {
			s := *spec
			spec = &s
		}
		e.tables[r.Table] = &tableState{
			name:       r.Table,
			schema:     r.Schema,
			spec:       spec,
			mem:        memtable.New(),
			embedding:  make(map[int64]*types.EmbeddingMeta),
			nextSSTNum: 1,
		}
	}

	for name, t := range e.tables {
		if err := e.loadSSTs(t); err != nil {
			return errors.NewRecoveryError("sstable", errors.Wrapf(err, "table %s", name))
		}
		e.seedEmbeddingFromSSTs(t)
	}

	// Pass 2: apply mutations in write order.
	for _, r := range records {
		switch r.Kind {
		case wal.KindSetNextRowID:
			if r.NextRowID > e.nextRowID {
				e.nextRowID = r.NextRowID
			}

		case wal.KindPutRow:
			t, ok := e.tables[r.Table]
			if !ok {
				e.log.Warn("replay: put for unknown table", "table", r.Table, "row_id", r.RowID)
				continue
			}
			t.mem.Put(types.RowEntry{RowID: r.RowID, Kind: types.KindRow, Payload: r.Payload})
			if r.RowID >= e.nextRowID {
				e.nextRowID = r.RowID + 1
			}
			if t.spec != nil {
				// A PutRow with no trailing meta record (crash between
				// the two appends, or an update that changed source
				// fields) owes the row a fresh Pending job; an update
				// that left source fields alone keeps its meta.
				hash := embedding.ContentHash(r.Payload, t.spec.SourceColumns)
				if prev, exists := t.embedding[r.RowID]; !exists || prev.ContentHash != hash {
					t.embedding[r.RowID] = &types.EmbeddingMeta{Status: types.JobPending, ContentHash: hash}
				}
			}

		case wal.KindDeleteRow:
			t, ok := e.tables[r.Table]
			if !ok {
				continue
			}
			t.mem.PutTombstone(r.RowID)
			delete(t.embedding, r.RowID)

		case wal.KindUpsertEmbeddingMeta:
			t, ok := e.tables[r.Table]
			if !ok {
				continue
			}
			m := r.Meta.Clone()
			t.embedding[r.RowID] = &m
		}
	}
	return nil
}

// loadSSTs registers a table's SST files newest-first. A file that
// fails verification predates any committed metadata naming it (a
// crashed flush), so it is removed rather than surfaced as corruption.
func (e *Engine) loadSSTs(t *tableState) error {
	dir := e.sstDir(t.name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewIOError("readdir", dir, err)
	}

	var names []string
	for _, de := range entries {
		if !de.IsDir() && strings.HasSuffix(de.Name(), ".sst") {
			names = append(names, de.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	for _, name := range names {
		path := filepath.Join(dir, name)
		r, err := sstable.Open(path)
		if err != nil {
			if errors.IsCorruption(err) {
				e.log.Warn("dropping incomplete sstable from crashed flush", "path", path, logging.Err(err))
				if rmErr := os.Remove(path); rmErr != nil {
					return errors.NewIOError("remove", path, rmErr)
				}
				continue
			}
			return err
		}
		t.ssts = append(t.ssts, r)

		num := sstFileNum(name)
		if num >= t.nextSSTNum {
			t.nextSSTNum = num + 1
		}
	}
	return nil
}

// seedEmbeddingFromSSTs loads the SST-implied embedding state: for
// each row id, the newest SST entry decides. WAL replay overrides
// this afterwards. The allocator floor is raised past any stored row
// id as a belt against a truncated allocator record.
func (e *Engine) seedEmbeddingFromSSTs(t *tableState) {
	seen := make(map[int64]bool)
	for _, r := range t.ssts { // newest first
		entries, err := r.Scan()
		if err != nil {
			// Verified at open; a read error now is transient I/O and
			// will resurface on the first lookup.
			e.log.Warn("scan during recovery failed", "path", r.Path(), logging.Err(err))
			continue
		}
		for _, entry := range entries {
			if entry.RowID >= e.nextRowID {
				e.nextRowID = entry.RowID + 1
			}
			if seen[entry.RowID] {
				continue
			}
			seen[entry.RowID] = true
			if entry.IsTombstone() {
				continue
			}
			if entry.Meta != nil {
				m := entry.Meta.Clone()
				t.embedding[entry.RowID] = &m
			}
		}
	}
}

// lookupRow is the shared visibility rule: the memtable's answer wins
// outright; otherwise the newest SST holding the row id decides.
// Every read and existence check in the engine goes through here.
func (e *Engine) lookupRow(t *tableState, rowID int64) (types.RowEntry, bool, error) {
	if entry, ok := t.mem.Get(rowID); ok {
		return entry, true, nil
	}
	for _, r := range t.ssts {
		entry, ok, err := r.Find(rowID)
		if err != nil {
			return types.RowEntry{}, false, err
		}
		if ok {
			return entry, true, nil
		}
	}
	return types.RowEntry{}, false, nil
}

// getTable returns the named table or NotFound.
func (e *Engine) getTable(name string) (*tableState, error) {
	t, ok := e.tables[name]
	if !ok {
		return nil, errors.NotFound("table %q", name)
	}
	return t, nil
}

func (e *Engine) checkOpen() error {
	if e.closed {
		return errors.InvalidArgument("engine is closed")
	}
	return nil
}

// DataDir returns the engine's data directory.
func (e *Engine) DataDir() string { return e.dataDir }

// Close releases the WAL, SST readers, and the directory lock. The
// engine is unusable afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var firstErr error
	if err := e.wal.Close(); err != nil {
		firstErr = err
	}
	for _, t := range e.tables {
		for _, r := range t.ssts {
			if err := r.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if err := e.dirLock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.log.Info("closed", "data_dir", e.dataDir)
	return firstErr
}

func (e *Engine) tableDir(table string) string {
	return filepath.Join(e.dataDir, "tables", table)
}

func (e *Engine) sstDir(table string) string {
	return filepath.Join(e.tableDir(table), "sst")
}

func sstFileNum(name string) uint64 {
	var n uint64
	for _, c := range strings.TrimSuffix(name, ".sst") {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + uint64(c-'0')
	}
	return n
}
