package wal

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sarveshkapre/embeddb/pkg/errors"
)

const (
	logFileName  = "wal.log"
	prevFileName = "wal.prev"
	newFileName  = "wal.log.new"
)

// Manager owns the single active WAL file for a data directory and
// implements the wal.log/wal.prev rotation protocol used by
// checkpoint. There is exactly one active file plus at most one
// rotation-in-flight file, so recovery never has to enumerate or
// garbage-collect numbered segments.
type Manager struct {
	mu     sync.Mutex
	dir    string
	writer *Writer
}

// Open recovers whichever of wal.log/wal.prev/wal.log.new reflects
// the most recent complete state after an interrupted rotation,
// leaves exactly wal.log in place, and opens it for appending. It
// returns the records replayed from that file.
func Open(dir string) (*Manager, ReplayResult, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ReplayResult{}, errors.NewIOError("mkdir", dir, err)
	}

	logPath := filepath.Join(dir, logFileName)
	prevPath := filepath.Join(dir, prevFileName)
	newPath := filepath.Join(dir, newFileName)

	if exists(newPath) {
		// Crash before the first rename (wal.log -> wal.prev): the new
		// file was never adopted, so the old wal.log is still intact.
		if err := os.Remove(newPath); err != nil {
			return nil, ReplayResult{}, errors.NewIOError("remove", newPath, err)
		}
	}

	if exists(prevPath) {
		if !exists(logPath) {
			// Crash between the two renames: promote wal.prev back.
			if err := os.Rename(prevPath, logPath); err != nil {
				return nil, ReplayResult{}, errors.NewIOError("rename", prevPath, err)
			}
		} else {
			result, err := replay(logPath)
			if err == nil && !result.Truncated {
				// wal.log's CRC chain is fully intact: keep it, drop wal.prev.
				if err := os.Remove(prevPath); err != nil {
					return nil, ReplayResult{}, errors.NewIOError("remove", prevPath, err)
				}
			} else {
				// wal.log is suspect; fall back to the last known-good file.
				if err := os.Remove(logPath); err != nil {
					return nil, ReplayResult{}, errors.NewIOError("remove", logPath, err)
				}
				if err := os.Rename(prevPath, logPath); err != nil {
					return nil, ReplayResult{}, errors.NewIOError("rename", prevPath, err)
				}
			}
		}
	}

	if err := syncDir(dir); err != nil {
		return nil, ReplayResult{}, err
	}

	result, err := replay(logPath)
	if err != nil {
		return nil, ReplayResult{}, errors.NewRecoveryError("wal", err)
	}
	if result.Truncated {
		// Cut the torn tail off so the next append does not land behind
		// it. Every replayed record was written by EncodeRecord, so
		// re-encoding gives the exact length of the intact prefix.
		var valid int64
		for _, r := range result.Records {
			valid += int64(4 + len(EncodeRecord(r)) + 4)
		}
		if err := os.Truncate(logPath, valid); err != nil {
			return nil, ReplayResult{}, errors.NewIOError("truncate", logPath, err)
		}
	}

	writer, err := OpenWriter(logPath)
	if err != nil {
		return nil, ReplayResult{}, err
	}

	return &Manager{dir: dir, writer: writer}, result, nil
}

func replay(path string) (ReplayResult, error) {
	if !exists(path) {
		return ReplayResult{}, nil
	}
	reader, err := NewReader(path)
	if err != nil {
		return ReplayResult{}, err
	}
	defer reader.Close()
	return reader.ReadAll()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Append durably appends a record to the active WAL file.
func (m *Manager) Append(r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Append(r)
}

// Size returns the active WAL file's current size in bytes.
func (m *Manager) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Size()
}

// Stats returns the active writer's append/sync counters.
func (m *Manager) Stats() (appends, syncs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Stats()
}

// Rewrite implements checkpoint's WAL truncation: records is the
// minimal image computed by the engine (CreateTable per table,
// SetNextRowId, and the embedding metadata that only lives in WAL).
// It writes wal.log.new, fsyncs it, renames wal.log -> wal.prev,
// renames wal.log.new -> wal.log, fsyncs the directory, then removes
// wal.prev, so a crash at any point leaves a recoverable directory.
func (m *Manager) Rewrite(records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logPath := filepath.Join(m.dir, logFileName)
	prevPath := filepath.Join(m.dir, prevFileName)
	newPath := filepath.Join(m.dir, newFileName)

	if err := m.writer.Close(); err != nil {
		return err
	}

	newWriter, err := OpenWriter(newPath)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := newWriter.Append(r); err != nil {
			_ = newWriter.Close()
			return err
		}
	}
	if err := newWriter.Close(); err != nil {
		return err
	}

	if err := os.Rename(logPath, prevPath); err != nil {
		return errors.NewIOError("rename", logPath, err)
	}
	if err := syncDir(m.dir); err != nil {
		return err
	}
	if err := os.Rename(newPath, logPath); err != nil {
		return errors.NewIOError("rename", newPath, err)
	}
	if err := syncDir(m.dir); err != nil {
		return err
	}

	writer, err := OpenWriter(logPath)
	if err != nil {
		return err
	}
	m.writer = writer

	if err := os.Remove(prevPath); err != nil {
		return errors.NewIOError("remove", prevPath, err)
	}
	return nil
}

// Close closes the active WAL file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writer.Close()
}
