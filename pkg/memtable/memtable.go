// Package memtable provides the in-memory table state pending flush:
// a mapping from row id to either a live row or a tombstone, plus the
// per-row embedding metadata that rides along with each entry.
package memtable

import (
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/types"
)

// MemTable holds a table's unflushed mutations keyed by row id.
//
// Lifecycle:
// 1. Active: ingests mutations after their WAL record is durable
// 2. Flushed: contents written to a level-0 SST, table cleared
//
// Thread safety: none. The engine serializes all access under its
// exclusive lock, so the memtable itself carries no synchronization.
type MemTable struct {
	entries map[int64]types.RowEntry

	// approxBytes tracks an estimate of resident payload size so
	// table_stats can report it without walking the map.
	approxBytes int64
}

// New creates an empty MemTable.
func New() *MemTable {
	return &MemTable{entries: make(map[int64]types.RowEntry)}
}

// Get returns the entry stored for rowID, if any. The returned entry
// may be a tombstone; callers that need "live row or nothing" must
// check Kind themselves.
func (m *MemTable) Get(rowID int64) (types.RowEntry, bool) {
	e, ok := m.entries[rowID]
	return e, ok
}

// Put inserts or replaces the entry for e.RowID.
func (m *MemTable) Put(e types.RowEntry) {
	if old, ok := m.entries[e.RowID]; ok {
		m.approxBytes -= entryBytes(old)
	}
	m.entries[e.RowID] = e
	m.approxBytes += entryBytes(e)
}

// PutTombstone records a deletion marker for rowID, dropping any
// embedding metadata the previous entry carried.
func (m *MemTable) PutTombstone(rowID int64) {
	m.Put(types.RowEntry{RowID: rowID, Kind: types.KindTombstone})
}

// Delete removes the entry for rowID entirely. Distinct from
// PutTombstone, which records a logical deletion.
func (m *MemTable) Delete(rowID int64) {
	if old, ok := m.entries[rowID]; ok {
		m.approxBytes -= entryBytes(old)
		delete(m.entries, rowID)
	}
}

// Len returns the number of entries, tombstones included.
func (m *MemTable) Len() int {
	return len(m.entries)
}

// IsEmpty reports whether the memtable has no entries.
func (m *MemTable) IsEmpty() bool {
	return len(m.entries) == 0
}

// ApproxBytes returns an estimate of resident payload bytes.
func (m *MemTable) ApproxBytes() int64 {
	return m.approxBytes
}

// SortedEntries returns all entries in ascending row-id order, ready
// for an SST writer. Entries are cloned so a flush does not alias the
// live map.
func (m *MemTable) SortedEntries() []types.RowEntry {
	out := make([]types.RowEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out
}

// Range calls fn for every entry in ascending row-id order, stopping
// early if fn returns false.
func (m *MemTable) Range(fn func(types.RowEntry) bool) {
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if !fn(m.entries[id]) {
			return
		}
	}
}

// Clear drops all entries, returning the memtable to its initial
// state after a flush.
func (m *MemTable) Clear() {
	m.entries = make(map[int64]types.RowEntry)
	m.approxBytes = 0
}

// entryBytes estimates the resident size of an entry: payload values
// plus any embedding vector. A fixed overhead covers map bookkeeping.
func entryBytes(e types.RowEntry) int64 {
	const overhead = 48
	size := int64(overhead)
	for name, v := range e.Payload {
		size += int64(len(name)) + 16
		switch v.Kind {
		case types.KindString:
			size += int64(len(v.Str))
		case types.KindBytes:
			size += int64(len(v.Bytes))
		}
	}
	if e.Meta != nil {
		size += 64 + int64(len(e.Meta.Vector))*4 + int64(len(e.Meta.LastError))
	}
	return size
}
