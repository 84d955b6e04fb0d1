// Package types defines the core data model shared across EmbedDB's
// storage layers: column values, schemas, rows, tombstones, and
// embedding job metadata.
package types

import "fmt"

// ColumnType enumerates the declared types a schema column may have.
type ColumnType byte

const (
	ColumnInt ColumnType = iota
	ColumnFloat
	ColumnBool
	ColumnString
	ColumnBytes
)

// String returns a human-readable name for the column type.
func (t ColumnType) String() string {
	switch t {
	case ColumnInt:
		return "Int"
	case ColumnFloat:
		return "Float"
	case ColumnBool:
		return "Bool"
	case ColumnString:
		return "String"
	case ColumnBytes:
		return "Bytes"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t)
	}
}

// Column describes one field of a table schema.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Schema is an ordered list of columns. Order is preserved for
// describe_table output; lookups are by name.
type Schema struct {
	Columns []Column
}

// Find returns the column with the given name and whether it exists.
func (s Schema) Find(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// EmbeddingSpec names the source columns whose text rendering feeds a
// table's embedder, plus the default distance metric for its kNN
// queries.
type EmbeddingSpec struct {
	SourceColumns []string
	DefaultMetric Metric
}

// Metric enumerates the supported vector distance functions. Defined
// here (rather than in pkg/search) because EmbeddingSpec needs it and
// pkg/types must not import pkg/search.
type Metric byte

const (
	MetricCosine Metric = iota
	MetricL2
)

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricL2:
		return "L2"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", m)
	}
}

// ValueKind tags the concrete type held by a Value.
type ValueKind byte

const (
	KindNull ValueKind = iota
	KindInt64
	KindFloat64
	KindBool
	KindString
	KindBytes
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindInt64:
		return "Int"
	case KindFloat64:
		return "Float"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindBytes:
		return "Bytes"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Value is a discriminated union over a single column's payload,
// matching the five declared ColumnTypes plus an explicit null.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string
	Bytes []byte
}

func NullValue() Value           { return Value{Kind: KindNull} }
func IntValue(v int64) Value     { return Value{Kind: KindInt64, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat64, Float: v} }
func BoolValue(v bool) Value     { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }
func BytesValue(v []byte) Value  { return Value{Kind: KindBytes, Bytes: v} }

// IsNull reports whether this value represents SQL-style null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Clone returns a deep copy of v (only Bytes carries a backing array).
func (v Value) Clone() Value {
	if v.Kind == KindBytes && v.Bytes != nil {
		b := make([]byte, len(v.Bytes))
		copy(b, v.Bytes)
		v.Bytes = b
	}
	return v
}

// Equal reports whether v and o hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt64:
		return v.Int == o.Int
	case KindFloat64:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindString:
		return v.Str == o.Str
	case KindBytes:
		if len(v.Bytes) != len(o.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != o.Bytes[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Payload is a row's column-name-to-value mapping.
type Payload map[string]Value

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v.Clone()
	}
	return out
}

// JobStatus is the state of a row's embedding job.
type JobStatus byte

const (
	JobPending JobStatus = iota
	JobReady
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "Pending"
	case JobReady:
		return "Ready"
	case JobFailed:
		return "Failed"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// EmbeddingMeta is the per-row state of the embedding job engine.
type EmbeddingMeta struct {
	Status        JobStatus
	ContentHash   uint64
	Attempts      int
	NextRetryAtMs int64 // meaningful only when HasNextRetry is true
	HasNextRetry  bool
	LastError     string
	Vector        []float32 // non-nil iff Status == JobReady
}

// Clone returns a deep copy of the embedding metadata.
func (m EmbeddingMeta) Clone() EmbeddingMeta {
	if m.Vector != nil {
		v := make([]float32, len(m.Vector))
		copy(v, m.Vector)
		m.Vector = v
	}
	return m
}

// EntryKind distinguishes a live row from a tombstone in the memtable
// and in SST entries.
type EntryKind byte

const (
	KindRow EntryKind = iota
	KindTombstone
)

func (k EntryKind) String() string {
	switch k {
	case KindRow:
		return "Row"
	case KindTombstone:
		return "Tombstone"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// RowEntry is the authoritative value stored for a row id in the
// memtable or an SST: either a live row (payload + optional embedding
// metadata) or a tombstone (optionally still carrying embedding
// metadata until compaction elides it).
type RowEntry struct {
	RowID   int64
	Kind    EntryKind
	Payload Payload        // nil when Kind == KindTombstone
	Meta    *EmbeddingMeta // nil when the table has no embedding spec, or cleared
}

// IsTombstone reports whether this entry represents a deletion.
func (e RowEntry) IsTombstone() bool { return e.Kind == KindTombstone }

// Clone returns a deep copy of the entry.
func (e RowEntry) Clone() RowEntry {
	clone := RowEntry{RowID: e.RowID, Kind: e.Kind}
	if e.Payload != nil {
		clone.Payload = e.Payload.Clone()
	}
	if e.Meta != nil {
		m := e.Meta.Clone()
		clone.Meta = &m
	}
	return clone
}

// SSTFileMeta describes one SST file belonging to a table, as tracked
// in memory after a successful write or verified open.
type SSTFileMeta struct {
	FileNum   uint64
	Path      string
	RowCount  int64
	VectorDim int
	Size      int64
}

// TableID formats the zero-padded file name for this SST, matching
// the directory layout's NNNNNN.sst numbering.
func (m SSTFileMeta) TableID() string {
	return fmt.Sprintf("%06d.sst", m.FileNum)
}
