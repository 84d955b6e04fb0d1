// Package wal implements EmbedDB's write-ahead log: a tagged,
// self-describing record stream framed with a length prefix and a
// CRC32 checksum, plus the wal.log/wal.prev rotation protocol used by
// checkpoint.
package wal

import (
	"github.com/sarveshkapre/embeddb/internal/encoding"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// RecordKind tags the variant of a WAL record's payload.
type RecordKind byte

const (
	KindPutRow RecordKind = iota + 1
	KindDeleteRow
	KindUpsertEmbeddingMeta
	KindCreateTable
	KindSetNextRowID
)

func (k RecordKind) String() string {
	switch k {
	case KindPutRow:
		return "PutRow"
	case KindDeleteRow:
		return "DeleteRow"
	case KindUpsertEmbeddingMeta:
		return "UpsertEmbeddingMeta"
	case KindCreateTable:
		return "CreateTable"
	case KindSetNextRowID:
		return "SetNextRowId"
	default:
		return "Unknown"
	}
}

// Record is the tagged union of everything the WAL can carry. Only
// the fields relevant to Kind are populated; callers switch on Kind.
type Record struct {
	Kind RecordKind

	// PutRow, DeleteRow, UpsertEmbeddingMeta
	Table string
	RowID int64

	// PutRow
	Payload types.Payload

	// UpsertEmbeddingMeta
	Meta types.EmbeddingMeta

	// CreateTable
	Schema        types.Schema
	EmbeddingSpec *types.EmbeddingSpec

	// SetNextRowId
	NextRowID int64
}

func putString(dst []byte, s string) []byte {
	return encoding.PutLenPrefixed(dst, []byte(s))
}

func getString(src []byte) (string, int, bool) {
	b, n, ok := encoding.GetLenPrefixed(src)
	if !ok {
		return "", 0, false
	}
	return string(b), n, true
}

// EncodeRecord serializes r into the tagged payload format: a kind
// byte, then length-prefixed fields in a
// fixed order, with presence bytes in front of every optional field.
func EncodeRecord(r Record) []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(r.Kind))

	switch r.Kind {
	case KindPutRow:
		buf = putString(buf, r.Table)
		var rid [8]byte
		encoding.PutUint64(rid[:], uint64(r.RowID))
		buf = append(buf, rid[:]...)
		buf = types.EncodePayload(buf, r.Payload)

	case KindDeleteRow:
		buf = putString(buf, r.Table)
		var rid [8]byte
		encoding.PutUint64(rid[:], uint64(r.RowID))
		buf = append(buf, rid[:]...)

	case KindUpsertEmbeddingMeta:
		buf = putString(buf, r.Table)
		var rid [8]byte
		encoding.PutUint64(rid[:], uint64(r.RowID))
		buf = append(buf, rid[:]...)
		buf = types.EncodeEmbeddingMeta(buf, r.Meta)

	case KindCreateTable:
		buf = putString(buf, r.Table)
		buf = encodeSchema(buf, r.Schema)
		if r.EmbeddingSpec != nil {
			buf = append(buf, 1)
			buf = encodeEmbeddingSpec(buf, *r.EmbeddingSpec)
		} else {
			buf = append(buf, 0)
		}

	case KindSetNextRowID:
		var v [8]byte
		encoding.PutUint64(v[:], uint64(r.NextRowID))
		buf = append(buf, v[:]...)
	}

	return buf
}

// DecodeRecord parses a payload previously produced by EncodeRecord.
// ok is false when the payload is truncated or its kind byte is
// unrecognized; the caller treats that as corruption.
func DecodeRecord(payload []byte) (Record, bool) {
	if len(payload) < 1 {
		return Record{}, false
	}
	kind := RecordKind(payload[0])
	rest := payload[1:]

	switch kind {
	case KindPutRow:
		table, n, ok := getString(rest)
		if !ok || len(rest[n:]) < 8 {
			return Record{}, false
		}
		rest = rest[n:]
		rowID := int64(encoding.GetUint64(rest[:8]))
		p, _, ok := types.DecodePayload(rest[8:])
		if !ok {
			return Record{}, false
		}
		return Record{Kind: kind, Table: table, RowID: rowID, Payload: p}, true

	case KindDeleteRow:
		table, n, ok := getString(rest)
		if !ok || len(rest[n:]) < 8 {
			return Record{}, false
		}
		rowID := int64(encoding.GetUint64(rest[n : n+8]))
		return Record{Kind: kind, Table: table, RowID: rowID}, true

	case KindUpsertEmbeddingMeta:
		table, n, ok := getString(rest)
		if !ok || len(rest[n:]) < 8 {
			return Record{}, false
		}
		rest = rest[n:]
		rowID := int64(encoding.GetUint64(rest[:8]))
		meta, ok := types.DecodeEmbeddingMeta(rest[8:])
		if !ok {
			return Record{}, false
		}
		return Record{Kind: kind, Table: table, RowID: rowID, Meta: meta}, true

	case KindCreateTable:
		table, n, ok := getString(rest)
		if !ok {
			return Record{}, false
		}
		rest = rest[n:]
		schema, n2, ok := decodeSchema(rest)
		if !ok {
			return Record{}, false
		}
		rest = rest[n2:]
		if len(rest) < 1 {
			return Record{}, false
		}
		hasSpec := rest[0]
		rest = rest[1:]
		var spec *types.EmbeddingSpec
		if hasSpec == 1 {
			s, _, ok := decodeEmbeddingSpec(rest)
			if !ok {
				return Record{}, false
			}
			spec = &s
		}
		return Record{Kind: kind, Table: table, Schema: schema, EmbeddingSpec: spec}, true

	case KindSetNextRowID:
		if len(rest) < 8 {
			return Record{}, false
		}
		return Record{Kind: kind, NextRowID: int64(encoding.GetUint64(rest[:8]))}, true

	default:
		return Record{}, false
	}
}

func encodeSchema(dst []byte, s types.Schema) []byte {
	var cnt [10]byte
	n := encoding.PutVarint(cnt[:], uint64(len(s.Columns)))
	dst = append(dst, cnt[:n]...)
	for _, c := range s.Columns {
		dst = putString(dst, c.Name)
		dst = append(dst, byte(c.Type))
		nullable := byte(0)
		if c.Nullable {
			nullable = 1
		}
		dst = append(dst, nullable)
	}
	return dst
}

func decodeSchema(src []byte) (types.Schema, int, bool) {
	count, n := encoding.GetVarint(src)
	if n == 0 {
		return types.Schema{}, 0, false
	}
	off := n
	cols := make([]types.Column, 0, count)
	for i := uint64(0); i < count; i++ {
		name, nn, ok := getString(src[off:])
		if !ok {
			return types.Schema{}, 0, false
		}
		off += nn
		if len(src[off:]) < 2 {
			return types.Schema{}, 0, false
		}
		typ := types.ColumnType(src[off])
		nullable := src[off+1] != 0
		off += 2
		cols = append(cols, types.Column{Name: name, Type: typ, Nullable: nullable})
	}
	return types.Schema{Columns: cols}, off, true
}

func encodeEmbeddingSpec(dst []byte, spec types.EmbeddingSpec) []byte {
	var cnt [10]byte
	n := encoding.PutVarint(cnt[:], uint64(len(spec.SourceColumns)))
	dst = append(dst, cnt[:n]...)
	for _, c := range spec.SourceColumns {
		dst = putString(dst, c)
	}
	return append(dst, byte(spec.DefaultMetric))
}

func decodeEmbeddingSpec(src []byte) (types.EmbeddingSpec, int, bool) {
	count, n := encoding.GetVarint(src)
	if n == 0 {
		return types.EmbeddingSpec{}, 0, false
	}
	off := n
	cols := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		name, nn, ok := getString(src[off:])
		if !ok {
			return types.EmbeddingSpec{}, 0, false
		}
		off += nn
		cols = append(cols, name)
	}
	if len(src[off:]) < 1 {
		return types.EmbeddingSpec{}, 0, false
	}
	metric := types.Metric(src[off])
	off++
	return types.EmbeddingSpec{SourceColumns: cols, DefaultMetric: metric}, off, true
}
