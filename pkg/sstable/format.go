// Package sstable implements EmbedDB's immutable sorted table files.
//
// An SST holds a table's flushed entries in ascending row-id order and
// is never modified after its trailing footer is written. Point lookup
// binary-searches an in-memory copy of the footer's offset table; full
// scans walk the entry stream front to back.
//
// # File Format
//
//	+--------------------------------------------+
//	| Header: magic(8) version(4)                |
//	|         row_count(4) vector_dim(4)         |
//	+--------------------------------------------+
//	| Entry 0: row_id(8) kind(1) body_len(4)     |
//	|          body(body_len) crc32(4)           |
//	+--------------------------------------------+
//	| ...entries in strictly ascending row_id... |
//	+--------------------------------------------+
//	| Footer: table_len(4)                       |
//	|         offset_table(row_count * 16)       |
//	|         table_crc32(4) footer_magic(8)     |
//	+--------------------------------------------+
//
// Each entry's CRC covers its full frame (row id, kind, body length,
// and body), so a torn write anywhere in an entry is detected. The
// offset table is a flat array of (row_id int64, file_offset uint64)
// pairs in entry order.
package sstable

import (
	"github.com/sarveshkapre/embeddb/internal/encoding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

const (
	// MagicNumber identifies an EmbedDB SST file ("EmbedSST").
	MagicNumber uint64 = 0x456D626564535354

	// FooterMagic closes a complete file; a missing footer magic means
	// the file was torn mid-write and must be treated as absent.
	FooterMagic uint64 = 0x5453536465626D45

	// FormatVersion is the current SST format version. A reader that
	// sees a higher version fails open loudly rather than mis-parsing.
	FormatVersion uint32 = 1

	// HeaderSize is magic(8) + version(4) + row_count(4) + vector_dim(4).
	HeaderSize = 20

	// entryPrefixSize is row_id(8) + kind(1) + body_len(4).
	entryPrefixSize = 13

	// offsetPairSize is row_id(8) + file_offset(8) per offset-table slot.
	offsetPairSize = 16
)

// Header describes the fixed-size prologue of an SST file.
type Header struct {
	Version   uint32
	RowCount  uint32
	VectorDim uint32 // 0 when the file carries no vectors
}

// Encode returns the header's on-disk form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	encoding.PutUint64(buf[0:8], MagicNumber)
	encoding.PutUint32(buf[8:12], h.Version)
	encoding.PutUint32(buf[12:16], h.RowCount)
	encoding.PutUint32(buf[16:20], h.VectorDim)
	return buf
}

// DecodeHeader parses and validates an SST header.
func DecodeHeader(file string, data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, errors.NewCorruptionError(file, 0, "short header")
	}
	if encoding.GetUint64(data[0:8]) != MagicNumber {
		return Header{}, errors.NewCorruptionError(file, 0, "bad magic number")
	}
	h := Header{
		Version:   encoding.GetUint32(data[8:12]),
		RowCount:  encoding.GetUint32(data[12:16]),
		VectorDim: encoding.GetUint32(data[16:20]),
	}
	if h.Version > FormatVersion {
		return Header{}, errors.NewCorruptionError(file, 0, "unsupported format version")
	}
	return h, nil
}

// OffsetEntry is one slot of the footer's offset table.
type OffsetEntry struct {
	RowID  int64
	Offset uint64
}

// encodeEntryBody serializes the variable part of an entry: a payload
// behind a presence byte (absent for tombstones) and embedding
// metadata behind a presence byte.
func encodeEntryBody(e types.RowEntry) []byte {
	buf := make([]byte, 0, 64)
	if e.Kind == types.KindRow {
		buf = append(buf, 1)
		buf = types.EncodePayload(buf, e.Payload)
	} else {
		buf = append(buf, 0)
	}
	if e.Meta != nil {
		buf = append(buf, 1)
		buf = types.EncodeEmbeddingMeta(buf, *e.Meta)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// decodeEntryBody parses a body written by encodeEntryBody.
func decodeEntryBody(rowID int64, kind types.EntryKind, body []byte) (types.RowEntry, bool) {
	e := types.RowEntry{RowID: rowID, Kind: kind}
	if len(body) < 1 {
		return types.RowEntry{}, false
	}
	hasPayload := body[0]
	rest := body[1:]
	if hasPayload == 1 {
		p, n, ok := types.DecodePayload(rest)
		if !ok {
			return types.RowEntry{}, false
		}
		e.Payload = p
		rest = rest[n:]
	}
	if len(rest) < 1 {
		return types.RowEntry{}, false
	}
	hasMeta := rest[0]
	rest = rest[1:]
	if hasMeta == 1 {
		m, ok := types.DecodeEmbeddingMeta(rest)
		if !ok {
			return types.RowEntry{}, false
		}
		e.Meta = &m
	}
	return e, true
}

// encodeEntry returns an entry's complete frame, CRC included.
func encodeEntry(e types.RowEntry) []byte {
	body := encodeEntryBody(e)
	frame := make([]byte, entryPrefixSize+len(body)+4)
	encoding.PutUint64(frame[0:8], uint64(e.RowID))
	frame[8] = byte(e.Kind)
	encoding.PutUint32(frame[9:13], uint32(len(body)))
	copy(frame[entryPrefixSize:], body)
	crc := encoding.Checksum(frame[:entryPrefixSize+len(body)])
	encoding.PutUint32(frame[entryPrefixSize+len(body):], crc)
	return frame
}
