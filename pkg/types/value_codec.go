package types

import (
	"math"

	"github.com/sarveshkapre/embeddb/internal/encoding"
)

// Value tag bytes. Unrecognized tags inside a payload the reader
// otherwise understands are corruption, not silent absence — only
// top-level WAL record fields are allowed to default to absent.
const (
	tagNull byte = iota
	tagInt64
	tagFloat64
	tagBool
	tagString
	tagBytes
)

// EncodeValue appends v's self-describing tagged encoding to dst.
func EncodeValue(dst []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return append(dst, tagNull)
	case KindInt64:
		var buf [8]byte
		encoding.PutUint64(buf[:], uint64(v.Int))
		return append(append(dst, tagInt64), buf[:]...)
	case KindFloat64:
		var buf [8]byte
		encoding.PutUint64(buf[:], math.Float64bits(v.Float))
		return append(append(dst, tagFloat64), buf[:]...)
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return append(append(dst, tagBool), b)
	case KindString:
		dst = append(dst, tagString)
		return encoding.PutLenPrefixed(dst, []byte(v.Str))
	case KindBytes:
		dst = append(dst, tagBytes)
		return encoding.PutLenPrefixed(dst, v.Bytes)
	default:
		return append(dst, tagNull)
	}
}

// DecodeValue reads one tagged value from src, returning it and the
// number of bytes consumed. ok is false on truncated input or an
// unrecognized tag (the caller should surface this as corruption).
func DecodeValue(src []byte) (v Value, consumed int, ok bool) {
	if len(src) < 1 {
		return Value{}, 0, false
	}
	tag := src[0]
	rest := src[1:]
	switch tag {
	case tagNull:
		return NullValue(), 1, true
	case tagInt64:
		if len(rest) < 8 {
			return Value{}, 0, false
		}
		return IntValue(int64(encoding.GetUint64(rest[:8]))), 9, true
	case tagFloat64:
		if len(rest) < 8 {
			return Value{}, 0, false
		}
		return FloatValue(math.Float64frombits(encoding.GetUint64(rest[:8]))), 9, true
	case tagBool:
		if len(rest) < 1 {
			return Value{}, 0, false
		}
		return BoolValue(rest[0] != 0), 2, true
	case tagString:
		b, n, ok2 := encoding.GetLenPrefixed(rest)
		if !ok2 {
			return Value{}, 0, false
		}
		return StringValue(string(b)), 1 + n, true
	case tagBytes:
		b, n, ok2 := encoding.GetLenPrefixed(rest)
		if !ok2 {
			return Value{}, 0, false
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return BytesValue(cp), 1 + n, true
	default:
		return Value{}, 0, false
	}
}

// EncodePayload appends a self-describing encoding of p: a varint
// column count followed by (name, value) pairs in a stable order.
func EncodePayload(dst []byte, p Payload) []byte {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sortStrings(names)

	var countBuf [10]byte
	n := encoding.PutVarint(countBuf[:], uint64(len(names)))
	dst = append(dst, countBuf[:n]...)

	for _, name := range names {
		dst = encoding.PutLenPrefixed(dst, []byte(name))
		dst = EncodeValue(dst, p[name])
	}
	return dst
}

// DecodePayload reads a payload previously written by EncodePayload.
func DecodePayload(src []byte) (p Payload, consumed int, ok bool) {
	count, n := encoding.GetVarint(src)
	if n == 0 {
		return nil, 0, false
	}
	off := n
	p = make(Payload, count)
	for i := uint64(0); i < count; i++ {
		nameB, nn, ok2 := encoding.GetLenPrefixed(src[off:])
		if !ok2 {
			return nil, 0, false
		}
		off += nn
		val, vn, ok3 := DecodeValue(src[off:])
		if !ok3 {
			return nil, 0, false
		}
		off += vn
		p[string(nameB)] = val
	}
	return p, off, true
}

// EncodeEmbeddingMeta encodes optional fields (next_retry_at_ms,
// last_error, vector) behind presence bytes so a record written by an
// older build that never set them decodes with those fields absent.
// Shared by the WAL record codec and the SST entry codec.
func EncodeEmbeddingMeta(dst []byte, m EmbeddingMeta) []byte {
	dst = append(dst, byte(m.Status))
	var hash [8]byte
	encoding.PutUint64(hash[:], m.ContentHash)
	dst = append(dst, hash[:]...)
	var attempts [10]byte
	n := encoding.PutVarint(attempts[:], uint64(m.Attempts))
	dst = append(dst, attempts[:n]...)

	if m.HasNextRetry {
		dst = append(dst, 1)
		var r [8]byte
		encoding.PutUint64(r[:], uint64(m.NextRetryAtMs))
		dst = append(dst, r[:]...)
	} else {
		dst = append(dst, 0)
	}

	if m.LastError != "" {
		dst = append(dst, 1)
		dst = encoding.PutLenPrefixed(dst, []byte(m.LastError))
	} else {
		dst = append(dst, 0)
	}

	if m.Vector != nil {
		dst = append(dst, 1)
		var dimBuf [10]byte
		dn := encoding.PutVarint(dimBuf[:], uint64(len(m.Vector)))
		dst = append(dst, dimBuf[:dn]...)
		for _, f := range m.Vector {
			var fb [4]byte
			encoding.PutUint32(fb[:], math.Float32bits(f))
			dst = append(dst, fb[:]...)
		}
	} else {
		dst = append(dst, 0)
	}

	return dst
}

// DecodeEmbeddingMeta decodes a value previously written by
// EncodeEmbeddingMeta.
func DecodeEmbeddingMeta(src []byte) (EmbeddingMeta, bool) {
	if len(src) < 1+8 {
		return EmbeddingMeta{}, false
	}
	m := EmbeddingMeta{Status: JobStatus(src[0])}
	off := 1
	m.ContentHash = encoding.GetUint64(src[off : off+8])
	off += 8

	attempts, n := encoding.GetVarint(src[off:])
	if n == 0 {
		return EmbeddingMeta{}, false
	}
	m.Attempts = int(attempts)
	off += n

	if len(src[off:]) < 1 {
		return EmbeddingMeta{}, false
	}
	hasRetry := src[off]
	off++
	if hasRetry == 1 {
		if len(src[off:]) < 8 {
			return EmbeddingMeta{}, false
		}
		m.HasNextRetry = true
		m.NextRetryAtMs = int64(encoding.GetUint64(src[off : off+8]))
		off += 8
	}

	if len(src[off:]) < 1 {
		return EmbeddingMeta{}, false
	}
	hasErr := src[off]
	off++
	if hasErr == 1 {
		b, nn, ok := encoding.GetLenPrefixed(src[off:])
		if !ok {
			return EmbeddingMeta{}, false
		}
		m.LastError = string(b)
		off += nn
	}

	if len(src[off:]) < 1 {
		return EmbeddingMeta{}, false
	}
	hasVec := src[off]
	off++
	if hasVec == 1 {
		dim, dn := encoding.GetVarint(src[off:])
		if dn == 0 {
			return EmbeddingMeta{}, false
		}
		off += dn
		vec := make([]float32, dim)
		for i := range vec {
			if len(src[off:]) < 4 {
				return EmbeddingMeta{}, false
			}
			vec[i] = math.Float32frombits(encoding.GetUint32(src[off : off+4]))
			off += 4
		}
		m.Vector = vec
	}

	return m, true
}

// sortStrings is a tiny insertion sort to avoid pulling in "sort" for
// the handful of columns a table typically has; falls back cleanly
// for larger schemas since correctness, not asymptotic speed, is what
// matters for a deterministic on-disk encoding order.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
