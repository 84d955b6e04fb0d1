// Package encoding provides the low-level binary primitives shared by
// the WAL and SST writers/readers: fixed-width big-endian integers,
// varints, length-prefixed byte strings, and CRC32 checksums. Record-
// and entry-level framing lives in pkg/wal and pkg/sstable; this
// package only supplies the byte-level building blocks.
package encoding

import (
	"encoding/binary"
	"hash/crc32"
)

// ByteOrder is big-endian throughout EmbedDB's on-disk formats.
var ByteOrder = binary.BigEndian

func PutUint16(dst []byte, v uint16) int { ByteOrder.PutUint16(dst, v); return 2 }
func PutUint32(dst []byte, v uint32) int { ByteOrder.PutUint32(dst, v); return 4 }
func PutUint64(dst []byte, v uint64) int { ByteOrder.PutUint64(dst, v); return 8 }

func GetUint16(src []byte) uint16 { return ByteOrder.Uint16(src) }
func GetUint32(src []byte) uint32 { return ByteOrder.Uint32(src) }
func GetUint64(src []byte) uint64 { return ByteOrder.Uint64(src) }

// PutVarint encodes a variable-length unsigned integer, returning the
// number of bytes written.
func PutVarint(dst []byte, v uint64) int {
	return binary.PutUvarint(dst, v)
}

// GetVarint decodes a variable-length unsigned integer, returning the
// value and the number of bytes consumed. A zero-length result (n==0)
// indicates insufficient data.
func GetVarint(src []byte) (uint64, int) {
	return binary.Uvarint(src)
}

// VarintLen returns the number of bytes PutVarint would need for v.
func VarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// crc32Table uses the Castagnoli polynomial, matching the checksum
// choice used across WAL frames and SST entries/footers.
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// Checksum computes the CRC32C checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

// VerifyChecksum reports whether data's checksum equals expected.
func VerifyChecksum(data []byte, expected uint32) bool {
	return Checksum(data) == expected
}

// PutLenPrefixed appends a 4-byte big-endian length followed by b.
func PutLenPrefixed(dst []byte, b []byte) []byte {
	var lenBuf [4]byte
	PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}

// GetLenPrefixed reads a 4-byte big-endian length followed by that
// many bytes from src, returning the slice and the total bytes
// consumed (4+len). ok is false if src is too short.
func GetLenPrefixed(src []byte) (b []byte, consumed int, ok bool) {
	if len(src) < 4 {
		return nil, 0, false
	}
	n := int(GetUint32(src[:4]))
	if len(src) < 4+n {
		return nil, 0, false
	}
	return src[4 : 4+n], 4 + n, true
}

// ErrInsufficientData is returned by decoders when the input is
// shorter than the format requires.
var ErrInsufficientData = &insufficientDataError{}

type insufficientDataError struct{}

func (e *insufficientDataError) Error() string { return "encoding: insufficient data" }
