package sstable

import (
	"os"
	"sort"

	"github.com/sarveshkapre/embeddb/internal/encoding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Reader provides point lookup and full scans over one SST file. Open
// verifies the header, footer magic, and offset-table checksum up
// front and keeps the offset table in memory; individual entries are
// CRC-checked lazily as they are read.
type Reader struct {
	file     *os.File
	filePath string
	header   Header
	offsets  []OffsetEntry
	size     int64
}

// Open validates path and loads its offset table. It fails with a
// Corruption error for a torn or mis-framed file; the caller decides
// whether that is fatal (a referenced SST) or means "treat as absent"
// (an orphan from a crashed flush).
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}
	r := &Reader{file: file, filePath: path}
	if err := r.init(); err != nil {
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) init() error {
	info, err := r.file.Stat()
	if err != nil {
		return errors.NewIOError("stat", r.filePath, err)
	}
	r.size = info.Size()

	headerBuf := make([]byte, HeaderSize)
	if _, err := r.file.ReadAt(headerBuf, 0); err != nil {
		return errors.NewCorruptionError(r.filePath, 0, "short header")
	}
	header, err := DecodeHeader(r.filePath, headerBuf)
	if err != nil {
		return err
	}
	r.header = header

	tableLen := int64(header.RowCount) * offsetPairSize
	footerSize := 4 + tableLen + 4 + 8
	footerStart := r.size - footerSize
	if footerStart < HeaderSize {
		return errors.NewCorruptionError(r.filePath, r.size, "file too short for footer")
	}

	footer := make([]byte, footerSize)
	if _, err := r.file.ReadAt(footer, footerStart); err != nil {
		return errors.NewCorruptionError(r.filePath, footerStart, "short footer")
	}
	if encoding.GetUint64(footer[footerSize-8:]) != FooterMagic {
		return errors.NewCorruptionError(r.filePath, r.size-8, "missing footer magic")
	}
	if int64(encoding.GetUint32(footer[0:4])) != tableLen {
		return errors.NewCorruptionError(r.filePath, footerStart, "offset table length mismatch")
	}
	table := footer[4 : 4+tableLen]
	crc := encoding.GetUint32(footer[4+tableLen : 4+tableLen+4])
	if !encoding.VerifyChecksum(table, crc) {
		return errors.NewCorruptionError(r.filePath, footerStart, "offset table crc mismatch")
	}

	r.offsets = make([]OffsetEntry, header.RowCount)
	for i := range r.offsets {
		r.offsets[i] = OffsetEntry{
			RowID:  int64(encoding.GetUint64(table[i*offsetPairSize:])),
			Offset: encoding.GetUint64(table[i*offsetPairSize+8:]),
		}
	}
	return nil
}

// Header returns the file's decoded header.
func (r *Reader) Header() Header { return r.header }

// RowCount returns the number of entries, tombstones included.
func (r *Reader) RowCount() int64 { return int64(r.header.RowCount) }

// VectorDim returns the dimensionality of vectors in this file, or 0.
func (r *Reader) VectorDim() int { return int(r.header.VectorDim) }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Path returns the file's path.
func (r *Reader) Path() string { return r.filePath }

// Find binary-searches the offset table for rowID and reads its
// entry. ok is false when the id is not present in this file.
func (r *Reader) Find(rowID int64) (types.RowEntry, bool, error) {
	i := sort.Search(len(r.offsets), func(i int) bool {
		return r.offsets[i].RowID >= rowID
	})
	if i >= len(r.offsets) || r.offsets[i].RowID != rowID {
		return types.RowEntry{}, false, nil
	}
	e, err := r.readEntryAt(int64(r.offsets[i].Offset))
	if err != nil {
		return types.RowEntry{}, false, err
	}
	return e, true, nil
}

// Scan reads every entry in row-id order.
func (r *Reader) Scan() ([]types.RowEntry, error) {
	out := make([]types.RowEntry, 0, len(r.offsets))
	for _, oe := range r.offsets {
		e, err := r.readEntryAt(int64(oe.Offset))
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *Reader) readEntryAt(offset int64) (types.RowEntry, error) {
	prefix := make([]byte, entryPrefixSize)
	if _, err := r.file.ReadAt(prefix, offset); err != nil {
		return types.RowEntry{}, errors.NewCorruptionError(r.filePath, offset, "short entry prefix")
	}
	rowID := int64(encoding.GetUint64(prefix[0:8]))
	kind := types.EntryKind(prefix[8])
	bodyLen := int64(encoding.GetUint32(prefix[9:13]))

	rest := make([]byte, bodyLen+4)
	if _, err := r.file.ReadAt(rest, offset+entryPrefixSize); err != nil {
		return types.RowEntry{}, errors.NewCorruptionError(r.filePath, offset, "short entry body")
	}
	body := rest[:bodyLen]
	crc := encoding.GetUint32(rest[bodyLen:])

	framed := make([]byte, 0, entryPrefixSize+len(body))
	framed = append(framed, prefix...)
	framed = append(framed, body...)
	if !encoding.VerifyChecksum(framed, crc) {
		return types.RowEntry{}, errors.NewCorruptionError(r.filePath, offset, "entry crc mismatch")
	}

	e, ok := decodeEntryBody(rowID, kind, body)
	if !ok {
		return types.RowEntry{}, errors.NewCorruptionError(r.filePath, offset, "malformed entry body")
	}
	return e, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return errors.NewIOError("close", r.filePath, err)
	}
	return nil
}

// Verify reports whether the file at path is a complete, well-formed
// SST: header and footer valid and every entry passing its CRC. It is
// stricter than Open, which does not read the entries.
func Verify(path string) error {
	r, err := Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = r.Scan()
	return err
}
