package sstable

import (
	"os"
	"path/filepath"

	"github.com/sarveshkapre/embeddb/internal/encoding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Writer produces one SST file from an ordered stream of entries.
// Entries must arrive in strictly ascending row-id order and any
// vectors they carry must share one dimensionality; both are enforced
// per add so a violation surfaces at its source rather than at read
// time.
//
// The file is written to its final path but is not valid until Finish
// completes: a reader treats a file without a trailing footer magic as
// absent, so a crash mid-write leaves nothing a recovery can mistake
// for data.
type Writer struct {
	file     *os.File
	filePath string

	offsets   []OffsetEntry
	lastRowID int64
	hasEntry  bool
	vectorDim uint32
	offset    uint64
	finished  bool
}

// NewWriter creates the file at path and writes a placeholder header;
// the real header lands in Finish once the row count is known.
func NewWriter(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.NewIOError("create", path, err)
	}
	w := &Writer{file: file, filePath: path, offset: HeaderSize}
	if _, err := file.Write(make([]byte, HeaderSize)); err != nil {
		_ = file.Close()
		return nil, errors.NewIOError("write", path, err)
	}
	return w, nil
}

// Add appends one entry. Row ids must strictly increase and vector
// dimensions must be consistent within the file.
func (w *Writer) Add(e types.RowEntry) error {
	if w.finished {
		return errors.InvalidArgument("sstable writer already finished")
	}
	if w.hasEntry && e.RowID <= w.lastRowID {
		return errors.InvalidArgument("sstable entries out of order: row %d after %d", e.RowID, w.lastRowID)
	}
	if e.Meta != nil && e.Meta.Vector != nil {
		dim := uint32(len(e.Meta.Vector))
		if w.vectorDim == 0 {
			w.vectorDim = dim
		} else if w.vectorDim != dim {
			return errors.InvalidArgument("sstable vector dim mismatch: %d vs %d", dim, w.vectorDim)
		}
	}

	frame := encodeEntry(e)
	if _, err := w.file.Write(frame); err != nil {
		return errors.NewIOError("write", w.filePath, err)
	}
	w.offsets = append(w.offsets, OffsetEntry{RowID: e.RowID, Offset: w.offset})
	w.offset += uint64(len(frame))
	w.lastRowID = e.RowID
	w.hasEntry = true
	return nil
}

// Finish writes the footer and the real header, fsyncs the file and
// its directory, and closes the file.
func (w *Writer) Finish() (types.SSTFileMeta, error) {
	if w.finished {
		return types.SSTFileMeta{}, errors.InvalidArgument("sstable writer already finished")
	}
	w.finished = true

	table := make([]byte, len(w.offsets)*offsetPairSize)
	for i, oe := range w.offsets {
		encoding.PutUint64(table[i*offsetPairSize:], uint64(oe.RowID))
		encoding.PutUint64(table[i*offsetPairSize+8:], oe.Offset)
	}

	footer := make([]byte, 0, 4+len(table)+4+8)
	var lenBuf [4]byte
	encoding.PutUint32(lenBuf[:], uint32(len(table)))
	footer = append(footer, lenBuf[:]...)
	footer = append(footer, table...)
	var crcBuf [4]byte
	encoding.PutUint32(crcBuf[:], encoding.Checksum(table))
	footer = append(footer, crcBuf[:]...)
	var magicBuf [8]byte
	encoding.PutUint64(magicBuf[:], FooterMagic)
	footer = append(footer, magicBuf[:]...)

	if _, err := w.file.Write(footer); err != nil {
		_ = w.file.Close()
		return types.SSTFileMeta{}, errors.NewIOError("write", w.filePath, err)
	}

	header := Header{
		Version:   FormatVersion,
		RowCount:  uint32(len(w.offsets)),
		VectorDim: w.vectorDim,
	}
	if _, err := w.file.WriteAt(header.Encode(), 0); err != nil {
		_ = w.file.Close()
		return types.SSTFileMeta{}, errors.NewIOError("write", w.filePath, err)
	}

	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return types.SSTFileMeta{}, errors.NewIOError("sync", w.filePath, err)
	}
	if err := w.file.Close(); err != nil {
		return types.SSTFileMeta{}, errors.NewIOError("close", w.filePath, err)
	}
	if err := syncDir(filepath.Dir(w.filePath)); err != nil {
		return types.SSTFileMeta{}, err
	}

	size := int64(w.offset) + int64(len(footer))
	return types.SSTFileMeta{
		Path:      w.filePath,
		RowCount:  int64(len(w.offsets)),
		VectorDim: int(w.vectorDim),
		Size:      size,
	}, nil
}

// Abort closes and removes a partially written file.
func (w *Writer) Abort() {
	w.finished = true
	_ = w.file.Close()
	_ = os.Remove(w.filePath)
}

// WriteFile writes entries (already sorted by row id) to path in one
// shot. The common case for flush and compaction.
func WriteFile(path string, entries []types.RowEntry) (types.SSTFileMeta, error) {
	w, err := NewWriter(path)
	if err != nil {
		return types.SSTFileMeta{}, err
	}
	for _, e := range entries {
		if err := w.Add(e); err != nil {
			w.Abort()
			return types.SSTFileMeta{}, err
		}
	}
	meta, err := w.Finish()
	if err != nil {
		_ = os.Remove(path)
		return types.SSTFileMeta{}, err
	}
	return meta, nil
}

// syncDir fsyncs a directory so freshly created SSTs survive a crash.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return errors.NewIOError("open", dir, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errors.NewIOError("sync", dir, err)
	}
	return nil
}
