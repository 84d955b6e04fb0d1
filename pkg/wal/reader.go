package wal

import (
	"io"
	"os"

	"github.com/sarveshkapre/embeddb/internal/encoding"
	"github.com/sarveshkapre/embeddb/pkg/errors"
)

// Reader replays a WAL file frame by frame. A clean
// EOF between frames ends replay with no error; a frame that is
// truncated or fails its CRC check is only tolerated when it is the
// last thing in the file (a crash mid-append) — that tail is silently
// discarded. The same symptom occurring with more file left after it
// is genuine corruption and is reported.
type Reader struct {
	file     *os.File
	filePath string
}

// NewReader opens path for sequential replay.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}
	return &Reader{file: file, filePath: path}, nil
}

// ReplayResult is the outcome of a full WAL replay.
type ReplayResult struct {
	Records   []Record
	Truncated bool // a trailing partial/corrupt frame was discarded
}

// ReadAll replays every well-formed record in the file, in write
// order, stopping at the first unreadable frame.
func (r *Reader) ReadAll() (ReplayResult, error) {
	info, err := r.file.Stat()
	if err != nil {
		return ReplayResult{}, errors.NewIOError("stat", r.filePath, err)
	}
	size := info.Size()

	var result ReplayResult
	var offset int64

	for offset < size {
		lenBuf := make([]byte, 4)
		n, err := io.ReadFull(r.file, lenBuf)
		if err != nil || n < 4 {
			result.Truncated = true
			break
		}
		payloadLen := int64(encoding.GetUint32(lenBuf))
		frameEnd := offset + 4 + payloadLen + 4
		if frameEnd > size {
			result.Truncated = true
			break
		}

		body := make([]byte, payloadLen+4)
		if _, err := io.ReadFull(r.file, body); err != nil {
			result.Truncated = true
			break
		}
		payload := body[:payloadLen]
		crc := encoding.GetUint32(body[payloadLen:])

		if !encoding.VerifyChecksum(payload, crc) {
			if frameEnd == size {
				// Crash mid-append on the last frame: discard the tail.
				result.Truncated = true
				break
			}
			return ReplayResult{}, errors.NewCorruptionError(r.filePath, offset, "crc mismatch mid-stream")
		}

		rec, ok := DecodeRecord(payload)
		if !ok {
			if frameEnd == size {
				result.Truncated = true
				break
			}
			return ReplayResult{}, errors.NewCorruptionError(r.filePath, offset, "malformed record payload")
		}

		result.Records = append(result.Records, rec)
		offset = frameEnd
	}

	return result, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return errors.NewIOError("close", r.filePath, err)
	}
	return nil
}
