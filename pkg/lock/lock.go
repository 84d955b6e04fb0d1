// Package lock implements the exclusive data-directory lock held for
// an engine's lifetime. The lock is an OS-level file lock on
// embeddb.lock, so a crashed process releases it automatically; the
// file body records a holder token and pid purely as a diagnostic for
// the AlreadyOpen error path.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sarveshkapre/embeddb/pkg/errors"
)

// FileName is the lock file's name inside the data directory.
const FileName = "embeddb.lock"

// DirLock is a held exclusive lock on a data directory.
type DirLock struct {
	file   *os.File
	path   string
	holder string
}

// Acquire takes the exclusive lock on dir's lock file, failing with
// AlreadyOpen immediately if another process holds it.
func Acquire(dir string) (*DirLock, error) {
	path := filepath.Join(dir, FileName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.NewIOError("open", path, err)
	}

	if err := flock(file); err != nil {
		prev := readHolder(file)
		_ = file.Close()
		if prev != "" {
			return nil, errors.AlreadyOpen("%s is locked by %s", dir, prev)
		}
		return nil, errors.AlreadyOpen("%s is locked by another process", dir)
	}

	holder := fmt.Sprintf("%s pid=%d", uuid.NewString(), os.Getpid())
	if err := file.Truncate(0); err != nil {
		_ = funlock(file)
		_ = file.Close()
		return nil, errors.NewIOError("truncate", path, err)
	}
	if _, err := file.WriteAt([]byte(holder+"\n"), 0); err != nil {
		_ = funlock(file)
		_ = file.Close()
		return nil, errors.NewIOError("write", path, err)
	}

	return &DirLock{file: file, path: path, holder: holder}, nil
}

// Holder returns this lock's holder token.
func (l *DirLock) Holder() string { return l.holder }

// Path returns the lock file's path.
func (l *DirLock) Path() string { return l.path }

// Release drops the lock and closes the file. The lock file itself is
// left in place; its presence without a held flock means nothing.
func (l *DirLock) Release() error {
	if err := funlock(l.file); err != nil {
		_ = l.file.Close()
		return errors.NewIOError("unlock", l.path, err)
	}
	if err := l.file.Close(); err != nil {
		return errors.NewIOError("close", l.path, err)
	}
	return nil
}

func readHolder(file *os.File) string {
	buf := make([]byte, 128)
	n, err := file.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf[:n]))
}
