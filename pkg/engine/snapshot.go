package engine

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sarveshkapre/embeddb/pkg/errors"
	"github.com/sarveshkapre/embeddb/pkg/lock"
)

// SnapshotExport checkpoints the database and copies the entire data
// directory (excluding the lock file) to dest. dest must not already
// contain files. The exported tree is itself an openable database.
func (e *Engine) SnapshotExport(dest string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := ensureEmptyDir(dest); err != nil {
		return err
	}
	if err := e.checkpointLocked(); err != nil {
		return err
	}
	if err := copyTree(e.dataDir, dest); err != nil {
		return err
	}
	e.log.Info("snapshot exported", "dest", dest)
	return nil
}

// SnapshotRestore copies an exported snapshot at src into dest, which
// must be empty or absent. The restored directory opens as a database
// equivalent to the one exported. A standalone function: restore
// targets a directory no engine has open.
func SnapshotRestore(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.NewIOError("stat", src, err)
	}
	if !info.IsDir() {
		return errors.InvalidArgument("snapshot source %q is not a directory", src)
	}
	if err := ensureEmptyDir(dest); err != nil {
		return err
	}
	return copyTree(src, dest)
}

// ensureEmptyDir creates dir if missing and refuses a non-empty one.
func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return errors.NewIOError("mkdir", dir, mkErr)
			}
			return nil
		}
		return errors.NewIOError("readdir", dir, err)
	}
	if len(entries) > 0 {
		return errors.InvalidArgument("destination %q is not empty", dir)
	}
	return nil
}

// copyTree copies src into dest recursively, skipping the lock file.
func copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.NewIOError("walk", path, err)
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return errors.NewIOError("rel", path, err)
		}
		if rel == "." {
			return nil
		}
		if info.Name() == lock.FileName {
			return nil
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.NewIOError("mkdir", target, err)
			}
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewIOError("open", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewIOError("create", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return errors.NewIOError("copy", dest, err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return errors.NewIOError("sync", dest, err)
	}
	if err := out.Close(); err != nil {
		return errors.NewIOError("close", dest, err)
	}
	return nil
}
