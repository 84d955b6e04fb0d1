//go:build !unix

package lock

import "os"

// Non-unix platforms fall back to an advisory create-or-fail marker:
// weaker than flock (a crashed process leaves the marker behind) but
// enough to catch two live engines in one directory.

func flock(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() > 0 {
		return os.ErrExist
	}
	return nil
}

func funlock(file *os.File) error {
	return file.Truncate(0)
}
