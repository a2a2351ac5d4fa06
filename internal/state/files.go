package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockStaleAfter = 2 * time.Hour

// writeFileAtomic writes data to path via a temp file in the same directory
// and a rename, so readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// RunLock is an exclusive per-content-type lock file. Two concurrent runs
// of the same content type would double-consume the used set, so the second
// one is rejected instead.
type RunLock struct {
	path string
}

// AcquireRunLock creates the lock file exclusively. A lock left behind by a
// crashed run is considered stale after two hours and replaced.
func AcquireRunLock(path string) (*RunLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return &RunLock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}

		info, statErr := os.Stat(path)
		if statErr == nil && time.Since(info.ModTime()) > lockStaleAfter {
			os.Remove(path)
			continue
		}
		return nil, fmt.Errorf("another run holds the lock at %s", path)
	}
	return nil, fmt.Errorf("another run holds the lock at %s", path)
}

// Release removes the lock file.
func (l *RunLock) Release() error {
	return os.Remove(l.path)
}
