// Package dirlock enforces the single-writer-process discipline spec.md §5
// calls for: at most one Engine may hold a given data directory open for
// writing at a time. It advisory-locks a LOCK file inside the directory,
// mirroring this codebase's internal/lockfile package.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrHeld is returned when the directory is already locked by another
// process.
var ErrHeld = errors.New("dirlock: data directory already locked by another process")

// Lock is a held advisory lock on a data directory's LOCK file. It must be
// released via Unlock on every exit path, including error and cancellation,
// per spec.md §5 "Resource acquisition".
type Lock struct {
	file *os.File
	path string
}

// Acquire creates (if absent) and exclusively, non-blockingly locks
// <dir>/LOCK. It fails fast with ErrHeld rather than waiting, since a
// second writer for the same directory is a configuration mistake, not a
// condition to wait out.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, "LOCK")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("dirlock: open %s: %w", path, err)
	}
	if err := flockExclusiveNonBlock(f); err != nil {
		f.Close()
		if errors.Is(err, ErrHeld) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("dirlock: lock %s: %w", path, err)
	}
	if err := f.Truncate(0); err != nil {
		flockUnlock(f)
		f.Close()
		return nil, fmt.Errorf("dirlock: truncate %s: %w", path, err)
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		flockUnlock(f)
		f.Close()
		return nil, fmt.Errorf("dirlock: write pid to %s: %w", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// Unlock releases the lock and closes the underlying file handle. It is
// safe to call more than once.
func (l *Lock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := flockUnlock(l.file)
	cerr := l.file.Close()
	l.file = nil
	if err != nil {
		return err
	}
	return cerr
}
