//go:build !unix

package record

import "os"

// genericMappedFile is the non-unix fallback: it reads the whole backing
// file into a process-private buffer and writes it back on Sync/Grow.
// golang.org/x/sys does not expose a portable mmap on every platform this
// module might target, so non-unix hosts trade the zero-copy mapping for a
// plain buffered file, mirroring this codebase's own unix/windows split
// (internal/lockfile, internal/daemonrunner/flock_unix.go).
type genericMappedFile struct {
	f    *os.File
	data []byte
}

func openMappedFile(path string, initialSize int64) (mappedFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := fi.Size()
	if size == 0 {
		size = initialSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, err
		}
	}
	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		f.Close()
		return nil, err
	}
	return &genericMappedFile{f: f, data: data}, nil
}

func (m *genericMappedFile) Bytes() []byte { return m.data }

func (m *genericMappedFile) Grow(newSize int64) error {
	if int64(len(m.data)) >= newSize {
		return nil
	}
	if err := m.f.Truncate(newSize); err != nil {
		return err
	}
	grown := make([]byte, newSize)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *genericMappedFile) Sync() error {
	if _, err := m.f.WriteAt(m.data, 0); err != nil {
		return err
	}
	return m.f.Sync()
}

func (m *genericMappedFile) Close() error {
	if err := m.Sync(); err != nil {
		return err
	}
	return m.f.Close()
}
