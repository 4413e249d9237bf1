//go:build unix

package record

import (
	"os"

	"golang.org/x/sys/unix"
)

// unixMappedFile memory-maps a growable backing file, the storage
// substrate spec.md §4.3 calls for ("Files are memory-mapped and grow by
// doubling from a small initial size").
type unixMappedFile struct {
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
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &unixMappedFile{f: f, data: data}, nil
}

func (m *unixMappedFile) Bytes() []byte { return m.data }

func (m *unixMappedFile) Grow(newSize int64) error {
	if int64(len(m.data)) >= newSize {
		return nil
	}
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	if err := m.f.Truncate(newSize); err != nil {
		return err
	}
	data, err := unix.Mmap(int(m.f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}

func (m *unixMappedFile) Sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

func (m *unixMappedFile) Close() error {
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	return m.f.Close()
}
