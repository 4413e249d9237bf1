package record

import (
	"context"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/page"
)

// mappedFile abstracts the growable, memory-mapped backing file so the
// same page.Backend implementation works over the unix mmap path and the
// portable fallback.
type mappedFile interface {
	Bytes() []byte
	Grow(newSize int64) error
	Sync() error
	Close() error
}

const initialFileSize = 16 * page.Size

// fileBackend implements page.Backend over a mappedFile, doubling its size
// under a growth lock when a read or write addresses unmapped space
// (spec.md §4.3 "Growth is an fsync-serialized operation; concurrent
// writers wait on a growth lock").
type fileBackend struct {
	growMu sync.Mutex
	mf     mappedFile
}

func newFileBackend(path string) (*fileBackend, error) {
	mf, err := openMappedFile(path, initialFileSize)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "open backing file %s", path)
	}
	return &fileBackend{mf: mf}, nil
}

func (b *fileBackend) ensureCapacity(need int64) error {
	b.growMu.Lock()
	defer b.growMu.Unlock()
	if int64(len(b.mf.Bytes())) >= need {
		return nil
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	return backoff.Retry(func() error {
		cur := int64(len(b.mf.Bytes()))
		if cur >= need {
			return nil
		}
		newSize := cur * 2
		for newSize < need {
			newSize *= 2
		}
		return b.mf.Grow(newSize)
	}, backoff.WithContext(bo, context.Background()))
}

func (b *fileBackend) offset(id page.ID) int64 { return int64(id) * page.Size }

func (b *fileBackend) ReadPageAt(id page.ID, buf []byte) error {
	off := b.offset(id)
	if err := b.ensureCapacity(off + page.Size); err != nil {
		return err
	}
	copy(buf, b.mf.Bytes()[off:off+page.Size])
	return nil
}

func (b *fileBackend) WritePageAt(id page.ID, buf []byte) error {
	off := b.offset(id)
	if err := b.ensureCapacity(off + page.Size); err != nil {
		return err
	}
	copy(b.mf.Bytes()[off:off+page.Size], buf)
	return nil
}

func (b *fileBackend) Sync() error { return b.mf.Sync() }

func (b *fileBackend) Close() error { return b.mf.Close() }
