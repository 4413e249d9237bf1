package record

import (
	"github.com/nexusdb/nexus/internal/page"
)

// slotIO addresses fixed-width records directly by slot index within a
// page-cached backing file — "An ID is a direct slot offset; reads and
// writes address slots without an intermediate indirection" (spec.md
// §4.3).
type slotIO struct {
	cache      *page.Cache
	backend    *fileBackend
	recordSize int
	perPage    int
}

func newSlotIO(path string, recordSize int, cacheBudget int) (*slotIO, error) {
	be, err := newFileBackend(path)
	if err != nil {
		return nil, err
	}
	return &slotIO{
		cache:      page.New(be, cacheBudget),
		backend:    be,
		recordSize: recordSize,
		perPage:    page.Payload / recordSize,
	}, nil
}

func (s *slotIO) locate(id uint64) (page.ID, int) {
	pid := page.ID(id / uint64(s.perPage))
	off := int(id%uint64(s.perPage)) * s.recordSize
	return pid, off
}

func (s *slotIO) read(id uint64, out []byte) error {
	pid, off := s.locate(id)
	g, err := s.cache.Pin(pid, false)
	if err != nil {
		return err
	}
	defer g.Release()
	copy(out, g.Page().Payload()[off:off+s.recordSize])
	return nil
}

// write stores a record at id. The page backing id must already have been
// seeded via ensurePage (the owning Store does this exactly once, the
// first time a slot on a given page is allocated); write itself never
// seeds a page, so it is safe to call for both first-time population of a
// slot and later in-place updates to any slot on an already-seeded page.
func (s *slotIO) write(id uint64, in []byte) error {
	pid, off := s.locate(id)
	g, err := s.cache.Pin(pid, true)
	if err != nil {
		return err
	}
	defer g.Release()
	copy(g.Page().Payload()[off:off+s.recordSize], in)
	return nil
}

// ensurePage seeds a fresh, zeroed, checksummed page into the cache the
// first time any slot on it is allocated. Calling it more than once for
// the same page would wipe sibling slots already written there, so the
// owning Store calls it only when id%perPage==0 for a newly allocated id.
func (s *slotIO) ensurePage(pid page.ID) error {
	g, err := s.cache.PinNew(pid)
	if err != nil {
		return err
	}
	g.Release()
	return nil
}

func (s *slotIO) flushAll() error { return s.cache.FlushAll() }

func (s *slotIO) close() error {
	if err := s.cache.FlushAll(); err != nil {
		return err
	}
	return s.backend.Close()
}
