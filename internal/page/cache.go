package page

import (
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Backend is the minimal random-access file interface a Cache reads pages
// through and writes dirty pages back to.
type Backend interface {
	ReadPageAt(id ID, buf []byte) error
	WritePageAt(id ID, buf []byte) error
	Sync() error
}

// Stats are the counters spec.md §4.2 requires a PageCache to expose.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Dirty     int
}

// HitRate returns hits / (hits + misses), or 0 if the cache has never been
// queried.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type frame struct {
	page *Page
	pin  int32
	ref  bool
	dirt bool
}

// Cache is a fixed-budget, pinning page cache over one Backend. It is safe
// for concurrent use by multiple readers and the single writer (spec.md §5
// "The PageCache is shared and internally protected").
type Cache struct {
	mu      sync.Mutex
	backend Backend
	budget  int // max resident frames

	frames map[ID]*frame
	order  []ID // clock ring
	hand   int

	hits, misses, evictions uint64
}

// New creates a Cache over backend with room for budget resident pages.
func New(backend Backend, budget int) *Cache {
	if budget < 1 {
		budget = 1
	}
	return &Cache{
		backend: backend,
		budget:  budget,
		frames:  make(map[ID]*frame, budget),
	}
}

// Guard is a pinned reference to a resident page. The pinned page cannot be
// evicted until Release is called; Release MUST run on every exit path.
type Guard struct {
	c     *Cache
	id    ID
	write bool
}

// Page returns the guarded page.
func (g *Guard) Page() *Page {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	return g.c.frames[g.id].page
}

// Release unpins the page. If the guard was taken for write, the page is
// marked dirty as part of releasing it.
func (g *Guard) Release() {
	g.c.mu.Lock()
	defer g.c.mu.Unlock()
	fr, ok := g.c.frames[g.id]
	if !ok {
		return
	}
	if g.write {
		fr.dirt = true
	}
	fr.pin--
	if fr.pin < 0 {
		fr.pin = 0
	}
}

// Pin acquires a reference to page id, loading it from the backend on a
// miss. write indicates the caller intends to mutate the page; on Release
// the page is marked dirty. Returns CacheError::Full, fatal for the caller,
// only when the budget is exhausted and no unpinned page can be evicted.
func (c *Cache) Pin(id ID, write bool) (*Guard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if fr, ok := c.frames[id]; ok {
		fr.pin++
		fr.ref = true
		c.hits++
		return &Guard{c: c, id: id, write: write}, nil
	}
	c.misses++

	if len(c.frames) >= c.budget {
		if !c.evictLocked() {
			return nil, nexuserr.New(nexuserr.KindCacheFull, "page cache exhausted: no unpinned page to evict (budget=%d)", c.budget)
		}
	}

	p := newPage(id)
	if err := c.backend.ReadPageAt(id, p.data[:]); err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "read page %d", id)
	}
	if !p.verifyChecksum() {
		return nil, nexuserr.New(nexuserr.KindPageCorrupted, "page %d failed CRC32 verification", id)
	}

	fr := &frame{page: p, pin: 1, ref: true}
	c.frames[id] = fr
	c.order = append(c.order, id)
	return &Guard{c: c, id: id, write: write}, nil
}

// PinNew pins a freshly zeroed page (used when allocating, before any bytes
// have been written to the backend).
func (c *Cache) PinNew(id ID) (*Guard, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.frames[id]; ok {
		return nil, nexuserr.New(nexuserr.KindIO, "page %d already resident", id)
	}
	if len(c.frames) >= c.budget {
		if !c.evictLocked() {
			return nil, nexuserr.New(nexuserr.KindCacheFull, "page cache exhausted: no unpinned page to evict (budget=%d)", c.budget)
		}
	}
	p := newPage(id)
	p.sealChecksum()
	fr := &frame{page: p, pin: 1, ref: true, dirt: true}
	c.frames[id] = fr
	c.order = append(c.order, id)
	return &Guard{c: c, id: id, write: true}, nil
}

// evictLocked runs the clock hand for at most two full turns looking for an unpinned,
// unreferenced frame to evict, clearing reference bits along the way. It
// must be called with c.mu held. Returns false if the budget is full of
// pinned pages.
func (c *Cache) evictLocked() bool {
	n := len(c.order)
	if n == 0 {
		return false
	}
	for sweep := 0; sweep < 2*n; sweep++ {
		idx := c.hand % len(c.order)
		id := c.order[idx]
		fr := c.frames[id]
		if fr.pin > 0 {
			c.hand++
			continue
		}
		if fr.ref {
			fr.ref = false
			c.hand++
			continue
		}
		// Evict it. A dirty unpinned page is flushed before eviction: the
		// cache never silently drops a write.
		if fr.dirt {
			fr.page.sealChecksum()
			if err := c.backend.WritePageAt(id, fr.page.data[:]); err == nil {
				fr.dirt = false
			} else {
				// Can't safely evict a page we failed to flush.
				c.hand++
				continue
			}
		}
		delete(c.frames, id)
		c.order = append(c.order[:idx], c.order[idx+1:]...)
		if c.hand > 0 {
			c.hand--
		}
		c.evictions++
		return true
	}
	return false
}

// MarkDirty adds id to the dirty set. Pages are also marked dirty
// automatically when a write Guard is released; this is for callers that
// mutate through Page() directly and release with write=false for some
// reason (not expected in normal use, kept for parity with spec.md's
// explicit mark_dirty contract).
func (c *Cache) MarkDirty(id ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fr, ok := c.frames[id]; ok {
		fr.dirt = true
	}
}

// Flush writes a single dirty page back to the backend and clears its
// dirty bit.
func (c *Cache) Flush(id ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fr, ok := c.frames[id]
	if !ok || !fr.dirt {
		return nil
	}
	fr.page.sealChecksum()
	if err := c.backend.WritePageAt(id, fr.page.data[:]); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "flush page %d", id)
	}
	fr.dirt = false
	return nil
}

// FlushAll writes every dirty page back to the backend and fsyncs it,
// draining the dirty set (spec.md §4.2).
func (c *Cache) FlushAll() error {
	c.mu.Lock()
	dirty := make([]ID, 0)
	for id, fr := range c.frames {
		if fr.dirt {
			dirty = append(dirty, id)
		}
	}
	c.mu.Unlock()

	for _, id := range dirty {
		if err := c.Flush(id); err != nil {
			return err
		}
	}
	if len(dirty) > 0 {
		if err := c.backend.Sync(); err != nil {
			return nexuserr.Wrap(nexuserr.KindIO, err, "fsync after flush_all")
		}
	}
	return nil
}

// Prefetch is a best-effort hint: it warms the cache for [from, to) and
// never blocks the caller on an I/O failure (spec.md §4.2).
func (c *Cache) Prefetch(from, to ID) {
	for id := from; id < to; id++ {
		g, err := c.Pin(id, false)
		if err != nil {
			return
		}
		g.Release()
	}
}

// Stats returns a snapshot of the cache's counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	dirty := 0
	for _, fr := range c.frames {
		if fr.dirt {
			dirty++
		}
	}
	return Stats{Hits: c.hits, Misses: c.misses, Evictions: c.evictions, Dirty: dirty}
}
