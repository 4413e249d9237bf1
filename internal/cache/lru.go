// Package cache implements C8: the MultiLayerCache composing the page
// cache (internal/page) with an object cache, an index-page cache, and a
// two-part query cache (plan + result), queried in that order (spec.md
// §4.8).
//
// The LRU+TTL shape here is grounded on the cypher query cache found in
// the retrieved corpus (other_examples' nornicdb cypher package): a
// map plus a container/list recency order, evicting the least-recently-used
// entry once the size bound is hit and treating an expired entry as a
// miss on read rather than proactively sweeping it.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type lruEntry struct {
	key       string
	value     any
	expiresAt time.Time
	hasTTL    bool
}

// lru is a thread-safe, size-bounded, optionally TTL-expiring cache keyed
// by string. It underlies every cache layer above the page cache.
type lru struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	hits     int64
	misses   int64
}

func newLRU(capacity int) *lru {
	if capacity < 1 {
		capacity = 1
	}
	return &lru{capacity: capacity, ll: list.New(), items: make(map[string]*list.Element)}
}

// get returns the value for key if present and unexpired, moving it to
// the front of the recency list.
func (c *lru) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*lruEntry)
	if e.hasTTL && time.Now().After(e.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	return e.value, true
}

// put inserts or replaces key's value. ttl of zero means no expiration.
func (c *lru) put(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry)
		e.value = value
		e.hasTTL = ttl > 0
		if e.hasTTL {
			e.expiresAt = time.Now().Add(ttl)
		}
		c.ll.MoveToFront(el)
		return
	}
	e := &lruEntry{key: key, value: value}
	if ttl > 0 {
		e.hasTTL = true
		e.expiresAt = time.Now().Add(ttl)
	}
	el := c.ll.PushFront(e)
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		c.evictOldest()
	}
}

func (c *lru) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*lruEntry).key)
}

func (c *lru) remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *lru) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[string]*list.Element)
}

// Stats reports the hit/miss counters and current population of a cache
// layer.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

func (c *lru) stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: c.ll.Len()}
}
