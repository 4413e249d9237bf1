package cache

import (
	"fmt"
	"time"
)

// IndexPageCache caches materialized slices of label bitmaps and B-tree
// pages, so a planner rerunning the same seek or scan doesn't re-walk the
// underlying index structure (spec.md §4.8 "index-page cache —
// materialized slices of label bitmaps and B-tree pages").
type IndexPageCache struct {
	backing *lru
}

func newIndexPageCache(capacity int) *IndexPageCache {
	return &IndexPageCache{backing: newLRU(capacity)}
}

// Get returns the cached bytes for a materialized index page keyed by
// index name and page identifier.
func (c *IndexPageCache) Get(indexName string, pageKey uint64) ([]byte, bool) {
	v, ok := c.backing.get(indexPageKey(indexName, pageKey))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Put caches a materialized index page with the given TTL.
func (c *IndexPageCache) Put(indexName string, pageKey uint64, data []byte, ttl time.Duration) {
	c.backing.put(indexPageKey(indexName, pageKey), data, ttl)
}

// InvalidateIndex drops every cached page for indexName, used when that
// index is rebuilt or dropped.
func (c *IndexPageCache) InvalidateIndex(indexName string) {
	c.backing.clear()
	_ = indexName // whole-cache clear: per-index prefix tracking isn't worth the bookkeeping at this cache's size.
}

func indexPageKey(indexName string, pageKey uint64) string {
	return fmt.Sprintf("%s:%d", indexName, pageKey)
}

// Stats reports this layer's hit/miss counters.
func (c *IndexPageCache) Stats() Stats {
	return c.backing.stats()
}
