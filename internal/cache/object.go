package cache

import (
	"fmt"
	"time"

	"github.com/nexusdb/nexus/internal/record"
)

// EntityKind distinguishes nodes from relationships in an ObjectKey.
type EntityKind uint8

const (
	KindNode EntityKind = iota
	KindRelationship
)

// ObjectKey identifies one deserialized entity snapshot. Including
// CreatedEpoch means a tombstoned-and-recreated id at the same slot
// never collides with a stale cached snapshot (spec.md §4.8 "object
// cache ... keyed by id").
type ObjectKey struct {
	Kind         EntityKind
	ID           uint64
	CreatedEpoch uint64
}

func (k ObjectKey) string() string {
	return fmt.Sprintf("%d:%d:%d", k.Kind, k.ID, k.CreatedEpoch)
}

// ObjectCache caches deserialized nodes and relationships, bounded by
// entry count with an LRU+TTL eviction policy (spec.md §4.8 "object
// cache — deserialized nodes/relationships/properties keyed by id,
// bounded by memory, LRU with TTL").
type ObjectCache struct {
	nodes *lru
	rels  *lru
}

func newObjectCache(capacity int) *ObjectCache {
	return &ObjectCache{nodes: newLRU(capacity), rels: newLRU(capacity)}
}

// GetNode returns the cached node for key, if present and unexpired.
func (c *ObjectCache) GetNode(key ObjectKey) (*record.Node, bool) {
	v, ok := c.nodes.get(key.string())
	if !ok {
		return nil, false
	}
	return v.(*record.Node), true
}

// PutNode caches node under key with the given TTL (zero means no
// expiration).
func (c *ObjectCache) PutNode(key ObjectKey, node *record.Node, ttl time.Duration) {
	c.nodes.put(key.string(), node, ttl)
}

// GetRelationship returns the cached relationship for key, if present and
// unexpired.
func (c *ObjectCache) GetRelationship(key ObjectKey) (*record.Relationship, bool) {
	v, ok := c.rels.get(key.string())
	if !ok {
		return nil, false
	}
	return v.(*record.Relationship), true
}

// PutRelationship caches rel under key with the given TTL.
func (c *ObjectCache) PutRelationship(key ObjectKey, rel *record.Relationship, ttl time.Duration) {
	c.rels.put(key.string(), rel, ttl)
}

// Invalidate drops both cached forms for an id, used when a writer
// modifies or deletes the entity in place.
func (c *ObjectCache) Invalidate(key ObjectKey) {
	c.nodes.remove(key.string())
	c.rels.remove(key.string())
}

// Stats reports the node and relationship sub-cache statistics.
func (c *ObjectCache) Stats() (nodes, relationships Stats) {
	return c.nodes.stats(), c.rels.stats()
}
