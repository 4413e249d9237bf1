// Package btree implements C7.2: the property B-tree index. For each
// (label, key) pair registered as indexed it keeps an ordered map from
// property value to a bitmap of node ids, supporting equality and range
// lookups (spec.md §4.7.2).
//
// No B-tree library exists anywhere in the retrieved example corpus,
// which is the "no suitable third-party library" exception DESIGN.md
// documents; this is hand-rolled on the standard library's sort package
// as a sorted slice of (value, bitmap) entries searched by binary search,
// which gives the same O(log n) equality seek a B-tree page layout would,
// without needing a disk-page-aware implementation this in-memory index
// doesn't require. Range is a linear pass over every entry.
package btree

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/nexusdb/nexus/internal/propstore"
)

// compare orders two indexable property values. Numeric kinds (Int,
// Float) compare by promoted float64 value, matching Cypher numeric
// promotion rules (spec.md §4.11); strings compare lexicographically.
// Other kinds are not indexable and compare equal-by-identity only
// (ok=false) so callers can reject registering an index on them.
func compare(a, b propstore.Value) (int, bool) {
	an, aNum := numericOf(a)
	bn, bNum := numericOf(b)
	if aNum && bNum {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		default:
			return 0, true
		}
	}
	if a.Kind == propstore.KindString && b.Kind == propstore.KindString {
		switch {
		case a.Str < b.Str:
			return -1, true
		case a.Str > b.Str:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func numericOf(v propstore.Value) (float64, bool) {
	switch v.Kind {
	case propstore.KindInt:
		return float64(v.Int), true
	case propstore.KindFloat:
		return v.Float, true
	default:
		return 0, false
	}
}

type entry struct {
	value propstore.Value
	nodes *roaring64.Bitmap
}

// PerKeyIndex is the ordered (value -> node bitmap) index for one
// (label, key) pair.
type PerKeyIndex struct {
	mu      sync.RWMutex
	entries []entry // sorted ascending by value
}

// NewPerKeyIndex creates an empty per-(label,key) index.
func NewPerKeyIndex() *PerKeyIndex {
	return &PerKeyIndex{}
}

// search returns the index of value's entry and whether it was found.
func (p *PerKeyIndex) search(value propstore.Value) (int, bool) {
	i := sort.Search(len(p.entries), func(i int) bool {
		c, _ := compare(p.entries[i].value, value)
		return c >= 0
	})
	if i < len(p.entries) {
		if c, ok := compare(p.entries[i].value, value); ok && c == 0 {
			return i, true
		}
	}
	return i, false
}

// Add records nodeID under value.
func (p *PerKeyIndex) Add(value propstore.Value, nodeID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, found := p.search(value)
	if found {
		p.entries[i].nodes.Add(nodeID)
		return
	}
	bm := roaring64.New()
	bm.Add(nodeID)
	p.entries = append(p.entries, entry{})
	copy(p.entries[i+1:], p.entries[i:])
	p.entries[i] = entry{value: value, nodes: bm}
}

// Remove unrecords nodeID from value, dropping the entry entirely once its
// bitmap is empty.
func (p *PerKeyIndex) Remove(value propstore.Value, nodeID uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i, found := p.search(value)
	if !found {
		return
	}
	p.entries[i].nodes.Remove(nodeID)
	if p.entries[i].nodes.IsEmpty() {
		p.entries = append(p.entries[:i], p.entries[i+1:]...)
	}
}

// Seek performs an equality lookup (PropertyIndexSeek, spec.md §4.10.1).
func (p *PerKeyIndex) Seek(value propstore.Value) *roaring64.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	i, found := p.search(value)
	if !found {
		return roaring64.New()
	}
	return p.entries[i].nodes.Clone()
}

// Range performs a bounded scan. A nil bound is unbounded on that side;
// loInclusive/hiInclusive control whether each present bound is `>=`/`<=`
// (true) or `>`/`<` (false).
func (p *PerKeyIndex) Range(lo, hi *propstore.Value, loInclusive, hiInclusive bool) *roaring64.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	result := roaring64.New()
	for _, e := range p.entries {
		if lo != nil {
			c, ok := compare(e.value, *lo)
			if ok {
				if loInclusive && c < 0 {
					continue
				}
				if !loInclusive && c <= 0 {
					continue
				}
			}
		}
		if hi != nil {
			c, ok := compare(e.value, *hi)
			if ok {
				if hiInclusive && c > 0 {
					continue
				}
				if !hiInclusive && c >= 0 {
					continue
				}
			}
		}
		result.Or(e.nodes)
	}
	return result
}

// Stats reports the number of distinct indexed values and total node
// references.
type Stats struct {
	DistinctValues int
	Cardinality    uint64
}

func (p *PerKeyIndex) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	st := Stats{DistinctValues: len(p.entries)}
	for _, e := range p.entries {
		st.Cardinality += e.nodes.GetCardinality()
	}
	return st
}

// compositeKey identifies one (label, property key) pair.
type compositeKey struct {
	label uint32
	key   uint32
}

// Index is the top-level registry of which (label, key) pairs have an
// active property B-tree, per spec.md §4.7.2 "optionally registered as
// indexed".
type Index struct {
	mu  sync.RWMutex
	byLabelKey map[compositeKey]*PerKeyIndex
}

// New creates an empty registry.
func New() *Index {
	return &Index{byLabelKey: make(map[compositeKey]*PerKeyIndex)}
}

// EnsureIndexed idempotently registers (label, key) as indexed and
// returns its PerKeyIndex.
func (ix *Index) EnsureIndexed(label, key uint32) *PerKeyIndex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ck := compositeKey{label, key}
	p, ok := ix.byLabelKey[ck]
	if !ok {
		p = NewPerKeyIndex()
		ix.byLabelKey[ck] = p
	}
	return p
}

// Get returns the PerKeyIndex for (label, key) if one is registered.
func (ix *Index) Get(label, key uint32) (*PerKeyIndex, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	p, ok := ix.byLabelKey[compositeKey{label, key}]
	return p, ok
}

// IsIndexed reports whether (label, key) has an active property index,
// which the planner consults to choose PropertyIndexSeek over a full
// label scan (spec.md §4.10.1).
func (ix *Index) IsIndexed(label, key uint32) bool {
	_, ok := ix.Get(label, key)
	return ok
}
