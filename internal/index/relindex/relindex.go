// Package relindex implements C7.4: the relationship index. Per
// relationship type it keeps a compressed bitmap of relationship ids; per
// node it keeps separate ordered lists of outgoing and incoming
// relationship ids, mirroring the adjacency lists so Expand(node, type,
// direction) runs in time proportional to its output rather than to the
// full adjacency list (spec.md §4.7.4).
//
// This index is a cache-like structure, not a source of truth: it may be
// rebuilt at any time from record.Store's adjacency lists, and the
// executor falls back to list traversal for any node it is not warm for
// (spec.md §4.7.4, §9 "Caches as derived state").
package relindex

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Direction selects one of a node's two adjacency roles.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

// Stats reports per-type cardinality and how many nodes are currently
// warm.
type Stats struct {
	CardinalityByType map[uint32]uint64
	WarmNodes         int
}

type nodeLists struct {
	out  []uint64
	in   []uint64
	warm bool
}

// Index is the process-wide relationship index.
type Index struct {
	mu     sync.RWMutex
	byType map[uint32]*roaring64.Bitmap
	byNode map[uint64]*nodeLists
	// relMeta remembers (type, src, dst) for each indexed relationship id
	// so Remove doesn't need the caller to resupply them.
	relMeta map[uint64]relInfo
}

type relInfo struct {
	typeID   uint32
	srcID    uint64
	dstID    uint64
	selfLoop bool
}

// New creates an empty relationship index.
func New() *Index {
	return &Index{
		byType:  make(map[uint32]*roaring64.Bitmap),
		byNode:  make(map[uint64]*nodeLists),
		relMeta: make(map[uint64]relInfo),
	}
}

func (ix *Index) bitmapLocked(typeID uint32) *roaring64.Bitmap {
	bm, ok := ix.byType[typeID]
	if !ok {
		bm = roaring64.New()
		ix.byType[typeID] = bm
	}
	return bm
}

func (ix *Index) nodeListsLocked(nodeID uint64) *nodeLists {
	nl, ok := ix.byNode[nodeID]
	if !ok {
		nl = &nodeLists{}
		ix.byNode[nodeID] = nl
	}
	return nl
}

// Add records relID (of typeID, between src and dst) in the type bitmap
// and, for any node currently warm, in that node's ordered list.
func (ix *Index) Add(relID uint64, typeID uint32, src, dst uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.bitmapLocked(typeID).Add(relID)
	ix.relMeta[relID] = relInfo{typeID: typeID, srcID: src, dstID: dst, selfLoop: src == dst}

	if nl, ok := ix.byNode[src]; ok && nl.warm {
		nl.out = append(nl.out, relID)
	}
	if src == dst {
		return
	}
	if nl, ok := ix.byNode[dst]; ok && nl.warm {
		nl.in = append(nl.in, relID)
	}
}

// Remove unindexes relID entirely.
func (ix *Index) Remove(relID uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	info, ok := ix.relMeta[relID]
	if !ok {
		return
	}
	delete(ix.relMeta, relID)
	if bm, ok := ix.byType[info.typeID]; ok {
		bm.Remove(relID)
	}
	if nl, ok := ix.byNode[info.srcID]; ok {
		nl.out = removeID(nl.out, relID)
	}
	if !info.selfLoop {
		if nl, ok := ix.byNode[info.dstID]; ok {
			nl.in = removeID(nl.in, relID)
		}
	}
}

func removeID(list []uint64, id uint64) []uint64 {
	for i, v := range list {
		if v == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// IsWarm reports whether nodeID's adjacency lists are populated here.
func (ix *Index) IsWarm(nodeID uint64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	nl, ok := ix.byNode[nodeID]
	return ok && nl.warm
}

// Warm populates nodeID's ordered lists from the given outgoing/incoming
// relationship ids, marking the node warm. The executor calls this after
// falling back to a full adjacency walk, so later expansions of the same
// node hit the index (spec.md §4.7.4 "An implementation MAY build the
// index lazily on first traversal").
func (ix *Index) Warm(nodeID uint64, outgoing, incoming []uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	nl := ix.nodeListsLocked(nodeID)
	nl.out = append([]uint64(nil), outgoing...)
	nl.in = append([]uint64(nil), incoming...)
	nl.warm = true
}

// Evict forgets nodeID's adjacency lists without touching the underlying
// type bitmaps, for use under memory pressure (spec.md §4.7.4 "evict
// least-used entries").
func (ix *Index) Evict(nodeID uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byNode, nodeID)
}

// Expand returns the relationship ids incident to nodeID in the given
// direction, optionally filtered to typeID (0 meaning "any type" is not a
// valid type id in this schema — callers pass a pointer so "no filter"
// is unambiguous). ok is false if nodeID is not currently warm; the
// caller must fall back to adjacency-list traversal in that case.
func (ix *Index) Expand(nodeID uint64, typeID *uint32, dir Direction) (ids []uint64, ok bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	nl, present := ix.byNode[nodeID]
	if !present || !nl.warm {
		return nil, false
	}
	src := nl.out
	if dir == Incoming {
		src = nl.in
	}
	if typeID == nil {
		return append([]uint64(nil), src...), true
	}
	out := make([]uint64, 0, len(src))
	for _, relID := range src {
		if info, ok := ix.relMeta[relID]; ok && info.typeID == *typeID {
			out = append(out, relID)
		}
	}
	return out, true
}

// Query returns a private copy of the relationship-id bitmap for typeID.
func (ix *Index) Query(typeID uint32) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	bm, ok := ix.byType[typeID]
	if !ok {
		return roaring64.New()
	}
	return bm.Clone()
}

// Stats reports per-type cardinality and the number of currently warm
// nodes.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	st := Stats{CardinalityByType: make(map[uint32]uint64, len(ix.byType))}
	for t, bm := range ix.byType {
		st.CardinalityByType[t] = bm.GetCardinality()
	}
	for _, nl := range ix.byNode {
		if nl.warm {
			st.WarmNodes++
		}
	}
	return st
}
