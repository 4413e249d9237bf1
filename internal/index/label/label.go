// Package label implements C7.1: the label bitmap index. For each label
// id, a compressed bitmap of node ids supports the AND/OR/NOT set algebra
// multi-label matches need (spec.md §4.7.1). github.com/RoaringBitmap/roaring/v2's
// 64-bit bitmap is the corpus's bitmap-indexing library (grounded in
// erigon-lib's roaring-compressed account/storage id sets), reused here for
// the same "compressed set of integer ids with fast set algebra" shape.
package label

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Stats reports the cardinality tracked per label id.
type Stats struct {
	Cardinality map[uint32]uint64
}

// Index is the process-wide label bitmap index. It is updated inside the
// writer's transaction and is safe for concurrent reader access (spec.md
// §4.7, §5).
type Index struct {
	mu      sync.RWMutex
	byLabel map[uint32]*roaring64.Bitmap
}

// New creates an empty label bitmap index.
func New() *Index {
	return &Index{byLabel: make(map[uint32]*roaring64.Bitmap)}
}

func (ix *Index) bitmapLocked(labelID uint32) *roaring64.Bitmap {
	bm, ok := ix.byLabel[labelID]
	if !ok {
		bm = roaring64.New()
		ix.byLabel[labelID] = bm
	}
	return bm
}

// Add marks nodeID as carrying labelID.
func (ix *Index) Add(labelID uint32, nodeID uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.bitmapLocked(labelID).Add(nodeID)
}

// Remove clears labelID from nodeID.
func (ix *Index) Remove(labelID uint32, nodeID uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if bm, ok := ix.byLabel[labelID]; ok {
		bm.Remove(nodeID)
	}
}

// Contains reports whether nodeID is recorded under labelID.
func (ix *Index) Contains(labelID uint32, nodeID uint64) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	bm, ok := ix.byLabel[labelID]
	return ok && bm.Contains(nodeID)
}

// Query returns a private copy of the bitmap for labelID (NodeByLabelScan,
// spec.md §4.11).
func (ix *Index) Query(labelID uint32) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	bm, ok := ix.byLabel[labelID]
	if !ok {
		return roaring64.New()
	}
	return bm.Clone()
}

// And intersects the bitmaps for every labelID (multi-label `MATCH
// (n:A:B)`, spec.md §8 scenario 3).
func (ix *Index) And(labelIDs ...uint32) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(labelIDs) == 0 {
		return roaring64.New()
	}
	result := ix.bitmapOrEmpty(labelIDs[0]).Clone()
	for _, l := range labelIDs[1:] {
		result.And(ix.bitmapOrEmpty(l))
	}
	return result
}

// Or unions the bitmaps for every labelID.
func (ix *Index) Or(labelIDs ...uint32) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	result := roaring64.New()
	for _, l := range labelIDs {
		result.Or(ix.bitmapOrEmpty(l))
	}
	return result
}

// AndNot returns nodes carrying every label in include but none in
// exclude.
func (ix *Index) AndNot(include, exclude []uint32) *roaring64.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var result *roaring64.Bitmap
	if len(include) == 0 {
		result = roaring64.New()
	} else {
		result = ix.bitmapOrEmpty(include[0]).Clone()
		for _, l := range include[1:] {
			result.And(ix.bitmapOrEmpty(l))
		}
	}
	for _, l := range exclude {
		result.AndNot(ix.bitmapOrEmpty(l))
	}
	return result
}

func (ix *Index) bitmapOrEmpty(labelID uint32) *roaring64.Bitmap {
	if bm, ok := ix.byLabel[labelID]; ok {
		return bm
	}
	return roaring64.New()
}

// Stats reports the live cardinality of every label currently indexed.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	st := Stats{Cardinality: make(map[uint32]uint64, len(ix.byLabel))}
	for l, bm := range ix.byLabel {
		st.Cardinality[l] = bm.GetCardinality()
	}
	return st
}
