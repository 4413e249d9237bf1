// Package vector implements C7.3: the HNSW (hierarchical navigable small
// world) vector index used for KNN search (spec.md §4.7.3). Parameters M
// and efConstruction are fixed at index creation; efSearch is supplied
// per query. No ANN library exists anywhere in the retrieved example
// corpus (the "no suitable third-party library" exception DESIGN.md
// documents), so this graph and its greedy search are hand-rolled on the
// standard library's math and sort packages.
package vector

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Metric selects the distance function. Cosine vectors are L2-normalized
// on insert (spec.md §4.7.3).
type Metric int

const (
	Cosine Metric = iota
	Euclidean
)

// Result is one KNN hit: a node id and its distance to the query vector
// (ascending = closer; for Cosine this is 1 - cosine similarity, so
// ascending distance is equivalently descending cosine similarity,
// spec.md §4.7.3).
type Result struct {
	NodeID   uint64
	Distance float64
}

// Config fixes an index's construction-time parameters.
type Config struct {
	M              int // max neighbors per node per layer above layer 0
	EfConstruction int
	Metric         Metric
}

// DefaultConfig mirrors common HNSW defaults (M=16, efConstruction=200).
func DefaultConfig() Config {
	return Config{M: 16, EfConstruction: 200, Metric: Cosine}
}

type nodeToInternalEntry struct {
	nodeID   uint64
	internal int
}

// Index is one HNSW graph over fixed-dimensionality vectors.
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	dim    int
	rng    *rand.Rand
	levelMult float64

	// internalToNode maps internal id -> node id directly by slice index;
	// nodeToInternal is kept sorted by nodeID for binary-search lookup in
	// the other direction (spec.md §4.7.3 "a pair of sorted arrays
	// enabling binary-search bidirectional lookup").
	internalToNode []uint64
	nodeToInternal []nodeToInternalEntry
	vectors        [][]float64
	levels         []int
	deleted        []bool
	neighbors      [][][]int32 // [internal][layer] -> neighbor internal ids
	entryPoint     int
	maxLevel       int
}

// New creates an empty HNSW index with the given configuration.
func New(cfg Config) *Index {
	if cfg.M < 2 {
		cfg.M = 2
	}
	if cfg.EfConstruction < 1 {
		cfg.EfConstruction = 1
	}
	return &Index{
		cfg:        cfg,
		rng:        rand.New(rand.NewSource(1)),
		levelMult:  1 / math.Log(float64(cfg.M)),
		entryPoint: -1,
		maxLevel:   -1,
	}
}

func l2Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func (ix *Index) distance(a, b []float64) float64 {
	switch ix.cfg.Metric {
	case Euclidean:
		var sum float64
		for i := range a {
			d := a[i] - b[i]
			sum += d * d
		}
		return math.Sqrt(sum)
	default: // Cosine: vectors are pre-normalized, so dot product is cosine similarity.
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return 1 - dot
	}
}

func (ix *Index) prepare(v []float64) []float64 {
	if ix.cfg.Metric == Cosine {
		return l2Normalize(v)
	}
	return append([]float64(nil), v...)
}

func (ix *Index) findInternal(nodeID uint64) (int, bool) {
	i := sort.Search(len(ix.nodeToInternal), func(i int) bool {
		return ix.nodeToInternal[i].nodeID >= nodeID
	})
	if i < len(ix.nodeToInternal) && ix.nodeToInternal[i].nodeID == nodeID {
		return ix.nodeToInternal[i].internal, true
	}
	return 0, false
}

func (ix *Index) insertMapping(nodeID uint64, internal int) {
	i := sort.Search(len(ix.nodeToInternal), func(i int) bool {
		return ix.nodeToInternal[i].nodeID >= nodeID
	})
	ix.nodeToInternal = append(ix.nodeToInternal, nodeToInternalEntry{})
	copy(ix.nodeToInternal[i+1:], ix.nodeToInternal[i:])
	ix.nodeToInternal[i] = nodeToInternalEntry{nodeID: nodeID, internal: internal}
}

func (ix *Index) randomLevel() int {
	lvl := int(math.Floor(-math.Log(ix.rng.Float64()) * ix.levelMult))
	return lvl
}

// Add inserts or replaces nodeID's vector. The vector's dimensionality
// fixes the index's dimensionality on the first call.
func (ix *Index) Add(nodeID uint64, vec []float64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vec)
	} else if len(vec) != ix.dim {
		return nexuserr.New(nexuserr.KindConstraint, "vector dimensionality %d does not match index dimensionality %d", len(vec), ix.dim)
	}
	prepared := ix.prepare(vec)

	if existing, ok := ix.findInternal(nodeID); ok {
		ix.vectors[existing] = prepared
		ix.deleted[existing] = false
		return nil
	}

	internal := len(ix.vectors)
	level := ix.randomLevel()
	ix.internalToNode = append(ix.internalToNode, nodeID)
	ix.vectors = append(ix.vectors, prepared)
	ix.levels = append(ix.levels, level)
	ix.deleted = append(ix.deleted, false)
	ix.neighbors = append(ix.neighbors, make([][]int32, level+1))
	ix.insertMapping(nodeID, internal)

	if ix.entryPoint == -1 {
		ix.entryPoint = internal
		ix.maxLevel = level
		return nil
	}

	cur := ix.entryPoint
	for l := ix.maxLevel; l > level; l-- {
		cur = ix.greedyDescend(cur, prepared, l)
	}
	for l := min(level, ix.maxLevel); l >= 0; l-- {
		candidates := ix.searchLayer(prepared, cur, ix.cfg.EfConstruction, l)
		neighbors := selectNeighbors(candidates, ix.cfg.M)
		ix.neighbors[internal][l] = neighbors
		for _, n := range neighbors {
			ix.connect(int(n), int32(internal), l)
		}
		if len(candidates) > 0 {
			cur = int(candidates[0].id)
		}
	}

	if level > ix.maxLevel {
		ix.maxLevel = level
		ix.entryPoint = internal
	}
	return nil
}

// connect adds back to n's neighbor list at layer l, trimming to M (2*M
// at layer 0, the standard HNSW layer-0 density bump) if it overflows.
func (ix *Index) connect(n int, back int32, l int) {
	if l >= len(ix.neighbors[n]) {
		grown := make([][]int32, l+1)
		copy(grown, ix.neighbors[n])
		ix.neighbors[n] = grown
	}
	ix.neighbors[n][l] = append(ix.neighbors[n][l], back)
	maxM := ix.cfg.M
	if l == 0 {
		maxM *= 2
	}
	if len(ix.neighbors[n][l]) <= maxM {
		return
	}
	cands := make([]candidate, 0, len(ix.neighbors[n][l]))
	for _, nb := range ix.neighbors[n][l] {
		cands = append(cands, candidate{id: nb, dist: ix.distance(ix.vectors[n], ix.vectors[nb])})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	ix.neighbors[n][l] = selectNeighbors(cands, maxM)
}

type candidate struct {
	id   int32
	dist float64
}

// greedyDescend walks from cur toward the nearest neighbor to query at
// layer l until no neighbor improves on the current best, single-hop
// greedy search used above the insertion/search layer (standard HNSW
// descent through upper layers).
func (ix *Index) greedyDescend(cur int, query []float64, l int) int {
	best := cur
	bestDist := ix.distance(ix.vectors[cur], query)
	for {
		improved := false
		for _, nb := range ix.neighborsAt(best, l) {
			d := ix.distance(ix.vectors[nb], query)
			if d < bestDist {
				bestDist = d
				best = nb
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

func (ix *Index) neighborsAt(internal, l int) []int {
	if l >= len(ix.neighbors[internal]) {
		return nil
	}
	raw := ix.neighbors[internal][l]
	out := make([]int, len(raw))
	for i, v := range raw {
		out[i] = int(v)
	}
	return out
}

// searchLayer is the standard HNSW layer-local beam search: a candidate
// set bounded by ef, expanded breadth-first from entry, returning up to
// ef results sorted by ascending distance.
func (ix *Index) searchLayer(query []float64, entry int, ef int, l int) []candidate {
	visited := map[int]bool{entry: true}
	entryDist := ix.distance(ix.vectors[entry], query)
	candidates := []candidate{{id: int32(entry), dist: entryDist}}
	results := []candidate{{id: int32(entry), dist: entryDist}}

	for len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
		c := candidates[0]
		candidates = candidates[1:]

		sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
		if len(results) >= ef && c.dist > results[len(results)-1].dist {
			break
		}

		for _, nb := range ix.neighborsAt(int(c.id), l) {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			if ix.deleted[nb] {
				continue
			}
			d := ix.distance(ix.vectors[nb], query)
			candidates = append(candidates, candidate{id: int32(nb), dist: d})
			results = append(results, candidate{id: int32(nb), dist: d})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].dist < results[j].dist })
	if len(results) > ef {
		results = results[:ef]
	}
	return results
}

// selectNeighbors keeps the m closest candidates (simple nearest-first
// selection rather than the diversity-aware heuristic the original HNSW
// paper offers as an alternative; documented as a scope decision in
// DESIGN.md).
func selectNeighbors(candidates []candidate, m int) []int32 {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int32, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// Remove tombstones nodeID: it is excluded from future search results but
// its graph edges are left in place (rebuilding the graph is the
// background reclamation path, matching the record store's deferred
// physical reclamation, spec.md §3).
func (ix *Index) Remove(nodeID uint64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	internal, ok := ix.findInternal(nodeID)
	if !ok {
		return false
	}
	ix.deleted[internal] = true
	return true
}

// KNN returns up to k nearest neighbors of query, ordered by ascending
// distance, searching with beam width efSearch (spec.md §4.7.3).
func (ix *Index) KNN(query []float64, k, efSearch int) ([]Result, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if ix.entryPoint == -1 {
		return nil, nil
	}
	if len(query) != ix.dim {
		return nil, nexuserr.New(nexuserr.KindConstraint, "query vector dimensionality %d does not match index dimensionality %d", len(query), ix.dim)
	}
	if efSearch < k {
		efSearch = k
	}
	prepared := ix.prepare(query)

	cur := ix.entryPoint
	for l := ix.maxLevel; l > 0; l-- {
		cur = ix.greedyDescend(cur, prepared, l)
	}
	candidates := ix.searchLayer(prepared, cur, efSearch, 0)

	out := make([]Result, 0, k)
	for _, c := range candidates {
		if ix.deleted[c.id] {
			continue
		}
		out = append(out, Result{NodeID: ix.internalToNode[c.id], Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Stats reports the index's size for admin/statistics surfaces.
type Stats struct {
	Size      int
	Dimension int
	MaxLevel  int
}

func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	live := 0
	for _, d := range ix.deleted {
		if !d {
			live++
		}
	}
	return Stats{Size: live, Dimension: ix.dim, MaxLevel: ix.maxLevel}
}

