package cache

import (
	"fmt"
	"hash/fnv"
	"time"

	"golang.org/x/sync/singleflight"
)

// normalizedKey hashes queryText plus a caller-supplied shape string
// (parameter-type signature for plans, parameter values for results)
// into a fixed-width cache key, the same fnv-hash-the-query-plus-params
// shape the corpus's cypher query cache uses for its key derivation.
func normalizedKey(queryText, shape string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(queryText))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(shape))
	return fmt.Sprintf("%x", h.Sum64())
}

// PlanCache caches compiled operator pipelines keyed by normalized query
// text and parameter-type shape (spec.md §4.8, §4.10 "Plan cache").
// golang.org/x/sync/singleflight collapses duplicate concurrent
// compilations of the same query on a cold cache into one call.
type PlanCache struct {
	backing *lru
	group   singleflight.Group
}

func newPlanCache(capacity int) *PlanCache {
	return &PlanCache{backing: newLRU(capacity)}
}

// GetOrCompile returns the cached plan for (queryText, paramShape),
// compiling it with compile exactly once even under concurrent callers.
func (pc *PlanCache) GetOrCompile(queryText, paramShape string, compile func() (any, error)) (any, error) {
	key := normalizedKey(queryText, paramShape)
	if v, ok := pc.backing.get(key); ok {
		return v, nil
	}
	v, err, _ := pc.group.Do(key, func() (any, error) {
		if v, ok := pc.backing.get(key); ok {
			return v, nil
		}
		plan, err := compile()
		if err != nil {
			return nil, err
		}
		pc.backing.put(key, plan, 0)
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Clear unconditionally empties the plan cache, called on every
// schema-altering commit (spec.md §4.8).
func (pc *PlanCache) Clear() { pc.backing.clear() }

// Stats reports this layer's hit/miss counters.
func (pc *PlanCache) Stats() Stats { return pc.backing.stats() }

type resultEntry struct {
	value           any
	mutationCounter uint64
}

// ResultCache caches full result sets keyed by query text, parameter
// values, and schema epoch, with freshness additionally gated by a
// mutation counter snapshotted at insert time (spec.md §4.8 "Any writer
// commit bumps a global mutation counter. Result cache entries store the
// counter at the time they were inserted; a mismatch invalidates on
// read.").
type ResultCache struct {
	backing *lru
}

func newResultCache(capacity int) *ResultCache {
	return &ResultCache{backing: newLRU(capacity)}
}

func resultKey(queryText, paramShape string, schemaEpoch uint64) string {
	return fmt.Sprintf("%s@%d", normalizedKey(queryText, paramShape), schemaEpoch)
}

// Get returns the cached result for (queryText, paramShape, schemaEpoch)
// if present and its stored mutation counter still matches
// currentMutationCounter. A stale entry is evicted and reported as a
// miss rather than repaired (spec.md §9 "Caches as derived state").
func (rc *ResultCache) Get(queryText, paramShape string, schemaEpoch, currentMutationCounter uint64) (any, bool) {
	key := resultKey(queryText, paramShape, schemaEpoch)
	v, ok := rc.backing.get(key)
	if !ok {
		return nil, false
	}
	e := v.(resultEntry)
	if e.mutationCounter != currentMutationCounter {
		rc.backing.remove(key)
		return nil, false
	}
	return e.value, true
}

// Put caches value under (queryText, paramShape, schemaEpoch), stamped
// with the mutation counter observed at insert time.
func (rc *ResultCache) Put(queryText, paramShape string, schemaEpoch, mutationCounter uint64, value any, ttl time.Duration) {
	key := resultKey(queryText, paramShape, schemaEpoch)
	rc.backing.put(key, resultEntry{value: value, mutationCounter: mutationCounter}, ttl)
}

// Clear unconditionally empties the result cache.
func (rc *ResultCache) Clear() { rc.backing.clear() }

// Stats reports this layer's hit/miss counters.
func (rc *ResultCache) Stats() Stats { return rc.backing.stats() }
