package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nexusdb/nexus/internal/page"
)

// Config sizes each non-page cache layer. Capacities are entry counts,
// not byte budgets: the page cache already enforces the process's memory
// budget at the page granularity (spec.md §4.2); these layers bound
// derived-state duplication on top of it.
type Config struct {
	ObjectCapacity    int
	IndexPageCapacity int
	PlanCapacity      int
	ResultCapacity    int
	DefaultTTL        time.Duration
}

// DefaultConfig mirrors the sizes a single-node embedded deployment would
// pick: generous object/plan caching, a smaller result cache since full
// result sets are larger and go stale on every write to the read set.
func DefaultConfig() Config {
	return Config{
		ObjectCapacity:    10000,
		IndexPageCapacity: 2000,
		PlanCapacity:      500,
		ResultCapacity:    200,
		DefaultTTL:        5 * time.Minute,
	}
}

// MultiLayerCache is C8: the page cache plus the object, index-page, and
// query (plan + result) layers above it, queried in that order (spec.md
// §4.8). It is itself stateless storage-of-record-wise — every entry is
// reconstructable from the record stores and indexes (spec.md §9 "Caches
// as derived state, not sources of truth").
type MultiLayerCache struct {
	Pages      *page.Cache
	Objects    *ObjectCache
	IndexPages *IndexPageCache
	Plans      *PlanCache
	Results    *ResultCache

	defaultTTL      time.Duration
	mutationCounter atomic.Uint64
}

// New composes a MultiLayerCache over an already-open page cache.
func New(pages *page.Cache, cfg Config) *MultiLayerCache {
	return &MultiLayerCache{
		Pages:      pages,
		Objects:    newObjectCache(cfg.ObjectCapacity),
		IndexPages: newIndexPageCache(cfg.IndexPageCapacity),
		Plans:      newPlanCache(cfg.PlanCapacity),
		Results:    newResultCache(cfg.ResultCapacity),
		defaultTTL: cfg.DefaultTTL,
	}
}

// DefaultTTL is the TTL new object/index-page entries should use absent a
// more specific policy.
func (c *MultiLayerCache) DefaultTTL() time.Duration { return c.defaultTTL }

// MutationCounter returns the current global mutation counter, the
// freshness token result cache entries are stamped with (spec.md §4.8).
func (c *MultiLayerCache) MutationCounter() uint64 { return c.mutationCounter.Load() }

// OnWriterCommit bumps the global mutation counter. The engine calls this
// on every successful writer commit, data-only or schema-altering alike
// (spec.md §4.8 "Any writer commit bumps a global mutation counter").
func (c *MultiLayerCache) OnWriterCommit() uint64 { return c.mutationCounter.Add(1) }

// OnSchemaChange unconditionally clears the plan and result caches. The
// engine calls this after any commit that altered the catalog (new label,
// type, or property key; index creation/drop), per spec.md §4.8
// "Schema-altering commits bump the schema epoch, which unconditionally
// clears the plan cache and the result cache."
func (c *MultiLayerCache) OnSchemaChange() {
	c.Plans.Clear()
	c.Results.Clear()
}

// LayerStats reports hit/miss counters for every cache layer except the
// page cache (which reports through page.Cache.Stats), for the engine's
// admin stats() surface (spec.md §6).
type LayerStats struct {
	ObjectNodes         Stats
	ObjectRelationships Stats
	IndexPages          Stats
	Plans               Stats
	Results             Stats
}

func (c *MultiLayerCache) Stats() LayerStats {
	nodes, rels := c.Objects.Stats()
	return LayerStats{
		ObjectNodes:         nodes,
		ObjectRelationships: rels,
		IndexPages:          c.IndexPages.Stats(),
		Plans:               c.Plans.Stats(),
		Results:             c.Results.Stats(),
	}
}

// InstrumentWithMeter registers observable OTel counters for every layer's
// hit/miss totals, read lazily on export (spec.md SPEC_FULL.md domain
// stack: "C8 MultiLayerCache hit/miss counters, exposed as OTel
// instruments"), following the corpus's otel hook wiring
// (steveyegge-beads' internal/hooks/hooks_otel.go) in spirit: metrics are
// derived from live state rather than accumulated by hand at call sites.
func (c *MultiLayerCache) InstrumentWithMeter(meter metric.Meter) error {
	hits, err := meter.Int64ObservableCounter("nexus.cache.hits",
		metric.WithDescription("cumulative cache hits per layer"))
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter("nexus.cache.misses",
		metric.WithDescription("cumulative cache misses per layer"))
	if err != nil {
		return err
	}
	entries, err := meter.Int64ObservableGauge("nexus.cache.entries",
		metric.WithDescription("current entry count per layer"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		layers := map[string]Stats{
			"object_nodes":         c.Objects.nodes.stats(),
			"object_relationships": c.Objects.rels.stats(),
			"index_pages":          c.IndexPages.Stats(),
			"plans":                c.Plans.Stats(),
			"results":              c.Results.Stats(),
		}
		for name, st := range layers {
			attrs := metric.WithAttributes(layerAttr(name))
			o.ObserveInt64(hits, st.Hits, attrs)
			o.ObserveInt64(misses, st.Misses, attrs)
			o.ObserveInt64(entries, int64(st.Entries), attrs)
		}
		return nil
	}, hits, misses, entries)
	return err
}

func layerAttr(name string) attribute.KeyValue {
	return attribute.String("layer", name)
}
