package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/index/vector"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/propstore"
	"github.com/nexusdb/nexus/internal/record"
	"github.com/nexusdb/nexus/internal/wal"
)

// walDir is the rotated-segment directory spec.md §6's on-disk layout
// names.
const walDir = "wal"

// segmentPath returns the path of WAL segment n under dir.
func segmentPath(dir string, n int) string {
	return filepath.Join(dir, walDir, fmt.Sprintf("%020d.log", n))
}

// listSegments returns every existing segment number under dir's wal/
// directory, sorted ascending.
func listSegments(dir string) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(dir, walDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "list WAL segments under %s", dir)
	}
	var nums []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".log") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".log"))
		if err != nil {
			continue
		}
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums, nil
}

// validateSegment does a read-only pass over a segment file. It returns an
// error only when the segment cannot be opened or read: entries that fail
// CRC validation are skipped by wal.Replay, not reported. It never mutates
// state; a segment with a torn trailing write is valid (spec.md §4.5
// "tolerating a torn trailing write").
func validateSegment(path string) error {
	applied := 0
	err := wal.Replay(path, func(wal.Entry) error { applied++; return nil })
	return err
}

// recover replays every existing WAL segment in order into the record
// store and property store, then rebuilds the in-memory label/B-tree/
// vector sub-indexes from the resulting live record state and the
// catalog's persisted index registry (spec.md §4.5 "Recovery", §4.7
// rebuild-from-adjacency design, §9 "Caches as derived state").
//
// CRC validation of every segment but the newest runs concurrently via
// errgroup, at most GOMAXPROCS segments at a time (errgroup's SetLimit);
// application to the record/property stores stays strictly sequential, since physical
// entries across segments must apply in log order even though they are
// individually idempotent.
func (e *Engine) recover() error {
	segs, err := listSegments(e.dir)
	if err != nil {
		return err
	}

	if len(segs) > 1 {
		g := new(errgroup.Group)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, n := range segs[:len(segs)-1] {
			path := segmentPath(e.dir, n)
			g.Go(func() error { return validateSegment(path) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	for _, n := range segs {
		if err := wal.Replay(segmentPath(e.dir, n), e.applyWALEntry); err != nil {
			return err
		}
	}

	next := 1
	if len(segs) > 0 {
		next = segs[len(segs)-1] + 1
	}
	if err := os.MkdirAll(filepath.Join(e.dir, walDir), 0o755); err != nil {
		return nexuserr.Wrap(nexuserr.KindIO, err, "create %s/%s", e.dir, walDir)
	}
	w, err := wal.Open(segmentPath(e.dir, next))
	if err != nil {
		return err
	}
	e.wal = w
	e.segment = next

	return e.rebuildIndexes()
}

// applyWALEntry is wal.Replay's apply callback: it patches the record
// store directly with each physical entry's final contents (spec.md §4.5
// "keyed to final record contents, not deltas"). Index structures are
// not touched here; they are rebuilt wholesale afterward by
// rebuildIndexes, since they are derived state, not WAL-logged.
func (e *Engine) applyWALEntry(ent wal.Entry) error {
	switch ent.Kind {
	case wal.KindNodeCreate, wal.KindNodeUpdate, wal.KindNodeDelete:
		n := record.DecodeNode(ent.Payload)
		return e.store.WriteNode(n.NodeID, n)
	case wal.KindRelCreate, wal.KindRelDelete:
		r := record.DecodeRelationship(ent.Payload)
		return e.store.WriteRelationship(r)
	case wal.KindPropSet, wal.KindPropRemove:
		if len(ent.Payload) < 17 {
			return nexuserr.New(nexuserr.KindDurability, "truncated PROP_SET/PROP_REMOVE payload")
		}
		isNode := ent.Payload[0] == 0
		entityID := binary.LittleEndian.Uint64(ent.Payload[1:9])
		head := binary.LittleEndian.Uint64(ent.Payload[9:17])
		if isNode {
			n, err := e.store.ReadNode(entityID)
			if err != nil {
				return err
			}
			n.PropertyHead = head
			return e.store.WriteNode(entityID, n)
		}
		r, err := e.store.ReadRelationship(entityID)
		if err != nil {
			return err
		}
		r.PropertyHead = head
		return e.store.WriteRelationship(r)
	default:
		return nil
	}
}

// rebuildIndexes scans every live node and relationship and repopulates
// the label bitmap, registered property B-tree indexes, and registered
// vector indexes. The relationship index is intentionally left cold: it
// is a traversal cache that the executor warms lazily on first expand per
// node (spec.md §4.7.4 "An implementation MAY build the index lazily on
// first traversal").
func (e *Engine) rebuildIndexes() error {
	idx := exec.NewIndexes()

	defs, err := e.cat.ListIndexes()
	if err != nil {
		return err
	}
	propIndexes := map[[2]uint32]bool{}
	vectorCfg := map[[2]uint32]vector.Config{}
	for _, d := range defs {
		labelID, ok := e.cat.LookupLabel(d.Label)
		if !ok {
			continue
		}
		keyID, ok := e.cat.LookupPropertyKey(d.Key)
		if !ok {
			continue
		}
		switch d.Kind {
		case catalog.IndexKindProperty:
			idx.BTree.EnsureIndexed(labelID, keyID)
			propIndexes[[2]uint32{labelID, keyID}] = true
		case catalog.IndexKindVector:
			cfg := vector.DefaultConfig()
			cfg.M = d.VectorM
			cfg.EfConstruction = d.VectorEfCons
			if d.VectorMetric == "euclidean" {
				cfg.Metric = vector.Euclidean
			}
			idx.EnsureVectorIndex(labelID, keyID, cfg)
			vectorCfg[[2]uint32{labelID, keyID}] = cfg
		}
	}

	nodeCount := e.store.NodeCount()
	for id := uint64(0); id < nodeCount; id++ {
		n, err := e.store.ReadNode(id)
		if err != nil {
			return err
		}
		if !n.Live() {
			continue
		}
		labelIDs, err := e.labelIDsOf(n, id)
		if err != nil {
			return err
		}
		for _, labelID := range labelIDs {
			idx.Labels.Add(labelID, id)
		}
		if len(propIndexes) == 0 && len(vectorCfg) == 0 {
			continue
		}
		props, err := e.props.All(n.PropertyHead)
		if err != nil {
			return err
		}
		for _, labelID := range labelIDs {
			for key, ok := range propIndexes {
				if !ok || key[0] != labelID {
					continue
				}
				keyName, err := e.cat.PropertyKeyName(key[1])
				if err != nil {
					continue
				}
				if v, present := props[keyNameToID(e.cat, keyName)]; present {
					bt, _ := idx.BTree.Get(key[0], key[1])
					bt.Add(v, id)
				}
			}
			for key, cfg := range vectorCfg {
				if key[0] != labelID {
					continue
				}
				keyName, err := e.cat.PropertyKeyName(key[1])
				if err != nil {
					continue
				}
				if v, present := props[keyNameToID(e.cat, keyName)]; present && v.Kind == propstore.KindVector {
					vi := idx.EnsureVectorIndex(key[0], key[1], cfg)
					_ = vi.Add(id, v.Vector)
				}
			}
		}
	}

	e.idx = idx
	return nil
}

// keyNameToID re-resolves a property key name to its id via the catalog,
// the id propstore.Store.All keys its returned map by.
func keyNameToID(cat *catalog.Catalog, name string) uint32 {
	id, _ := cat.LookupPropertyKey(name)
	return id
}

// labelIDsOf returns every label id (inline bitmap plus multi-label side
// store) a node carries, mirroring exec.Context.nodeLabelIDs without
// requiring a live transaction.
func (e *Engine) labelIDsOf(n *record.Node, nodeID uint64) ([]uint32, error) {
	var ids []uint32
	for bit := uint32(0); bit < 64; bit++ {
		if n.HasLabel(bit) {
			ids = append(ids, bit)
		}
	}
	extra, err := e.cat.ExtraLabels(nodeID)
	if err != nil {
		return nil, err
	}
	return append(ids, extra...), nil
}
