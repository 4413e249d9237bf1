// Package catalog implements C1: the schema dictionary (label, relationship
// type and property key interning) and per-label/type statistics. It is
// persisted independently of the graph WAL in its own embedded, ACID
// key-value store (go.etcd.io/bbolt), so the planner can trust statistics
// across crashes without replaying the graph's write-ahead log, exactly as
// spec.md §4.1 calls for.
package catalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"go.etcd.io/bbolt"

	"github.com/nexusdb/nexus/internal/nexuserr"
)

var (
	bucketLabelNameToID = []byte("label_name_to_id")
	bucketLabelIDToName = []byte("label_id_to_name")
	bucketTypeNameToID  = []byte("type_name_to_id")
	bucketTypeIDToName  = []byte("type_id_to_name")
	bucketKeyNameToID   = []byte("key_name_to_id")
	bucketKeyIDToName   = []byte("key_id_to_name")
	bucketLabelStats    = []byte("label_stats")
	bucketTypeStats     = []byte("type_stats")
	bucketMeta          = []byte("meta")
	bucketMultiLabel    = []byte("multi_label")
	bucketIndexRegistry = []byte("index_registry")

	metaKeySchemaEpoch = []byte("schema_epoch")
)

// IndexKind distinguishes the two sub-index families CALL procedures can
// register (spec.md §4.7.2, §4.7.3): a property kind registers a B-tree
// index, a vector kind an HNSW index.
type IndexKind string

const (
	IndexKindProperty IndexKind = "property"
	IndexKindVector   IndexKind = "vector"
)

// IndexDef is one persisted index registration: which (label, key) pair,
// of which kind, with what vector config (zero value for a property
// index). Persisting this in the catalog's own bbolt file means
// Engine.Open can rebuild every sub-index's in-memory structure without
// the caller having to re-issue every CALL db.create*Index statement
// after a restart.
type IndexDef struct {
	Kind         IndexKind `json:"kind"`
	Label        string    `json:"label"`
	Key          string    `json:"key"`
	VectorMetric string    `json:"vector_metric,omitempty"`
	VectorM      int       `json:"vector_m,omitempty"`
	VectorEfCons int       `json:"vector_ef_construction,omitempty"`
}

func indexDefKey(kind IndexKind, label, key string) []byte {
	return []byte(string(kind) + "\x00" + label + "\x00" + key)
}

// Stats holds the mutable statistics tracked for a single label or
// relationship type: a row count and, for indexed property keys, the
// number of distinct values observed — the cardinality inputs the
// planner's cost model (spec.md §4.10.6) consumes.
type Stats struct {
	Count             int64            `json:"count"`
	DistinctPerKey     map[string]int64 `json:"distinct_per_key,omitempty"`
}

// Catalog is the process-wide, thread-safe schema dictionary. Label ids are
// assigned densely starting at 0 so the first 64 fit in a node's
// label_bits bitmap (spec.md §3, §9 "Label bitmap 64-bit limit"); ids
// beyond that are still assigned and returned, it is the node record layer
// that must route them to the multi-label side store.
type Catalog struct {
	mu sync.Mutex
	db *bbolt.DB
}

// Open opens (creating if necessary) the catalog's bbolt file at path.
func Open(path string) (*Catalog, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, nexuserr.Wrap(nexuserr.KindIO, err, "open catalog at %s", path)
	}
	c := &Catalog{db: db}
	if err := c.init(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) init() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{
			bucketLabelNameToID, bucketLabelIDToName,
			bucketTypeNameToID, bucketTypeIDToName,
			bucketKeyNameToID, bucketKeyIDToName,
			bucketLabelStats, bucketTypeStats, bucketMeta, bucketMultiLabel,
			bucketIndexRegistry,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close flushes and closes the underlying bbolt database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func encodeID(id uint32) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, id)
	return buf
}

func decodeID(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// internName assigns (or returns the existing) dense monotonic id for name
// within the given name<->id bucket pair. Concurrent callers are serialized
// by bbolt's single-writer Update transaction, which also gives us the
// "concurrent interning of the same new name returns the same id" failure
// semantics spec.md §4.1 requires for free.
func (c *Catalog) internName(nameToID, idToName []byte, name string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var id uint32
	bumpedSchema := false
	err := c.db.Update(func(tx *bbolt.Tx) error {
		n2i := tx.Bucket(nameToID)
		i2n := tx.Bucket(idToName)
		if existing := n2i.Get([]byte(name)); existing != nil {
			id = decodeID(existing)
			return nil
		}
		id = uint32(n2i.Stats().KeyN)
		if err := n2i.Put([]byte(name), encodeID(id)); err != nil {
			return err
		}
		if err := i2n.Put(encodeID(id), []byte(name)); err != nil {
			return err
		}
		bumpedSchema = true
		return bumpSchemaEpoch(tx)
	})
	if err != nil {
		return 0, nexuserr.Wrap(nexuserr.KindCatalog, err, "intern %q", name)
	}
	_ = bumpedSchema
	return id, nil
}

func bumpSchemaEpoch(tx *bbolt.Tx) error {
	b := tx.Bucket(bucketMeta)
	var epoch uint64
	if v := b.Get(metaKeySchemaEpoch); v != nil {
		epoch = binary.BigEndian.Uint64(v)
	}
	epoch++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, epoch)
	return b.Put(metaKeySchemaEpoch, buf)
}

// SchemaEpoch returns the current schema epoch. It is bumped by every
// interning call that creates a new name, and is the cache generation the
// plan and result caches key on (spec.md §4.8, §4.10.7).
func (c *Catalog) SchemaEpoch() uint64 {
	var epoch uint64
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(metaKeySchemaEpoch); v != nil {
			epoch = binary.BigEndian.Uint64(v)
		}
		return nil
	})
	return epoch
}

// InternLabel interns a label name, returning its dense id. Idempotent.
func (c *Catalog) InternLabel(name string) (uint32, error) {
	return c.internName(bucketLabelNameToID, bucketLabelIDToName, name)
}

// InternRelType interns a relationship type name, returning its dense id.
func (c *Catalog) InternRelType(name string) (uint32, error) {
	return c.internName(bucketTypeNameToID, bucketTypeIDToName, name)
}

// InternPropertyKey interns a property key name, returning its dense id.
func (c *Catalog) InternPropertyKey(name string) (uint32, error) {
	return c.internName(bucketKeyNameToID, bucketKeyIDToName, name)
}

func (c *Catalog) nameOf(idToName []byte, id uint32) (string, error) {
	var name string
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(idToName).Get(encodeID(id))
		if v == nil {
			return nexuserr.New(nexuserr.KindCatalog, "unknown id %d", id)
		}
		name = string(v)
		return nil
	})
	if err != nil {
		return "", err
	}
	return name, nil
}

// LabelName returns the name interned for a label id, or CatalogError::UnknownId.
func (c *Catalog) LabelName(id uint32) (string, error) { return c.nameOf(bucketLabelIDToName, id) }

// RelTypeName returns the name interned for a relationship type id.
func (c *Catalog) RelTypeName(id uint32) (string, error) { return c.nameOf(bucketTypeIDToName, id) }

// PropertyKeyName returns the name interned for a property key id.
func (c *Catalog) PropertyKeyName(id uint32) (string, error) { return c.nameOf(bucketKeyIDToName, id) }

// LookupLabel returns the id for name without interning it, and ok=false if
// it has never been interned.
func (c *Catalog) LookupLabel(name string) (id uint32, ok bool) {
	return c.lookup(bucketLabelNameToID, name)
}

// LookupRelType mirrors LookupLabel for relationship types.
func (c *Catalog) LookupRelType(name string) (id uint32, ok bool) {
	return c.lookup(bucketTypeNameToID, name)
}

// LookupPropertyKey mirrors LookupLabel for property keys.
func (c *Catalog) LookupPropertyKey(name string) (id uint32, ok bool) {
	return c.lookup(bucketKeyNameToID, name)
}

func (c *Catalog) lookup(nameToID []byte, name string) (uint32, bool) {
	var id uint32
	var ok bool
	_ = c.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(nameToID).Get([]byte(name)); v != nil {
			id = decodeID(v)
			ok = true
		}
		return nil
	})
	return id, ok
}

// BumpLabelCounter adjusts the live-node counter tracked for label by delta
// (positive on create, negative on tombstone reclamation).
func (c *Catalog) BumpLabelCounter(label uint32, delta int64) error {
	return c.bumpStats(bucketLabelStats, label, "", delta)
}

// BumpTypeCounter adjusts the live-relationship counter tracked for a
// relationship type by delta.
func (c *Catalog) BumpTypeCounter(relType uint32, delta int64) error {
	return c.bumpStats(bucketTypeStats, relType, "", delta)
}

// BumpLabelKeyDistinct records a newly observed distinct property value for
// (label, key), used by the planner's selectivity estimate for
// PropertyIndexSeek.
func (c *Catalog) BumpLabelKeyDistinct(label uint32, key string, delta int64) error {
	return c.bumpStats(bucketLabelStats, label, key, delta)
}

func (c *Catalog) bumpStats(bucket []byte, id uint32, key string, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		st := Stats{DistinctPerKey: map[string]int64{}}
		if v := b.Get(encodeID(id)); v != nil {
			if err := json.Unmarshal(v, &st); err != nil {
				return err
			}
		}
		if st.DistinctPerKey == nil {
			st.DistinctPerKey = map[string]int64{}
		}
		if key == "" {
			st.Count += delta
		} else {
			st.DistinctPerKey[key] += delta
		}
		buf, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return b.Put(encodeID(id), buf)
	})
}

// SnapshotStats returns the current statistics for label. Missing entries
// return a zero Stats rather than an error — an un-touched label simply has
// no rows yet.
func (c *Catalog) SnapshotStats(label uint32) (Stats, error) {
	var st Stats
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketLabelStats).Get(encodeID(label))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &st)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot stats for label %d: %w", label, err)
	}
	return st, nil
}

// SnapshotTypeStats mirrors SnapshotStats for relationship types.
func (c *Catalog) SnapshotTypeStats(relType uint32) (Stats, error) {
	var st Stats
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketTypeStats).Get(encodeID(relType))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &st)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("snapshot stats for type %d: %w", relType, err)
	}
	return st, nil
}

// ListLabels returns every interned label name, for the admin list_labels() operation.
func (c *Catalog) ListLabels() ([]string, error) { return c.listNames(bucketLabelNameToID) }

// ListRelationshipTypes returns every interned relationship type name.
func (c *Catalog) ListRelationshipTypes() ([]string, error) { return c.listNames(bucketTypeNameToID) }

func (c *Catalog) listNames(bucket []byte) ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// AddExtraLabel records label labelID (>= 64, the range a node's own
// label_bits bitmap cannot hold) against nodeID in the multi-label side
// store spec.md §3/§9 calls for. Labels < 64 belong on the node record
// itself and should never reach here.
func (c *Catalog) AddExtraLabel(nodeID uint64, labelID uint32) error {
	return c.mutateExtraLabels(nodeID, func(bm *roaring.Bitmap) { bm.Add(labelID) })
}

// RemoveExtraLabel mirrors AddExtraLabel for label removal.
func (c *Catalog) RemoveExtraLabel(nodeID uint64, labelID uint32) error {
	return c.mutateExtraLabels(nodeID, func(bm *roaring.Bitmap) { bm.Remove(labelID) })
}

func (c *Catalog) mutateExtraLabels(nodeID uint64, mutate func(*roaring.Bitmap)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := encodeNodeID(nodeID)
	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMultiLabel)
		bm := roaring.New()
		if existing := b.Get(key); existing != nil {
			if _, err := bm.FromBuffer(existing); err != nil {
				return fmt.Errorf("decode multi-label bitmap for node %d: %w", nodeID, err)
			}
		}
		mutate(bm)
		if bm.IsEmpty() {
			return b.Delete(key)
		}
		buf, err := bm.ToBytes()
		if err != nil {
			return fmt.Errorf("encode multi-label bitmap for node %d: %w", nodeID, err)
		}
		return b.Put(key, buf)
	})
}

// HasExtraLabel reports whether nodeID carries labelID in the multi-label
// side store.
func (c *Catalog) HasExtraLabel(nodeID uint64, labelID uint32) (bool, error) {
	labels, err := c.ExtraLabels(nodeID)
	if err != nil {
		return false, err
	}
	for _, l := range labels {
		if l == labelID {
			return true, nil
		}
	}
	return false, nil
}

// ExtraLabels returns every label id >= 64 recorded against nodeID.
func (c *Catalog) ExtraLabels(nodeID uint64) ([]uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := encodeNodeID(nodeID)
	var ids []uint32
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketMultiLabel).Get(key)
		if v == nil {
			return nil
		}
		bm := roaring.New()
		if _, err := bm.FromBuffer(v); err != nil {
			return fmt.Errorf("decode multi-label bitmap for node %d: %w", nodeID, err)
		}
		it := bm.Iterator()
		for it.HasNext() {
			ids = append(ids, it.Next())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// RemoveAllExtraLabels drops the multi-label entry for nodeID entirely,
// called when a node is deleted so the side store doesn't accumulate
// tombstone entries (spec.md §3 "Properties are owned by exactly one
// entity; they are destroyed with it").
func (c *Catalog) RemoveAllExtraLabels(nodeID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := encodeNodeID(nodeID)
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMultiLabel).Delete(key)
	})
}

func encodeNodeID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

// RegisterIndex persists def, idempotently: registering the same
// (kind, label, key) twice just overwrites its config. Called by the
// db.createPropertyIndex/db.createVectorIndex procedures once the
// in-memory sub-index itself has been built, so a crash between the two
// steps leaves at worst an index that gets rebuilt again on next open
// rather than one silently missing from the registry.
func (c *Catalog) RegisterIndex(def IndexDef) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, err := json.Marshal(def)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexRegistry).Put(indexDefKey(def.Kind, def.Label, def.Key), buf)
	})
}

// ListIndexes returns every persisted index definition, for Engine.Open's
// rebuild pass and the admin schema_info() surface (spec.md §6).
func (c *Catalog) ListIndexes() ([]IndexDef, error) {
	var defs []IndexDef
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndexRegistry).ForEach(func(_, v []byte) error {
			var def IndexDef
			if err := json.Unmarshal(v, &def); err != nil {
				return err
			}
			defs = append(defs, def)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return defs, nil
}
