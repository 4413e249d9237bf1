package exec

import (
	"github.com/nexusdb/nexus/internal/catalog"
	"github.com/nexusdb/nexus/internal/index/btree"
	"github.com/nexusdb/nexus/internal/index/label"
	"github.com/nexusdb/nexus/internal/index/relindex"
	"github.com/nexusdb/nexus/internal/index/vector"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/propstore"
	"github.com/nexusdb/nexus/internal/record"
	"github.com/nexusdb/nexus/internal/txn"
)

// vectorKey identifies one (label, property key) vector index, mirroring
// btree.Index's compositeKey shape (spec.md §4.7.3).
type vectorKey struct {
	Label uint32
	Key   uint32
}

// Indexes bundles the four IndexManager sub-indexes (spec.md §4.7) so
// Context doesn't need five separate fields threaded everywhere.
type Indexes struct {
	Labels  *label.Index
	BTree   *btree.Index
	Rel     *relindex.Index
	vectors map[vectorKey]*vector.Index
}

// NewIndexes creates an empty sub-index bundle.
func NewIndexes() *Indexes {
	return &Indexes{
		Labels:  label.New(),
		BTree:   btree.New(),
		Rel:     relindex.New(),
		vectors: make(map[vectorKey]*vector.Index),
	}
}

// EnsureVectorIndex idempotently creates (or returns) the HNSW index for
// (label, key), fixing dim/cfg on first creation.
func (ix *Indexes) EnsureVectorIndex(label, key uint32, cfg vector.Config) *vector.Index {
	vk := vectorKey{label, key}
	v, ok := ix.vectors[vk]
	if !ok {
		v = vector.New(cfg)
		ix.vectors[vk] = v
	}
	return v
}

// VectorIndex returns the existing vector index for (label, key), if any.
func (ix *Indexes) VectorIndex(label, key uint32) (*vector.Index, bool) {
	v, ok := ix.vectors[vectorKey{label, key}]
	return v, ok
}

// Context bundles everything an operator needs to pull rows: the storage
// layers, the active transaction, query parameters, and cooperative
// cancellation (spec.md §4.11, §5 "Cancellation and timeouts").
type Context struct {
	Catalog *catalog.Catalog
	Store   *record.Store
	Props   *propstore.Store
	Index   *Indexes
	Tx      *txn.Tx
	Params  map[string]Value

	// Cancelled is checked at every row boundary, the only suspension
	// point inside the executor (spec.md §5 "Suspension points").
	Cancelled func() bool

	// Mutations counts nodes+relationships deleted this statement, for
	// `DELETE ... RETURN count(*)` (spec.md §4.11 "Count policy").
	Mutations int
}

func (c *Context) checkCancelled() error {
	if c.Cancelled != nil && c.Cancelled() {
		return nexuserr.New(nexuserr.KindCancelled, "query cancelled")
	}
	return nil
}

// ReadNodeRef loads node id's query-facing projection if it is visible to
// this context's transaction epoch, resolving labels (bitmap plus the
// multi-label side store for ids >= 64) and materializing every property.
func (c *Context) ReadNodeRef(id uint64) (*NodeRef, bool, error) {
	n, err := c.Store.ReadNode(id)
	if err != nil {
		return nil, false, err
	}
	if !txn.Visible(c.Tx.Epoch(), n.CreatedEpoch, n.DeletedEpoch) {
		return nil, false, nil
	}
	labels, err := c.resolveLabels(n)
	if err != nil {
		return nil, false, err
	}
	props, err := c.readProperties(n.PropertyHead)
	if err != nil {
		return nil, false, err
	}
	return &NodeRef{ID: id, Labels: labels, Props: props}, true, nil
}

func (c *Context) resolveLabels(n *record.Node) ([]string, error) {
	var names []string
	for bit := uint32(0); bit < 64; bit++ {
		if n.HasLabel(bit) {
			name, err := c.Catalog.LabelName(bit)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
	}
	extra, err := c.Catalog.ExtraLabels(n.NodeID)
	if err != nil {
		return nil, err
	}
	for _, id := range extra {
		name, err := c.Catalog.LabelName(id)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// ReadRelRef mirrors ReadNodeRef for relationships.
func (c *Context) ReadRelRef(id uint64) (*RelRef, bool, error) {
	r, err := c.Store.ReadRelationship(id)
	if err != nil {
		return nil, false, err
	}
	if !txn.Visible(c.Tx.Epoch(), r.CreatedEpoch, r.DeletedEpoch) {
		return nil, false, nil
	}
	typeName, err := c.Catalog.RelTypeName(r.TypeID)
	if err != nil {
		return nil, false, err
	}
	props, err := c.readProperties(r.PropertyHead)
	if err != nil {
		return nil, false, err
	}
	return &RelRef{ID: id, Type: typeName, Start: r.SrcNodeID, End: r.DstNodeID, Props: props}, true, nil
}

func (c *Context) readProperties(head uint64) (map[string]Value, error) {
	raw, err := c.Props.All(head)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Value, len(raw))
	for keyID, pv := range raw {
		name, err := c.Catalog.PropertyKeyName(keyID)
		if err != nil {
			return nil, err
		}
		out[name] = FromProperty(pv)
	}
	return out, nil
}

// HasLabelID reports whether nodeID carries labelID, consulting the
// bitmap for ids < 64 and the multi-label side store beyond that.
func (c *Context) HasLabelID(n *record.Node, labelID uint32) (bool, error) {
	if labelID < 64 {
		return n.HasLabel(labelID), nil
	}
	return c.Catalog.HasExtraLabel(n.NodeID, labelID)
}
