package exec

import (
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
	"github.com/nexusdb/nexus/internal/propstore"
	"github.com/nexusdb/nexus/internal/record"
	"github.com/nexusdb/nexus/internal/wal"
)

// applyProperties evaluates a MapLiteral against row and writes each
// entry onto head via the property store, returning the resulting head.
// Every write is WAL-logged with the entity's (kind, id, new head) so a
// crash between the property append and the owning record update is
// recoverable (spec.md §4.4, §4.5).
func (c *Context) applyProperties(row Row, head uint64, isNode bool, entityID uint64, props *parser.MapLiteral) (uint64, error) {
	if props == nil {
		return head, nil
	}
	for i, key := range props.Keys {
		v, err := Eval(c, row, props.Values[i])
		if err != nil {
			return head, err
		}
		pv, err := ToProperty(v)
		if err != nil {
			return head, err
		}
		keyID, err := c.Catalog.InternPropertyKey(key)
		if err != nil {
			return head, err
		}
		newHead, err := c.Props.Set(head, keyID, pv)
		if err != nil {
			return head, err
		}
		head = newHead
		if isNode {
			if err := c.maintainPropertyIndexes(entityID, keyID, propstore.Null(), pv); err != nil {
				return head, err
			}
		}
		if err := c.logPropHead(isNode, entityID, head); err != nil {
			return head, err
		}
	}
	return head, nil
}

func (c *Context) logPropHead(isNode bool, entityID, head uint64) error {
	kind := wal.KindPropSet
	payload := make([]byte, 17)
	if isNode {
		payload[0] = 0
	} else {
		payload[0] = 1
	}
	putU64At(payload[1:9], entityID)
	putU64At(payload[9:17], head)
	return c.Tx.LogWAL(kind, payload)
}

func putU64At(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// labelBitsAndExtra splits a set of label names into the 64-bit inline
// bitmap and the ids >= 64 that must go through the multi-label side
// store (spec.md §3/§9).
func (c *Context) labelBitsAndExtra(labels []string) (uint64, []uint32, error) {
	var bits uint64
	var extra []uint32
	for _, name := range labels {
		id, err := c.Catalog.InternLabel(name)
		if err != nil {
			return 0, nil, err
		}
		if id < 64 {
			bits |= 1 << uint(id)
		} else {
			extra = append(extra, id)
		}
		if err := c.Catalog.BumpLabelCounter(id, 1); err != nil {
			return 0, nil, err
		}
	}
	return bits, extra, nil
}

// CreateNode implements the CreateNode operator: for each input row,
// allocate a node carrying the pattern's labels and evaluated property
// map, bind it to the pattern's variable, and emit the extended row
// (spec.md §4.11).
type CreateNode struct {
	ctx     *Context
	src     Operator
	pattern *parser.NodePattern
}

func NewCreateNode(ctx *Context, src Operator, pattern *parser.NodePattern) *CreateNode {
	return &CreateNode{ctx: ctx, src: src, pattern: pattern}
}

func (o *CreateNode) Next() (Row, bool, error) {
	row, ok, err := o.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	ref, err := o.ctx.createNode(row, o.pattern)
	if err != nil {
		return nil, false, err
	}
	out := row.Clone()
	if o.pattern.Variable != "" {
		out[o.pattern.Variable] = NodeVal(ref)
	}
	return out, true, nil
}

func (c *Context) createNode(row Row, pattern *parser.NodePattern) (*NodeRef, error) {
	bits, extra, err := c.labelBitsAndExtra(pattern.Labels)
	if err != nil {
		return nil, err
	}
	id, err := c.Store.AllocateNode(bits, c.Tx.Epoch())
	if err != nil {
		return nil, err
	}
	c.Tx.RecordCreatedNode(id)
	for _, labelID := range extra {
		if err := c.Catalog.AddExtraLabel(id, labelID); err != nil {
			return nil, err
		}
	}
	head, err := c.applyProperties(row, record.None, true, id, pattern.Properties)
	if err != nil {
		return nil, err
	}
	if head != record.None {
		n, err := c.Store.ReadNode(id)
		if err != nil {
			return nil, err
		}
		n.PropertyHead = head
		if err := c.Store.WriteNode(id, n); err != nil {
			return nil, err
		}
	}
	for _, name := range pattern.Labels {
		labelID, _ := c.Catalog.LookupLabel(name)
		c.Index.Labels.Add(labelID, id)
	}
	n, err := c.Store.ReadNode(id)
	if err != nil {
		return nil, err
	}
	if err := c.Tx.LogWAL(wal.KindNodeCreate, record.EncodeNode(n)); err != nil {
		return nil, err
	}
	return c.ReadNodeRefMust(id)
}

// ReadNodeRefMust re-reads id as a NodeRef, collapsing the not-visible
// case into an error since the caller just created/require it to exist.
func (c *Context) ReadNodeRefMust(id uint64) (*NodeRef, error) {
	ref, ok, err := c.ReadNodeRef(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nexuserr.New(nexuserr.KindSemantic, "node %d not visible to its own creating transaction", id)
	}
	return ref, nil
}

// ReadRelRefMust mirrors ReadNodeRefMust.
func (c *Context) ReadRelRefMust(id uint64) (*RelRef, error) {
	ref, ok, err := c.ReadRelRef(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nexuserr.New(nexuserr.KindSemantic, "relationship %d not visible to its own creating transaction", id)
	}
	return ref, nil
}

// CreateRel implements the CreateRel operator, connecting two already
// bound node aliases (spec.md §4.11).
type CreateRel struct {
	ctx       *Context
	src       Operator
	fromAlias string
	toAlias   string
	pattern   *parser.RelPattern
}

func NewCreateRel(ctx *Context, src Operator, fromAlias, toAlias string, pattern *parser.RelPattern) *CreateRel {
	return &CreateRel{ctx: ctx, src: src, fromAlias: fromAlias, toAlias: toAlias, pattern: pattern}
}

func (o *CreateRel) Next() (Row, bool, error) {
	row, ok, err := o.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	fromVal, ok1 := row[o.fromAlias]
	toVal, ok2 := row[o.toAlias]
	if !ok1 || !ok2 || fromVal.Kind != VNode || toVal.Kind != VNode {
		return nil, false, nexuserr.New(nexuserr.KindSemantic, "CREATE relationship requires both endpoints bound to nodes")
	}
	src, dst := fromVal.Node.ID, toVal.Node.ID
	if o.pattern.Direction == parser.Incoming {
		src, dst = dst, src
	}
	typeName := ""
	if len(o.pattern.Types) > 0 {
		typeName = o.pattern.Types[0]
	}
	typeID, err := o.ctx.Catalog.InternRelType(typeName)
	if err != nil {
		return nil, false, err
	}
	id, err := o.ctx.Store.CreateRelationship(src, dst, typeID, o.ctx.Tx.Epoch())
	if err != nil {
		return nil, false, err
	}
	o.ctx.Tx.RecordCreatedRelationship(id)
	head, err := o.ctx.applyProperties(row, record.None, false, id, o.pattern.Properties)
	if err != nil {
		return nil, false, err
	}
	r, err := o.ctx.Store.ReadRelationship(id)
	if err != nil {
		return nil, false, err
	}
	if head != record.None {
		r.PropertyHead = head
		if err := o.ctx.Store.WriteRelationship(r); err != nil {
			return nil, false, err
		}
	}
	o.ctx.Index.Rel.Add(id, typeID, src, dst)
	if err := o.ctx.Catalog.BumpTypeCounter(typeID, 1); err != nil {
		return nil, false, err
	}
	if err := o.ctx.Tx.LogWAL(wal.KindRelCreate, record.EncodeRelationship(r)); err != nil {
		return nil, false, err
	}
	ref, err := o.ctx.ReadRelRefMust(id)
	if err != nil {
		return nil, false, err
	}
	out := row.Clone()
	if o.pattern.Variable != "" {
		out[o.pattern.Variable] = RelVal(ref)
	}
	return out, true, nil
}

// Set implements the Set operator: property assignment/merge and label
// addition against already-bound node/relationship variables (spec.md
// §4.11).
type Set struct {
	ctx   *Context
	src   Operator
	items []*parser.SetItem
}

func NewSet(ctx *Context, src Operator, items []*parser.SetItem) *Set {
	return &Set{ctx: ctx, src: src, items: items}
}

func (o *Set) Next() (Row, bool, error) {
	row, ok, err := o.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := row.Clone()
	for _, item := range o.items {
		if err := o.ctx.applySetItem(out, item); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// ApplySetItem exports applySetItem for the planner's relationship-bearing
// MERGE decomposition, which applies ON CREATE/ON MATCH items itself once
// it has resolved every pattern alias (see DESIGN.md).
func (c *Context) ApplySetItem(row Row, item *parser.SetItem) error {
	return c.applySetItem(row, item)
}

func (c *Context) applySetItem(row Row, item *parser.SetItem) error {
	target, ok := row[item.Target]
	if !ok {
		return nexuserr.New(nexuserr.KindSemantic, "SET target %q is not bound", item.Target)
	}
	if item.Label != "" {
		if target.Kind != VNode {
			return nexuserr.New(nexuserr.KindSemantic, "label SET target must be a node")
		}
		labelID, err := c.Catalog.InternLabel(item.Label)
		if err != nil {
			return err
		}
		n, err := c.Store.ReadNode(target.Node.ID)
		if err != nil {
			return err
		}
		if labelID < 64 {
			n.SetLabel(labelID, true)
			if err := c.Store.WriteNode(target.Node.ID, n); err != nil {
				return err
			}
		} else if err := c.Catalog.AddExtraLabel(target.Node.ID, labelID); err != nil {
			return err
		}
		c.Index.Labels.Add(labelID, target.Node.ID)
		if err := c.Catalog.BumpLabelCounter(labelID, 1); err != nil {
			return err
		}
		ref, err := c.ReadNodeRefMust(target.Node.ID)
		if err != nil {
			return err
		}
		row[item.Target] = NodeVal(ref)
		return nil
	}

	v, err := Eval(c, row, item.Value)
	if err != nil {
		return err
	}
	switch target.Kind {
	case VNode:
		if item.Key != "" {
			if err := c.setProperty(true, target.Node.ID, item.Key, v); err != nil {
				return err
			}
			ref, err := c.ReadNodeRefMust(target.Node.ID)
			if err != nil {
				return err
			}
			row[item.Target] = NodeVal(ref)
			return nil
		}
		return c.setWholeEntity(row, item, true, target.Node.ID, v)
	case VRel:
		if item.Key != "" {
			if err := c.setProperty(false, target.Rel.ID, item.Key, v); err != nil {
				return err
			}
			ref, err := c.ReadRelRefMust(target.Rel.ID)
			if err != nil {
				return err
			}
			row[item.Target] = RelVal(ref)
			return nil
		}
		return c.setWholeEntity(row, item, false, target.Rel.ID, v)
	default:
		return nexuserr.New(nexuserr.KindSemantic, "SET target must be a node or relationship")
	}
}

func (c *Context) setWholeEntity(row Row, item *parser.SetItem, isNode bool, id uint64, v Value) error {
	if v.Kind != VMap {
		return nexuserr.New(nexuserr.KindSemantic, "whole-entity SET requires a map value")
	}
	if !item.MergeProp {
		head, err := c.currentHead(isNode, id)
		if err != nil {
			return err
		}
		props, err := c.Props.All(head)
		if err != nil {
			return err
		}
		for keyID := range props {
			name, err := c.Catalog.PropertyKeyName(keyID)
			if err != nil {
				return err
			}
			if _, overwritten := v.Map[name]; !overwritten {
				if err := c.removeProperty(isNode, id, name); err != nil {
					return err
				}
			}
		}
	}
	for k, pv := range v.Map {
		if err := c.setProperty(isNode, id, k, pv); err != nil {
			return err
		}
	}
	_, err := c.entityRow(isNode, id, row, item.Target)
	return err
}

func (c *Context) entityRow(isNode bool, id uint64, row Row, alias string) (Value, error) {
	if isNode {
		ref, err := c.ReadNodeRefMust(id)
		if err != nil {
			return Value{}, err
		}
		row[alias] = NodeVal(ref)
		return row[alias], nil
	}
	ref, err := c.ReadRelRefMust(id)
	if err != nil {
		return Value{}, err
	}
	row[alias] = RelVal(ref)
	return row[alias], nil
}

func (c *Context) currentHead(isNode bool, id uint64) (uint64, error) {
	if isNode {
		n, err := c.Store.ReadNode(id)
		if err != nil {
			return 0, err
		}
		return n.PropertyHead, nil
	}
	r, err := c.Store.ReadRelationship(id)
	if err != nil {
		return 0, err
	}
	return r.PropertyHead, nil
}

func (c *Context) setProperty(isNode bool, id uint64, key string, v Value) error {
	head, err := c.currentHead(isNode, id)
	if err != nil {
		return err
	}
	pv, err := ToProperty(v)
	if err != nil {
		return err
	}
	keyID, err := c.Catalog.InternPropertyKey(key)
	if err != nil {
		return err
	}
	var old propstore.Value
	if isNode {
		old, _, err = c.Props.Get(head, keyID)
		if err != nil {
			return err
		}
	}
	newHead, err := c.Props.Set(head, keyID, pv)
	if err != nil {
		return err
	}
	if err := c.writeHead(isNode, id, newHead); err != nil {
		return err
	}
	if isNode {
		if err := c.maintainPropertyIndexes(id, keyID, old, pv); err != nil {
			return err
		}
	}
	return c.logPropHead(isNode, id, newHead)
}

func (c *Context) removeProperty(isNode bool, id uint64, key string) error {
	head, err := c.currentHead(isNode, id)
	if err != nil {
		return err
	}
	keyID, ok := c.Catalog.LookupPropertyKey(key)
	if !ok {
		return nil
	}
	var old propstore.Value
	if isNode {
		old, _, err = c.Props.Get(head, keyID)
		if err != nil {
			return err
		}
	}
	newHead, removed, err := c.Props.Remove(head, keyID)
	if err != nil || !removed {
		return err
	}
	if err := c.writeHead(isNode, id, newHead); err != nil {
		return err
	}
	if isNode {
		if err := c.maintainPropertyIndexes(id, keyID, old, propstore.Null()); err != nil {
			return err
		}
	}
	return c.logPropHead(isNode, id, newHead)
}

// nodeLabelIDs returns every label id (inline bitmap plus the multi-label
// side store) currently carried by nodeID.
func (c *Context) nodeLabelIDs(nodeID uint64) ([]uint32, error) {
	n, err := c.Store.ReadNode(nodeID)
	if err != nil {
		return nil, err
	}
	var ids []uint32
	for bit := uint32(0); bit < 64; bit++ {
		if n.HasLabel(bit) {
			ids = append(ids, bit)
		}
	}
	extra, err := c.Catalog.ExtraLabels(nodeID)
	if err != nil {
		return nil, err
	}
	return append(ids, extra...), nil
}

// maintainPropertyIndexes keeps the property B-tree (§4.7.2) and vector
// (§4.7.3) sub-indexes in sync with a node property write, for every label
// the node currently carries that has registered that key (spec.md §4.7
// "All are updated inside the writer's transaction"). old.Kind ==
// propstore.KindNull means there was no prior value (creation); new.Kind
// == propstore.KindNull means the property was removed.
func (c *Context) maintainPropertyIndexes(nodeID uint64, keyID uint32, old, new propstore.Value) error {
	if propstore.Equal(old, new) {
		return nil
	}
	labelIDs, err := c.nodeLabelIDs(nodeID)
	if err != nil {
		return err
	}
	for _, labelID := range labelIDs {
		if pk, ok := c.Index.BTree.Get(labelID, keyID); ok {
			if !old.IsNull() {
				pk.Remove(old, nodeID)
			}
			if !new.IsNull() {
				pk.Add(new, nodeID)
			}
		}
		if vix, ok := c.Index.VectorIndex(labelID, keyID); ok {
			if new.Kind == propstore.KindVector {
				if err := vix.Add(nodeID, new.Vector); err != nil {
					return err
				}
			} else if old.Kind == propstore.KindVector {
				vix.Remove(nodeID)
			}
		}
	}
	return nil
}

// removeAllPropertyIndexEntries drops nodeID from every B-tree/vector
// sub-index entry for the properties it held (spec.md §3 "Properties are
// owned by exactly one entity; they are destroyed with it"). Called from
// node deletion before the property chain itself is abandoned.
func (c *Context) removeAllPropertyIndexEntries(nodeID uint64, head uint64) error {
	labelIDs, err := c.nodeLabelIDs(nodeID)
	if err != nil {
		return err
	}
	if len(labelIDs) == 0 {
		return nil
	}
	props, err := c.Props.All(head)
	if err != nil {
		return err
	}
	for keyID, v := range props {
		for _, labelID := range labelIDs {
			if pk, ok := c.Index.BTree.Get(labelID, keyID); ok {
				pk.Remove(v, nodeID)
			}
			if vix, ok := c.Index.VectorIndex(labelID, keyID); ok {
				vix.Remove(nodeID)
			}
		}
	}
	return nil
}

func (c *Context) writeHead(isNode bool, id, head uint64) error {
	if isNode {
		n, err := c.Store.ReadNode(id)
		if err != nil {
			return err
		}
		n.PropertyHead = head
		return c.Store.WriteNode(id, n)
	}
	r, err := c.Store.ReadRelationship(id)
	if err != nil {
		return err
	}
	r.PropertyHead = head
	return c.Store.WriteRelationship(r)
}

// Remove implements the Remove operator: property removal and label
// removal against bound variables (spec.md §4.11).
type Remove struct {
	ctx   *Context
	src   Operator
	items []*parser.RemoveItem
}

func NewRemove(ctx *Context, src Operator, items []*parser.RemoveItem) *Remove {
	return &Remove{ctx: ctx, src: src, items: items}
}

func (o *Remove) Next() (Row, bool, error) {
	row, ok, err := o.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := row.Clone()
	for _, item := range o.items {
		target, bound := out[item.Target]
		if !bound {
			continue
		}
		if item.Label != "" {
			if target.Kind != VNode {
				return nil, false, nexuserr.New(nexuserr.KindSemantic, "label REMOVE target must be a node")
			}
			labelID, ok := o.ctx.Catalog.LookupLabel(item.Label)
			if ok {
				n, err := o.ctx.Store.ReadNode(target.Node.ID)
				if err != nil {
					return nil, false, err
				}
				if labelID < 64 {
					n.SetLabel(labelID, false)
					if err := o.ctx.Store.WriteNode(target.Node.ID, n); err != nil {
						return nil, false, err
					}
				} else if err := o.ctx.Catalog.RemoveExtraLabel(target.Node.ID, labelID); err != nil {
					return nil, false, err
				}
				o.ctx.Index.Labels.Remove(labelID, target.Node.ID)
				if err := o.ctx.Catalog.BumpLabelCounter(labelID, -1); err != nil {
					return nil, false, err
				}
			}
			ref, err := o.ctx.ReadNodeRefMust(target.Node.ID)
			if err != nil {
				return nil, false, err
			}
			out[item.Target] = NodeVal(ref)
			continue
		}
		isNode := target.Kind == VNode
		var id uint64
		if isNode {
			id = target.Node.ID
		} else if target.Kind == VRel {
			id = target.Rel.ID
		} else {
			continue
		}
		if err := o.ctx.removeProperty(isNode, id, item.Key); err != nil {
			return nil, false, err
		}
		if _, err := o.ctx.entityRow(isNode, id, out, item.Target); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// Delete implements the Delete operator: unbinding (and, if Detach is
// set, first detaching) nodes and relationships bound to the given
// variables, incrementing Context.Mutations for `count(*)` (spec.md
// §4.11; ConstraintError::AttachedRelationships on a non-detached node
// delete with live edges).
type Delete struct {
	ctx    *Context
	src    Operator
	vars   []parser.Expr
	detach bool
}

func NewDelete(ctx *Context, src Operator, vars []parser.Expr, detach bool) *Delete {
	return &Delete{ctx: ctx, src: src, vars: vars, detach: detach}
}

func (o *Delete) Next() (Row, bool, error) {
	row, ok, err := o.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	for _, ve := range o.vars {
		v, err := Eval(o.ctx, row, ve)
		if err != nil {
			return nil, false, err
		}
		switch v.Kind {
		case VRel:
			if err := o.deleteRel(v.Rel.ID); err != nil {
				return nil, false, err
			}
		case VNode:
			if err := o.deleteNode(v.Node.ID); err != nil {
				return nil, false, err
			}
		}
	}
	return row, true, nil
}

func (o *Delete) deleteRel(id uint64) error {
	r, err := o.ctx.Store.ReadRelationship(id)
	if err != nil {
		return err
	}
	if err := o.ctx.Store.DeleteRelationship(id, o.ctx.Tx.Epoch()); err != nil {
		return err
	}
	o.ctx.Index.Rel.Remove(id)
	if err := o.ctx.Catalog.BumpTypeCounter(r.TypeID, -1); err != nil {
		return err
	}
	o.ctx.Mutations++
	return o.ctx.Tx.LogWAL(wal.KindRelDelete, record.EncodeRelationship(r))
}

func (o *Delete) deleteNode(id uint64) error {
	n, err := o.ctx.Store.ReadNode(id)
	if err != nil {
		return err
	}
	var incident []uint64
	if err := o.ctx.Store.Adjacency(id, func(relID uint64) error {
		incident = append(incident, relID)
		return nil
	}); err != nil {
		return err
	}
	live := 0
	for _, relID := range incident {
		r, err := o.ctx.Store.ReadRelationship(relID)
		if err != nil {
			return err
		}
		if r.Live() {
			live++
		}
	}
	if live > 0 {
		if !o.detach {
			return nexuserr.New(nexuserr.KindConstraint, "cannot delete node %d: %d attached relationships remain (use DETACH DELETE)", id, live)
		}
		for _, relID := range incident {
			if err := o.deleteRel(relID); err != nil {
				return err
			}
		}
	}
	if err := o.ctx.removeAllPropertyIndexEntries(id, n.PropertyHead); err != nil {
		return err
	}
	if err := o.ctx.Store.MarkNodeDeleted(id, o.ctx.Tx.Epoch()); err != nil {
		return err
	}
	for bit := uint32(0); bit < 64; bit++ {
		if n.HasLabel(bit) {
			o.ctx.Index.Labels.Remove(bit, id)
			_ = o.ctx.Catalog.BumpLabelCounter(bit, -1)
		}
	}
	extra, err := o.ctx.Catalog.ExtraLabels(id)
	if err != nil {
		return err
	}
	for _, labelID := range extra {
		o.ctx.Index.Labels.Remove(labelID, id)
		_ = o.ctx.Catalog.BumpLabelCounter(labelID, -1)
	}
	if err := o.ctx.Catalog.RemoveAllExtraLabels(id); err != nil {
		return err
	}
	o.ctx.Mutations++
	n.DeletedEpoch = o.ctx.Tx.Epoch()
	return o.ctx.Tx.LogWAL(wal.KindNodeDelete, record.EncodeNode(n))
}
