package exec

import (
	"github.com/nexusdb/nexus/internal/propstore"
)

// AllNodesScan implements the AllNodes operator: a full scan over every
// allocated node id, visible-to-epoch ones only (spec.md §4.11). It is
// the planner's fallback when no label or index can narrow the search.
type AllNodesScan struct {
	ctx   *Context
	alias string
	next  uint64
	limit uint64
}

// NewAllNodesScan scans node ids [0, ctx.Store.NodeCount()).
func NewAllNodesScan(ctx *Context, alias string) *AllNodesScan {
	return &AllNodesScan{ctx: ctx, alias: alias, limit: ctx.Store.NodeCount()}
}

func (s *AllNodesScan) Next() (Row, bool, error) {
	for s.next < s.limit {
		id := s.next
		s.next++
		if err := s.ctx.checkCancelled(); err != nil {
			return nil, false, err
		}
		ref, ok, err := s.ctx.ReadNodeRef(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		return Row{s.alias: NodeVal(ref)}, true, nil
	}
	return nil, false, nil
}

// NodeByLabelScan implements the NodeByLabelScan operator, iterating the
// label bitmap index instead of every allocated id (spec.md §4.7.1,
// §4.11).
type NodeByLabelScan struct {
	ctx   *Context
	alias string
	ids   []uint64
	pos   int
}

// NewNodeByLabelScan scans every node currently carrying labelID.
func NewNodeByLabelScan(ctx *Context, alias string, labelID uint32) *NodeByLabelScan {
	return &NodeByLabelScan{ctx: ctx, alias: alias, ids: ctx.Index.Labels.Query(labelID).ToArray()}
}

func (s *NodeByLabelScan) Next() (Row, bool, error) {
	for s.pos < len(s.ids) {
		id := s.ids[s.pos]
		s.pos++
		if err := s.ctx.checkCancelled(); err != nil {
			return nil, false, err
		}
		ref, ok, err := s.ctx.ReadNodeRef(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		return Row{s.alias: NodeVal(ref)}, true, nil
	}
	return nil, false, nil
}

// PropertyIndexSeek implements the PropertyIndexSeek operator: an
// equality or range lookup against a registered (label, key) B-tree
// (spec.md §4.7.2, §4.10.1). The planner only ever builds one of these
// once btree.Index.IsIndexed(label, key) holds; at execution time the
// per-key index is looked up again since it may have been dropped.
type PropertyIndexSeek struct {
	ctx   *Context
	alias string
	ids   []uint64
	pos   int
}

// NewPropertyIndexSeekEq builds an equality seek for value.
func NewPropertyIndexSeekEq(ctx *Context, alias string, label, key uint32, value Value) (*PropertyIndexSeek, error) {
	pv, err := ToProperty(value)
	if err != nil {
		return nil, err
	}
	pk, ok := ctx.Index.BTree.Get(label, key)
	if !ok {
		return &PropertyIndexSeek{ctx: ctx, alias: alias}, nil
	}
	return &PropertyIndexSeek{ctx: ctx, alias: alias, ids: pk.Seek(pv).ToArray()}, nil
}

// NewPropertyIndexSeekRange builds a bounded range seek; either bound may
// be a nil Value pointer to mean "unbounded on that side".
func NewPropertyIndexSeekRange(ctx *Context, alias string, label, key uint32, lo, hi *Value, loIncl, hiIncl bool) (*PropertyIndexSeek, error) {
	var loPV, hiPV *propstore.Value
	if lo != nil {
		v, err := ToProperty(*lo)
		if err != nil {
			return nil, err
		}
		loPV = &v
	}
	if hi != nil {
		v, err := ToProperty(*hi)
		if err != nil {
			return nil, err
		}
		hiPV = &v
	}
	pk, ok := ctx.Index.BTree.Get(label, key)
	if !ok {
		return &PropertyIndexSeek{ctx: ctx, alias: alias}, nil
	}
	return &PropertyIndexSeek{ctx: ctx, alias: alias, ids: pk.Range(loPV, hiPV, loIncl, hiIncl).ToArray()}, nil
}

func (s *PropertyIndexSeek) Next() (Row, bool, error) {
	for s.pos < len(s.ids) {
		id := s.ids[s.pos]
		s.pos++
		if err := s.ctx.checkCancelled(); err != nil {
			return nil, false, err
		}
		ref, ok, err := s.ctx.ReadNodeRef(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		return Row{s.alias: NodeVal(ref)}, true, nil
	}
	return nil, false, nil
}
