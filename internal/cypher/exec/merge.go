package exec

import (
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Merge implements the MERGE clause for the single-node-pattern case
// (`MERGE (n:Label {prop: value, ...})`), the dominant idempotent-upsert
// shape MERGE is used for: match by scanning the pattern's first label
// and filtering by its remaining labels and literal properties, creating
// the node only when no match exists, then running ON MATCH or ON
// CREATE's SET items accordingly (spec.md §4.11 "MERGE ... compiled as a
// conditional match-then-create"). A MERGE pattern that also names a
// relationship is rejected by this operator rather than silently
// mismatched; the planner handles the single-relationship case itself and
// rejects longer patterns (see planner/merge.go and DESIGN.md).
type Merge struct {
	ctx      *Context
	src      Operator
	pattern  *parser.PatternPart
	onCreate []*parser.SetItem
	onMatch  []*parser.SetItem
}

func NewMerge(ctx *Context, src Operator, pattern *parser.PatternPart, onCreate, onMatch []*parser.SetItem) (*Merge, error) {
	if len(pattern.Nodes) != 1 || len(pattern.Rels) != 0 {
		return nil, nexuserr.New(nexuserr.KindSemantic, "MERGE supports a single-node pattern only")
	}
	return &Merge{ctx: ctx, src: src, pattern: pattern, onCreate: onCreate, onMatch: onMatch}, nil
}

func (m *Merge) Next() (Row, bool, error) {
	row, ok, err := m.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	np := m.pattern.Nodes[0]
	ref, matched, err := m.findMatch(row, np)
	if err != nil {
		return nil, false, err
	}
	items := m.onMatch
	if !matched {
		ref, err = m.ctx.createNode(row, np)
		if err != nil {
			return nil, false, err
		}
		items = m.onCreate
	}
	out := row.Clone()
	if np.Variable != "" {
		out[np.Variable] = NodeVal(ref)
	}
	for _, item := range items {
		if err := m.ctx.applySetItem(out, item); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func (m *Merge) findMatch(row Row, np *parser.NodePattern) (*NodeRef, bool, error) {
	return FindNodeMatch(m.ctx, row, np)
}

// FindNodeMatch scans for a single node satisfying np's labels and literal
// properties, evaluated against row (spec.md §4.11 "MERGE ... match by
// scanning"). Exported so the planner can reuse MERGE's matching logic when
// decomposing a relationship-bearing MERGE pattern into per-endpoint
// find-or-create steps (see DESIGN.md).
func FindNodeMatch(ctx *Context, row Row, np *parser.NodePattern) (*NodeRef, bool, error) {
	var candidates []uint64
	if len(np.Labels) > 0 {
		labelID, ok := ctx.Catalog.LookupLabel(np.Labels[0])
		if !ok {
			return nil, false, nil
		}
		candidates = ctx.Index.Labels.Query(labelID).ToArray()
	} else {
		candidates = allNodeIDs(ctx)
	}
	for _, id := range candidates {
		ref, ok, err := ctx.ReadNodeRef(id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if !nodeMatchesPattern(ctx, ref, np, row) {
			continue
		}
		return ref, true, nil
	}
	return nil, false, nil
}

func allNodeIDs(ctx *Context) []uint64 {
	n := ctx.Store.NodeCount()
	ids := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		ids = append(ids, i)
	}
	return ids
}

func nodeMatchesPattern(ctx *Context, ref *NodeRef, np *parser.NodePattern, row Row) bool {
	have := make(map[string]bool, len(ref.Labels))
	for _, l := range ref.Labels {
		have[l] = true
	}
	for _, want := range np.Labels {
		if !have[want] {
			return false
		}
	}
	if np.Properties == nil {
		return true
	}
	for i, key := range np.Properties.Keys {
		want, err := Eval(ctx, row, np.Properties.Values[i])
		if err != nil {
			return false
		}
		got, ok := ref.Props[key]
		if !ok || !Equal(got, want) {
			return false
		}
	}
	return true
}
