package planner

import (
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// compileMerge compiles a MERGE clause. The single-node-pattern case
// (dominant in practice) delegates straight to exec.Merge. A pattern that
// also names a relationship is decomposed here into a per-row
// find-or-create over each endpoint followed by a find-or-create over the
// connecting relationship, since exec.Merge rejects relationship patterns
// outright (see merge.go's doc comment and DESIGN.md). Multi-hop MERGE
// patterns (`MERGE (a)-[]->(b)-[]->(c)`) are out of scope; Cypher itself
// discourages them since anchoring the match is ambiguous.
func compileMerge(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.MergeClause) (exec.Operator, error) {
	op = ensureSeed(op)
	pattern := c.Pattern
	if len(pattern.Rels) == 0 {
		m, err := exec.NewMerge(ctx, op, pattern, c.OnCreate, c.OnMatch)
		if err != nil {
			return nil, err
		}
		if pattern.Nodes[0].Variable != "" {
			ps.bind(pattern.Nodes[0].Variable)
		}
		return m, nil
	}
	if len(pattern.Nodes) != 2 || len(pattern.Rels) != 1 {
		return nil, nexuserr.New(nexuserr.KindSemantic, "MERGE supports at most one relationship hop")
	}
	for _, np := range pattern.Nodes {
		if np.Variable != "" {
			ps.bind(np.Variable)
		}
	}
	if pattern.Rels[0].Variable != "" {
		ps.bind(pattern.Rels[0].Variable)
	}
	return &mergeRelOp{ctx: ctx, src: op, pattern: pattern, onCreate: c.OnCreate, onMatch: c.OnMatch}, nil
}

// mergeRelOp implements the relationship-bearing MERGE case: for each
// input row, find-or-create both endpoint nodes, then find-or-create a
// relationship of the pattern's type/direction between them, applying ON
// CREATE's SET items if anything was created and ON MATCH's otherwise
// (spec.md §4.11 "MERGE ... compiled as a conditional match-then-create").
type mergeRelOp struct {
	ctx      *exec.Context
	src      exec.Operator
	pattern  *parser.PatternPart
	onCreate []*parser.SetItem
	onMatch  []*parser.SetItem
}

func (m *mergeRelOp) Next() (exec.Row, bool, error) {
	row, ok, err := m.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	out := row.Clone()

	fromNP := m.pattern.Nodes[0]
	toNP := m.pattern.Nodes[1]
	rel := m.pattern.Rels[0]

	fromRef, fromCreated, err := findOrCreateNode(m.ctx, out, fromNP)
	if err != nil {
		return nil, false, err
	}
	bindNode(out, fromNP.Variable, fromRef)

	toRef, toCreated, err := findOrCreateNode(m.ctx, out, toNP)
	if err != nil {
		return nil, false, err
	}
	bindNode(out, toNP.Variable, toRef)

	anyCreated := fromCreated || toCreated

	relRef, relCreated, err := findOrCreateRel(m.ctx, out, fromRef.ID, toRef.ID, rel, anyCreated)
	if err != nil {
		return nil, false, err
	}
	if rel.Variable != "" {
		out[rel.Variable] = exec.RelVal(relRef)
	}

	items := m.onMatch
	if anyCreated || relCreated {
		items = m.onCreate
	}
	for _, item := range items {
		if err := m.ctx.ApplySetItem(out, item); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

func bindNode(row exec.Row, variable string, ref *exec.NodeRef) {
	if variable != "" {
		row[variable] = exec.NodeVal(ref)
	}
}

// findOrCreateNode resolves np against row: if its variable is already
// bound (a preceding MATCH or MERGE step anchored it), that binding wins
// unconditionally. Otherwise it tries exec.FindNodeMatch and falls back
// to a single-row CreateNode pull.
func findOrCreateNode(ctx *exec.Context, row exec.Row, np *parser.NodePattern) (*exec.NodeRef, bool, error) {
	if np.Variable != "" {
		if v, ok := row[np.Variable]; ok && v.Kind == exec.VNode {
			return v.Node, false, nil
		}
	}
	if ref, found, err := exec.FindNodeMatch(ctx, row, np); err != nil {
		return nil, false, err
	} else if found {
		return ref, false, nil
	}
	created, err := pullCreateNode(ctx, row, np)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

func pullCreateNode(ctx *exec.Context, row exec.Row, np *parser.NodePattern) (*exec.NodeRef, error) {
	alias := np.Variable
	pattern := np
	if alias == "" {
		alias = "$mergenode"
		cp := *np
		cp.Variable = alias
		pattern = &cp
	}
	op := exec.NewCreateNode(ctx, exec.NewSliceSource([]exec.Row{row}), pattern)
	out, _, err := op.Next()
	if err != nil {
		return nil, err
	}
	return out[alias].Node, nil
}

// findOrCreateRel looks for a live relationship of rel's type/direction
// already connecting fromID to toID. If either endpoint was just
// created, no such relationship can possibly exist yet, so the search is
// skipped.
func findOrCreateRel(ctx *exec.Context, row exec.Row, fromID, toID uint64, rel *parser.RelPattern, skipSearch bool) (*exec.RelRef, bool, error) {
	var typeID *uint32
	if len(rel.Types) == 1 {
		if id, ok := ctx.Catalog.LookupRelType(rel.Types[0]); ok {
			typeID = &id
		} else {
			skipSearch = true
		}
	}
	if !skipSearch {
		ids, err := ctx.ExpandRelIDs(fromID, typeID, rel.Direction)
		if err != nil {
			return nil, false, err
		}
		for _, id := range ids {
			ref, ok, err := ctx.ReadRelRef(id)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			other := ref.End
			if ref.Start != fromID {
				other = ref.Start
			}
			if other == toID {
				return ref, false, nil
			}
		}
	}
	fromAlias, toAlias := "$mergefrom", "$mergeto"
	seed := row.Clone()
	fromRef, _, err := ctx.ReadNodeRef(fromID)
	if err != nil {
		return nil, false, err
	}
	toRef, _, err := ctx.ReadNodeRef(toID)
	if err != nil {
		return nil, false, err
	}
	seed[fromAlias] = exec.NodeVal(fromRef)
	seed[toAlias] = exec.NodeVal(toRef)

	alias := rel.Variable
	pattern := rel
	if alias == "" {
		alias = "$mergerel"
		cp := *rel
		cp.Variable = alias
		pattern = &cp
	}
	op := exec.NewCreateRel(ctx, exec.NewSliceSource([]exec.Row{seed}), fromAlias, toAlias, pattern)
	out, _, err := op.Next()
	if err != nil {
		return nil, false, err
	}
	return out[alias].Rel, true, nil
}
