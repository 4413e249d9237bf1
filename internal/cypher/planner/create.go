package planner

import (
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
)

// compileCreate compiles a CREATE clause: each pattern part allocates a
// fresh node per node pattern (unless its variable is already bound, in
// which case CREATE is only adding a relationship off an existing node)
// and a fresh relationship per relationship pattern, chained left to
// right (spec.md §4.11 "CreateNode"/"CreateRel").
func compileCreate(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.CreateClause) (exec.Operator, error) {
	op = ensureSeed(op)
	for _, pp := range c.Patterns {
		if len(pp.Nodes) == 0 {
			continue
		}
		first := pp.Nodes[0]
		fromAlias, newOp, err := createOrReuseNode(ctx, op, ps, first)
		if err != nil {
			return nil, err
		}
		op = newOp

		for i, rel := range pp.Rels {
			nodePat := pp.Nodes[i+1]
			toAlias, newOp, err := createOrReuseNode(ctx, op, ps, nodePat)
			if err != nil {
				return nil, err
			}
			op = newOp
			if rel.Variable != "" {
				ps.bind(rel.Variable)
			}
			op = exec.NewCreateRel(ctx, op, fromAlias, toAlias, rel)
			fromAlias = toAlias
		}
	}
	return op, nil
}

// createOrReuseNode binds np.Variable to an existing row value if already
// bound (CREATE referencing a node matched earlier in the same clause
// chain), otherwise appends a CreateNode step. An anonymous node pattern
// still needs a row binding to chain a following relationship off of, so
// it is planned against a shallow copy carrying a synthesized variable
// name rather than mutating the shared parsed pattern (the same AST may
// back more than one compilation, see Compile's plan-cache note).
func createOrReuseNode(ctx *exec.Context, op exec.Operator, ps *planState, np *parser.NodePattern) (string, exec.Operator, error) {
	if ps.isBound(np.Variable) {
		return np.Variable, op, nil
	}
	alias := ps.bind(np.Variable)
	pattern := np
	if np.Variable == "" {
		cp := *np
		cp.Variable = alias
		pattern = &cp
	}
	return alias, exec.NewCreateNode(ctx, op, pattern), nil
}
