package planner

import (
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
)

// compileForeach compiles a FOREACH clause. Its nested clause list runs in
// a child scope seeded with the loop variable, inheriting every alias
// already bound in the enclosing query (spec.md §4.9 "FOREACH's body sees
// the enclosing scope plus its loop variable"). exec.Foreach drives the
// iteration; build recompiles the nested operator chain once per list
// element since the loop variable's bound value differs each time.
func compileForeach(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.ForeachClause) (exec.Operator, error) {
	op = ensureSeed(op)
	outer := ps.clone()
	outer.bind(c.Variable)

	build := func(seed exec.Row) (exec.Operator, error) {
		nested := outer.clone()
		var nestedOp exec.Operator = exec.NewSliceSource([]exec.Row{seed})
		for _, clause := range c.Clauses {
			var err error
			nestedOp, err = compileClause(ctx, nestedOp, nested, clause)
			if err != nil {
				return nil, err
			}
		}
		return nestedOp, nil
	}
	return exec.NewForeach(ctx, op, c.List, c.Variable, build), nil
}
