// Package planner implements C10: it compiles a parsed Cypher query into
// an exec.Operator pipeline. Operator selection (label scan vs. property
// index seek vs. full scan), pattern join ordering, and projection/
// aggregation/pagination compilation all happen here; internal/cypher/exec
// never makes a choice about how to satisfy a pattern, only how to execute
// one already-chosen step (spec.md §4.10, §4.11). Grounded on the shape of
// the teacher's own plan-from-query compiler (internal/query/eval.go),
// generalized from a flat filter expression to a full clause pipeline.
package planner

import (
	"fmt"
	"strings"

	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/index/vector"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Plan is a compiled query: an operator pipeline ready to pull rows from,
// plus the output column names in declaration order (spec.md §4.10
// "Compile ... to pull-based operator tree").
type Plan struct {
	Root    exec.Operator
	Columns []string
}

// Compile builds a Plan for query against ctx. Compilation resolves every
// label/key/type name through ctx.Catalog as it goes (interning on write
// paths, looking up without interning on pure reads), so a Plan is only
// ever valid for the schema state current at compile time; callers that
// cache compiled query shapes across executions (spec.md §4.8's plan
// cache) must key on schema epoch in addition to query text, or recompile
// whenever OnSchemaChange fires (see DESIGN.md).
func Compile(ctx *exec.Context, query *parser.Query) (*Plan, error) {
	if len(query.Parts) == 1 {
		op, columns, tail, err := compileSingleQuery(ctx, newPlanState(), query.Parts[0], false)
		if err != nil {
			return nil, err
		}
		op, err = applyTail(ctx, op, columns, tail)
		if err != nil {
			return nil, err
		}
		return &Plan{Root: op, Columns: columns}, nil
	}
	return compileUnion(ctx, query)
}

// compileUnion compiles every branch with its own trailing
// DISTINCT/ORDER BY/SKIP/LIMIT deferred, applying only the final branch's
// settings to the combined result, matching "LIMIT and ORDER BY apply
// after the Union operator, not pushed into either branch" (spec.md §8
// scenario 4).
func compileUnion(ctx *exec.Context, query *parser.Query) (*Plan, error) {
	var branches []exec.Operator
	var columns []string
	var lastTail *parser.ReturnClause
	allTrue := true
	for i, part := range query.Parts {
		op, cols, tail, err := compileSingleQuery(ctx, newPlanState(), part, true)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			columns = cols
		} else if len(cols) != len(columns) {
			return nil, nexuserr.New(nexuserr.KindSemantic, "UNION branches must return the same number of columns")
		}
		branches = append(branches, op)
		if i == len(query.Parts)-1 {
			lastTail = tail
		}
	}
	for _, all := range query.UnionAll {
		if !all {
			allTrue = false
		}
	}
	op := exec.NewUnion(branches, columns, allTrue)
	op, err := applyTail(ctx, op, columns, lastTail)
	if err != nil {
		return nil, err
	}
	return &Plan{Root: op, Columns: columns}, nil
}

// applyTail applies a RETURN clause's DISTINCT/ORDER BY/SKIP/LIMIT to an
// already-projected operator. tail is nil for a query with no RETURN (a
// pure write statement) or when the caller deferred it (a UNION branch
// that isn't last).
func applyTail(ctx *exec.Context, op exec.Operator, columns []string, tail *parser.ReturnClause) (exec.Operator, error) {
	if tail == nil {
		return op, nil
	}
	if tail.Distinct {
		op = exec.NewDistinct(op, columns)
	}
	if len(tail.OrderBy) > 0 {
		op = exec.NewSort(ctx, op, tail.OrderBy)
	}
	if tail.Skip != nil || tail.Limit != nil {
		skip, limit, err := evalSkipLimit(ctx, tail.Skip, tail.Limit)
		if err != nil {
			return nil, err
		}
		op = exec.NewSkipLimit(op, skip, limit)
	}
	return op, nil
}

func evalSkipLimit(ctx *exec.Context, skipExpr, limitExpr parser.Expr) (skip, limit int, err error) {
	limit = -1
	if skipExpr != nil {
		v, err := exec.Eval(ctx, exec.Row{}, skipExpr)
		if err != nil {
			return 0, 0, err
		}
		skip = int(v.Int)
	}
	if limitExpr != nil {
		v, err := exec.Eval(ctx, exec.Row{}, limitExpr)
		if err != nil {
			return 0, 0, err
		}
		limit = int(v.Int)
	}
	return skip, limit, nil
}

// planState tracks which variables are bound so far while compiling one
// SingleQuery: the planner's only notion of "scope" (spec.md §4.9 variable
// scoping). order preserves first-bind order for deterministic `RETURN *`
// column ordering; anonymous pattern aliases (unnamed nodes/relationships,
// and the synthetic second binding of a cyclic pattern variable) are never
// added to it, so they never leak into a star projection.
type planState struct {
	scope map[string]bool
	order []string
	anon  int
}

func newPlanState() *planState {
	return &planState{scope: map[string]bool{}}
}

func (s *planState) clone() *planState {
	scope := make(map[string]bool, len(s.scope))
	for k, v := range s.scope {
		scope[k] = v
	}
	return &planState{scope: scope, order: append([]string(nil), s.order...), anon: s.anon}
}

// bind marks name as a public, user-visible alias; an empty name allocates
// and returns an anonymous internal alias instead, which is bound in rows
// but never exposed through `RETURN *`.
func (s *planState) bind(name string) string {
	if name == "" {
		s.anon++
		return fmt.Sprintf("$anon%d", s.anon)
	}
	if !s.scope[name] {
		s.order = append(s.order, name)
	}
	s.scope[name] = true
	return name
}

func (s *planState) isBound(name string) bool { return name != "" && s.scope[name] }

// reset replaces scope with exactly the given aliases, implementing WITH's
// "only the projected items carry forward" scoping rule (spec.md §4.9).
func (s *planState) reset(aliases []string) {
	s.scope = make(map[string]bool, len(aliases))
	s.order = append([]string(nil), aliases...)
	for _, a := range aliases {
		s.scope[a] = true
	}
}

// compileSingleQuery compiles one clause chain. deferTail suppresses
// applying a trailing RETURN's DISTINCT/ORDER BY/SKIP/LIMIT, returning it
// instead as tail for compileUnion to apply once, after combining branches.
func compileSingleQuery(ctx *exec.Context, ps *planState, sq *parser.SingleQuery, deferTail bool) (exec.Operator, []string, *parser.ReturnClause, error) {
	var op exec.Operator
	var columns []string
	var tail *parser.ReturnClause
	for _, clause := range sq.Clauses {
		var err error
		switch c := clause.(type) {
		case *parser.ReturnClause:
			items := expandStar(c.Projection, ps)
			op, columns, err = compileProjection(ctx, ensureSeed(op), items)
			if err != nil {
				return nil, nil, nil, err
			}
			if deferTail {
				tail = c
			} else {
				op, err = applyTail(ctx, op, columns, c)
				if err != nil {
					return nil, nil, nil, err
				}
			}
		default:
			op, err = compileClause(ctx, op, ps, clause)
		}
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if op == nil {
		op = exec.SingleEmptyRow()
	}
	return op, columns, tail, nil
}

// compileClause compiles every clause kind except RETURN, which
// compileSingleQuery and Foreach's nested builder both need to treat
// specially (RETURN is only legal as the final clause, and Foreach's body
// may never contain one).
func compileClause(ctx *exec.Context, op exec.Operator, ps *planState, clause parser.Clause) (exec.Operator, error) {
	switch c := clause.(type) {
	case *parser.MatchClause:
		return compileMatch(ctx, op, ps, c)
	case *parser.CreateClause:
		return compileCreate(ctx, op, ps, c)
	case *parser.MergeClause:
		return compileMerge(ctx, op, ps, c)
	case *parser.SetClause:
		return exec.NewSet(ctx, ensureSeed(op), c.Items), nil
	case *parser.RemoveClause:
		return exec.NewRemove(ctx, ensureSeed(op), c.Items), nil
	case *parser.DeleteClause:
		return exec.NewDelete(ctx, ensureSeed(op), c.Variables, c.Detach), nil
	case *parser.WithClause:
		return compileWith(ctx, op, ps, c)
	case *parser.UnwindClause:
		alias := ps.bind(c.As)
		return exec.NewUnwind(ctx, ensureSeed(op), c.List, alias), nil
	case *parser.ForeachClause:
		return compileForeach(ctx, op, ps, c)
	case *parser.CallClause:
		return compileCall(ctx, op, ps, c)
	default:
		return nil, nexuserr.New(nexuserr.KindSemantic, "unsupported clause %T", clause)
	}
}

func ensureSeed(op exec.Operator) exec.Operator {
	if op == nil {
		return exec.SingleEmptyRow()
	}
	return op
}

// expandStar replaces a `RETURN *` / `WITH *` item with one VariableExpr
// item per currently bound public alias, in bind order, so Project never
// needs to special-case Star or risk exposing an anonymous pattern alias
// (spec.md §4.9 "RETURN * re-projects every bound variable").
func expandStar(items []*parser.ProjectionItem, ps *planState) []*parser.ProjectionItem {
	var out []*parser.ProjectionItem
	for _, it := range items {
		if !it.Star {
			out = append(out, it)
			continue
		}
		for _, alias := range ps.order {
			out = append(out, &parser.ProjectionItem{Expr: &parser.VariableExpr{Name: alias}, Alias: alias})
		}
	}
	return out
}
