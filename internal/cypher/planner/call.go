package planner

import (
	"strings"

	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/index/vector"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// compileCall compiles a CALL...YIELD clause. Three procedures are built
// in: vector.knn, the vector search entry point (spec.md §4.7.3, §8
// scenario 6), and the pair of admin procedures that register a property
// or vector sub-index (spec.md §4.7.2/§4.7.3's "optionally registered as
// indexed" — Cypher itself has no DDL syntax for this in scope, so index
// creation is exposed as a procedure instead).
func compileCall(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.CallClause) (exec.Operator, error) {
	op = ensureSeed(op)
	switch strings.ToLower(c.Procedure) {
	case "vector.knn":
		return compileVectorKNN(ctx, op, ps, c)
	case "db.createpropertyindex":
		return &sideEffectOp{src: op, fn: func(row exec.Row) error {
			label, key, err := evalTwoStrings(ctx, row, c.Args)
			if err != nil {
				return err
			}
			return exec.EnsurePropertyIndex(ctx, label, key)
		}}, nil
	case "db.createvectorindex":
		return &sideEffectOp{src: op, fn: func(row exec.Row) error {
			label, key, err := evalTwoStrings(ctx, row, c.Args)
			if err != nil {
				return err
			}
			return exec.EnsureVectorIndex(ctx, label, key, vector.DefaultConfig())
		}}, nil
	default:
		return nil, nexuserr.New(nexuserr.KindSemantic, "unknown procedure %q", c.Procedure)
	}
}

func evalTwoStrings(ctx *exec.Context, row exec.Row, args []parser.Expr) (string, string, error) {
	if len(args) < 2 {
		return "", "", nexuserr.New(nexuserr.KindSemantic, "procedure requires at least 2 arguments")
	}
	a, err := exec.Eval(ctx, row, args[0])
	if err != nil {
		return "", "", err
	}
	b, err := exec.Eval(ctx, row, args[1])
	if err != nil {
		return "", "", err
	}
	return a.Str, b.Str, nil
}

// sideEffectOp runs fn once per input row for its effect, passing the row
// through unchanged; used for CALL procedures that mutate schema/index
// state rather than yielding new columns.
type sideEffectOp struct {
	src exec.Operator
	fn  func(exec.Row) error
}

func (s *sideEffectOp) Next() (exec.Row, bool, error) {
	row, ok, err := s.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := s.fn(row); err != nil {
		return nil, false, err
	}
	return row, true, nil
}

// compileVectorKNN compiles `CALL vector.knn(label, key, query, k
// [, efSearch]) YIELD node, score`. Every argument is re-evaluated per
// input row, since label/key/query/k may themselves reference variables
// bound by a preceding MATCH.
func compileVectorKNN(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.CallClause) (exec.Operator, error) {
	if len(c.Args) < 4 {
		return nil, nexuserr.New(nexuserr.KindSemantic, "vector.knn requires (label, key, query, k[, efSearch])")
	}
	nodeAlias, scoreAlias := ps.bind("node"), ps.bind("score")
	if len(c.Yield) > 0 {
		nodeAlias = ps.bind(c.Yield[0])
	}
	if len(c.Yield) > 1 {
		scoreAlias = ps.bind(c.Yield[1])
	}
	var efExpr parser.Expr
	if len(c.Args) > 4 {
		efExpr = c.Args[4]
	}
	return &vectorKNNOp{
		ctx:        ctx,
		src:        op,
		labelExpr:  c.Args[0],
		keyExpr:    c.Args[1],
		queryExpr:  c.Args[2],
		kExpr:      c.Args[3],
		efExpr:     efExpr,
		nodeAlias:  nodeAlias,
		scoreAlias: scoreAlias,
	}, nil
}

type vectorKNNOp struct {
	ctx                   *exec.Context
	src                   exec.Operator
	labelExpr, keyExpr    parser.Expr
	queryExpr, kExpr      parser.Expr
	efExpr                parser.Expr
	nodeAlias, scoreAlias string

	curRow  exec.Row
	results []vector.Result
	pos     int
}

func (o *vectorKNNOp) Next() (exec.Row, bool, error) {
	for {
		for o.pos < len(o.results) {
			r := o.results[o.pos]
			o.pos++
			ref, ok, err := o.ctx.ReadNodeRef(r.NodeID)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				continue
			}
			out := o.curRow.Clone()
			out[o.nodeAlias] = exec.NodeVal(ref)
			out[o.scoreAlias] = exec.Float(r.Distance)
			return out, true, nil
		}
		row, ok, err := o.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		labelV, err := exec.Eval(o.ctx, row, o.labelExpr)
		if err != nil {
			return nil, false, err
		}
		keyV, err := exec.Eval(o.ctx, row, o.keyExpr)
		if err != nil {
			return nil, false, err
		}
		queryV, err := exec.Eval(o.ctx, row, o.queryExpr)
		if err != nil {
			return nil, false, err
		}
		kV, err := exec.Eval(o.ctx, row, o.kExpr)
		if err != nil {
			return nil, false, err
		}
		ef := 0
		if o.efExpr != nil {
			efV, err := exec.Eval(o.ctx, row, o.efExpr)
			if err != nil {
				return nil, false, err
			}
			ef = int(efV.Int)
		}
		results, err := exec.RunVectorKNN(o.ctx, labelV.Str, keyV.Str, queryV.Vector, int(kV.Int), ef)
		if err != nil {
			return nil, false, err
		}
		o.curRow = row
		o.results = results
		o.pos = 0
	}
}
