package exec

import "github.com/nexusdb/nexus/internal/cypher/parser"

// Foreach implements the FOREACH clause: for each input row, evaluate the
// driving list once and run the nested write operators once per element,
// discarding whatever those operators bind (FOREACH has no outward
// bindings in Cypher; it exists purely for its side effects, spec.md
// §4.9). build compiles the nested clause sequence against a single-row
// source seeded with the loop variable bound, and is supplied by the
// planner so Foreach itself stays storage/plan agnostic.
type Foreach struct {
	ctx   *Context
	src   Operator
	list  parser.Expr
	alias string
	build func(seed Row) (Operator, error)
}

func NewForeach(ctx *Context, src Operator, list parser.Expr, alias string, build func(seed Row) (Operator, error)) *Foreach {
	return &Foreach{ctx: ctx, src: src, list: list, alias: alias, build: build}
}

func (f *Foreach) Next() (Row, bool, error) {
	row, ok, err := f.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := f.ctx.checkCancelled(); err != nil {
		return nil, false, err
	}
	v, err := Eval(f.ctx, row, f.list)
	if err != nil {
		return nil, false, err
	}
	if v.Kind != VList {
		return row, true, nil
	}
	for _, item := range v.List {
		seed := row.Clone()
		seed[f.alias] = item
		op, err := f.build(seed)
		if err != nil {
			return nil, false, err
		}
		for {
			_, more, err := op.Next()
			if err != nil {
				return nil, false, err
			}
			if !more {
				break
			}
		}
	}
	return row, true, nil
}
