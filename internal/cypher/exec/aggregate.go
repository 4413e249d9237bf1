package exec

import (
	"fmt"
	"strings"

	"github.com/nexusdb/nexus/internal/cypher/parser"
)

// AggSpec is one aggregate projection: a function applied over Arg
// (nil for the `count(*)` form), folded per group and bound to Alias.
type AggSpec struct {
	Func     string // "count", "sum", "avg", "min", "max", "collect"
	Arg      parser.Expr
	Alias    string
	Distinct bool
}

type groupItem struct {
	alias string
	expr  parser.Expr
}

// Aggregate implements the Aggregate operator: groups rows by the
// non-aggregate projection expressions and folds each aggregate function
// over every row in its group (spec.md §4.11 "Aggregate"). Rows with no
// grouping key at all (a bare `RETURN count(*)`) collapse to a single
// group, including the empty-input case — `count(*)` over zero matched
// rows returns 0, not an empty result set (spec.md §9 Open Question 1).
type Aggregate struct {
	ctx    *Context
	src    Operator
	groups []groupItem
	aggs   []AggSpec

	rows []Row
	pos  int
	done bool
}

func NewAggregate(ctx *Context, src Operator, groupAliases []string, groupExprs []parser.Expr, aggs []AggSpec) *Aggregate {
	a := &Aggregate{ctx: ctx, src: src, aggs: aggs}
	for i, alias := range groupAliases {
		a.groups = append(a.groups, groupItem{alias: alias, expr: groupExprs[i]})
	}
	return a
}

type aggState struct {
	keyVals []Value
	count   int64
	sum     float64
	sumIsFloat bool
	min, max Value
	haveMinMax bool
	collected []Value
	distinctSeen map[string]bool
}

func (a *Aggregate) materialize() error {
	order := []string{}
	states := map[string][]*aggState{}

	ensure := func(key string, keyVals []Value) []*aggState {
		if st, ok := states[key]; ok {
			return st
		}
		st := make([]*aggState, len(a.aggs))
		for i := range st {
			st[i] = &aggState{keyVals: keyVals, distinctSeen: map[string]bool{}}
		}
		states[key] = st
		order = append(order, key)
		return st
	}

	sawAnyRow := false
	for {
		row, ok, err := a.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		sawAnyRow = true
		if err := a.ctx.checkCancelled(); err != nil {
			return err
		}
		keyVals := make([]Value, len(a.groups))
		var sb strings.Builder
		for i, g := range a.groups {
			v, err := Eval(a.ctx, row, g.expr)
			if err != nil {
				return err
			}
			keyVals[i] = v
			sb.WriteString(groupKeyPart(v))
			sb.WriteByte('\x1f')
		}
		st := ensure(sb.String(), keyVals)
		for i, spec := range a.aggs {
			if err := foldAgg(a.ctx, row, spec, st[i]); err != nil {
				return err
			}
		}
	}

	if len(a.groups) == 0 && !sawAnyRow {
		ensure("", nil)
	}

	var out []Row
	for _, key := range order {
		st := states[key]
		row := Row{}
		for i, g := range a.groups {
			row[g.alias] = st[0].keyVals[i]
		}
		for i, spec := range a.aggs {
			row[spec.Alias] = finishAgg(spec, st[i])
		}
		out = append(out, row)
	}
	a.rows = out
	a.done = true
	return nil
}

func groupKeyPart(v Value) string {
	switch v.Kind {
	case VInt:
		return fmt.Sprintf("n:%v", float64(v.Int))
	case VFloat:
		return fmt.Sprintf("n:%v", v.Float)
	default:
		return fmt.Sprintf("%d:%s", v.Kind, v.String())
	}
}

func foldAgg(ctx *Context, row Row, spec AggSpec, st *aggState) error {
	if spec.Func == "count" && spec.Arg == nil {
		st.count++
		return nil
	}
	v, err := Eval(ctx, row, spec.Arg)
	if err != nil {
		return err
	}
	if v.IsNull() && spec.Func != "collect" {
		return nil // aggregate functions other than collect skip null inputs here; collect drops them below
	}
	if spec.Distinct {
		k := groupKeyPart(v)
		if st.distinctSeen[k] {
			return nil
		}
		st.distinctSeen[k] = true
	}
	switch spec.Func {
	case "count":
		st.count++
	case "sum", "avg":
		f, isInt, ok := numeric(v)
		if !ok {
			return nil
		}
		st.sum += f
		st.count++
		if !isInt {
			st.sumIsFloat = true
		}
	case "min":
		if !st.haveMinMax || Less(v, st.min) {
			st.min = v
			st.haveMinMax = true
		}
	case "max":
		if !st.haveMinMax || Less(st.max, v) {
			st.max = v
			st.haveMinMax = true
		}
	case "collect":
		if !v.IsNull() {
			st.collected = append(st.collected, v)
		}
	}
	return nil
}

func finishAgg(spec AggSpec, st *aggState) Value {
	switch spec.Func {
	case "count":
		return Int(st.count)
	case "sum":
		if st.count == 0 {
			return Null()
		}
		if st.sumIsFloat {
			return Float(st.sum)
		}
		return Int(int64(st.sum))
	case "avg":
		if st.count == 0 {
			return Null()
		}
		return Float(st.sum / float64(st.count))
	case "min", "max":
		if !st.haveMinMax {
			return Null()
		}
		if spec.Func == "min" {
			return st.min
		}
		return st.max
	case "collect":
		return List(st.collected)
	default:
		return Null()
	}
}

func (a *Aggregate) Next() (Row, bool, error) {
	if !a.done {
		if err := a.materialize(); err != nil {
			return nil, false, err
		}
	}
	if a.pos >= len(a.rows) {
		return nil, false, nil
	}
	r := a.rows[a.pos]
	a.pos++
	return r, true, nil
}
