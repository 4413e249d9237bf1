package exec

import (
	"sort"

	"github.com/nexusdb/nexus/internal/cypher/parser"
)

// Filter implements the Filter operator: drop rows whose predicate is
// not exactly true, per Cypher's three-valued logic (false and null both
// drop the row, spec.md §4.11).
type Filter struct {
	ctx  *Context
	src  Operator
	pred parser.Expr
}

func NewFilter(ctx *Context, src Operator, pred parser.Expr) *Filter {
	return &Filter{ctx: ctx, src: src, pred: pred}
}

func (f *Filter) Next() (Row, bool, error) {
	for {
		row, ok, err := f.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		if err := f.ctx.checkCancelled(); err != nil {
			return nil, false, err
		}
		v, err := Eval(f.ctx, row, f.pred)
		if err != nil {
			return nil, false, err
		}
		if v.Kind == VBool && v.Bool {
			return row, true, nil
		}
	}
}

// FilterFunc drops rows for which pred returns false, for planner-internal
// predicates that don't need the full expression evaluator (e.g. the
// same-node-id check a cyclic pattern like `(a)-->(b)-->(a)` compiles to).
type FilterFunc struct {
	src  Operator
	pred func(Row) bool
}

func NewFilterFunc(src Operator, pred func(Row) bool) *FilterFunc {
	return &FilterFunc{src: src, pred: pred}
}

func (f *FilterFunc) Next() (Row, bool, error) {
	for {
		row, ok, err := f.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		if f.pred(row) {
			return row, true, nil
		}
	}
}

// CrossJoin implements the planner's join for comma-separated MATCH
// pattern parts that don't share a bound variable: a nested-loop product
// of left's rows against a fresh instance of the right side's operator,
// rebuilt per left row since operators are single-pass (spec.md §4.11, no
// named "CrossJoin" operator in the row model but required by §4.9's
// comma-separated pattern grammar).
type CrossJoin struct {
	left       Operator
	rightBuild func() (Operator, error)

	leftRow Row
	right   Operator
	started bool
}

func NewCrossJoin(left Operator, rightBuild func() (Operator, error)) *CrossJoin {
	return &CrossJoin{left: left, rightBuild: rightBuild}
}

func (j *CrossJoin) Next() (Row, bool, error) {
	for {
		if j.right != nil {
			rrow, ok, err := j.right.Next()
			if err != nil {
				return nil, false, err
			}
			if ok {
				out := j.leftRow.Clone()
				for k, v := range rrow {
					out[k] = v
				}
				return out, true, nil
			}
			j.right = nil
		}
		lrow, ok, err := j.left.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		j.leftRow = lrow
		right, err := j.rightBuild()
		if err != nil {
			return nil, false, err
		}
		j.right = right
	}
}

// Project implements the Project operator (RETURN/WITH's expression
// list), producing a fresh row containing only the projected aliases
// (spec.md §4.11). Star re-projects every alias already bound in the
// input row, for `RETURN *`.
type Project struct {
	ctx   *Context
	src   Operator
	items []*parser.ProjectionItem
}

func NewProject(ctx *Context, src Operator, items []*parser.ProjectionItem) *Project {
	return &Project{ctx: ctx, src: src, items: items}
}

func (p *Project) Next() (Row, bool, error) {
	row, ok, err := p.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	if err := p.ctx.checkCancelled(); err != nil {
		return nil, false, err
	}
	out := make(Row, len(p.items))
	for _, item := range p.items {
		if item.Star {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		v, err := Eval(p.ctx, row, item.Expr)
		if err != nil {
			return nil, false, err
		}
		alias := item.Alias
		if alias == "" {
			if ve, isVar := item.Expr.(*parser.VariableExpr); isVar {
				alias = ve.Name
			}
		}
		out[alias] = v
	}
	return out, true, nil
}

// Distinct implements the Distinct operator: suppresses rows equal (by
// Equal semantics) to one already emitted. Keys are compared against
// every prior row's projected values, not a hash, matching the simple
// "remembers every row seen so far" shape a single-process in-memory
// executor needs nothing cleverer than (spec.md §4.11).
type Distinct struct {
	src  Operator
	seen [][]Value
	keys []string
}

// NewDistinct deduplicates rows by the values bound to keys (all aliases
// in projection order).
func NewDistinct(src Operator, keys []string) *Distinct {
	return &Distinct{src: src, keys: keys}
}

func (d *Distinct) Next() (Row, bool, error) {
	for {
		row, ok, err := d.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		key := make([]Value, len(d.keys))
		for i, k := range d.keys {
			key[i] = row[k]
		}
		dup := false
		for _, s := range d.seen {
			if equalKeys(s, key) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		d.seen = append(d.seen, key)
		return row, true, nil
	}
}

func equalKeys(a, b []Value) bool {
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Sort implements the Sort operator: a total, stable materialize-then-sort
// over every row from src (spec.md §4.11 "Sort": stable, total order).
type Sort struct {
	src        Operator
	keys       []parser.Expr
	descending []bool
	ctx        *Context

	rows []Row
	pos  int
	done bool
}

func NewSort(ctx *Context, src Operator, items []*parser.SortItem) *Sort {
	s := &Sort{ctx: ctx, src: src}
	for _, it := range items {
		s.keys = append(s.keys, it.Expr)
		s.descending = append(s.descending, it.Descending)
	}
	return s
}

func (s *Sort) materialize() error {
	var rows []Row
	var keys [][]Value
	for {
		row, ok, err := s.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		key := make([]Value, len(s.keys))
		for i, k := range s.keys {
			v, err := Eval(s.ctx, row, k)
			if err != nil {
				return err
			}
			key[i] = v
		}
		rows = append(rows, row)
		keys = append(keys, key)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return CompareKeys(keys[i], keys[j], s.descending)
	})
	s.rows = rows
	s.done = true
	return nil
}

func (s *Sort) Next() (Row, bool, error) {
	if !s.done {
		if err := s.materialize(); err != nil {
			return nil, false, err
		}
	}
	if s.pos >= len(s.rows) {
		return nil, false, nil
	}
	r := s.rows[s.pos]
	s.pos++
	return r, true, nil
}

// SkipLimit implements Skip/Limit as one operator, matching the planner's
// canonical "skip then limit" ordering (spec.md §4.10.4 "Pagination
// clause order is fixed regardless of source order").
type SkipLimit struct {
	src     Operator
	skip    int
	limit   int
	hasLim  bool
	skipped int
	emitted int
	drained bool
}

// NewSkipLimit creates the operator; limit<0 means unbounded.
func NewSkipLimit(src Operator, skip, limit int) *SkipLimit {
	return &SkipLimit{src: src, skip: skip, limit: limit, hasLim: limit >= 0}
}

// drainSource exhausts the source operator, ignoring its rows. LIMIT 0 would
// otherwise never pull from src at all, but the mutation operators upstream
// of LIMIT (SET/DELETE/CREATE...) still need to run for every matched row
// (spec.md §8 "LIMIT 0 returns zero rows but still executes mutation side
// effects that are ordered before it").
func (s *SkipLimit) drainSource() error {
	for {
		_, ok, err := s.src.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (s *SkipLimit) Next() (Row, bool, error) {
	if s.hasLim && s.limit == 0 {
		if !s.drained {
			s.drained = true
			if err := s.drainSource(); err != nil {
				return nil, false, err
			}
		}
		return nil, false, nil
	}
	if s.hasLim && s.emitted >= s.limit {
		return nil, false, nil
	}
	for s.skipped < s.skip {
		_, ok, err := s.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		s.skipped++
	}
	row, ok, err := s.src.Next()
	if err != nil || !ok {
		return nil, ok, err
	}
	s.emitted++
	return row, true, nil
}

// Unwind implements the Unwind operator: expand a list-valued expression
// into one row per element, cross-joined against the input row (spec.md
// §4.11).
type Unwind struct {
	ctx   *Context
	src   Operator
	list  parser.Expr
	alias string

	cur  Row
	vals []Value
	pos  int
}

func NewUnwind(ctx *Context, src Operator, list parser.Expr, alias string) *Unwind {
	return &Unwind{ctx: ctx, src: src, list: list, alias: alias}
}

func (u *Unwind) Next() (Row, bool, error) {
	for {
		for u.pos < len(u.vals) {
			v := u.vals[u.pos]
			u.pos++
			out := u.cur.Clone()
			out[u.alias] = v
			return out, true, nil
		}
		row, ok, err := u.src.Next()
		if err != nil || !ok {
			return nil, ok, err
		}
		v, err := Eval(u.ctx, row, u.list)
		if err != nil {
			return nil, false, err
		}
		u.cur = row
		if v.Kind == VList {
			u.vals = v.List
		} else {
			u.vals = nil
		}
		u.pos = 0
	}
}

// Union implements the Union operator (UNION / UNION ALL): concatenate
// every branch's rows, deduplicating across all of them unless all is
// set (spec.md §4.11). Deduplication compares the row's values under the
// output columns, in column order, since branches share the same output
// aliases by construction.
type Union struct {
	branches []Operator
	all      bool
	keys     []string

	idx  int
	seen [][]Value
}

func NewUnion(branches []Operator, keys []string, all bool) *Union {
	return &Union{branches: branches, all: all, keys: keys}
}

func (u *Union) Next() (Row, bool, error) {
	for u.idx < len(u.branches) {
		row, ok, err := u.branches[u.idx].Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			u.idx++
			continue
		}
		if u.all {
			return row, true, nil
		}
		key := make([]Value, len(u.keys))
		for i, k := range u.keys {
			key[i] = row[k]
		}
		dup := false
		for _, s := range u.seen {
			if equalKeys(s, key) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		u.seen = append(u.seen, key)
		return row, true, nil
	}
	return nil, false, nil
}
