package planner

import (
	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// compileMatch compiles every comma-separated pattern part in one MATCH,
// joining parts that share no bound variable via CrossJoin, then applies
// the clause's WHERE (spec.md §4.9, §4.11). WHERE is applied once after
// the full pattern rather than pushed down per-predicate; an accepted
// simplification relative to a cost-based optimizer (see DESIGN.md).
func compileMatch(ctx *exec.Context, op exec.Operator, ps *planState, m *parser.MatchClause) (exec.Operator, error) {
	for _, pp := range m.Patterns {
		var err error
		op, err = compilePatternPart(ctx, op, ps, pp, m.Optional)
		if err != nil {
			return nil, err
		}
	}
	if m.Where != nil {
		op = exec.NewFilter(ctx, op, m.Where)
	}
	return op, nil
}

// compilePatternPart compiles one node/relationship chain. The first node
// either seeds a fresh scan (cross-joined onto whatever rows already
// exist) or, if its variable is already bound, continues the chain from
// the current rows via Expand. Each subsequent (relationship, node) pair
// advances the chain one hop.
func compilePatternPart(ctx *exec.Context, op exec.Operator, ps *planState, pp *parser.PatternPart, optional bool) (exec.Operator, error) {
	if len(pp.Nodes) == 0 {
		return op, nil
	}
	first := pp.Nodes[0]
	var cur exec.Operator
	var fromAlias string

	if ps.isBound(first.Variable) {
		if op == nil {
			return nil, nexuserr.New(nexuserr.KindSemantic, "variable %q used before it is bound", first.Variable)
		}
		cur = op
		fromAlias = first.Variable
		if pred := nodePatternPredicate(fromAlias, first); pred != nil {
			cur = exec.NewFilter(ctx, cur, pred)
		}
	} else {
		fromAlias = ps.bind(first.Variable)
		scanOp, err := buildNodeScan(ctx, fromAlias, first)
		if err != nil {
			return nil, err
		}
		if op == nil {
			cur = scanOp
		} else {
			cur = exec.NewCrossJoin(op, func() (exec.Operator, error) { return buildNodeScan(ctx, fromAlias, first) })
		}
		if pred := nodePatternPredicate(fromAlias, first); pred != nil {
			cur = exec.NewFilter(ctx, cur, pred)
		}
	}

	for i, rel := range pp.Rels {
		nodePat := pp.Nodes[i+1]
		cur2, newFrom, err := compileHop(ctx, cur, ps, fromAlias, rel, nodePat, optional)
		if err != nil {
			return nil, err
		}
		cur = cur2
		fromAlias = newFrom
	}
	return cur, nil
}

// compileHop advances the pattern chain by one relationship, binding the
// relationship and the next node. A node pattern reusing an
// already-bound variable (a cyclic pattern like `(a)-->(b)-->(a)`) is
// expanded into a fresh anonymous alias plus an identity FilterFunc,
// since Expand always writes a fresh binding (spec.md §4.11, §9 "cyclic
// pattern" handling).
func compileHop(ctx *exec.Context, cur exec.Operator, ps *planState, fromAlias string, rel *parser.RelPattern, nodePat *parser.NodePattern, optional bool) (exec.Operator, string, error) {
	relAlias := ps.bind(rel.Variable)

	var typeID *uint32
	var postTypeFilter func(exec.Row) bool
	switch len(rel.Types) {
	case 0:
		// any type
	case 1:
		if id, ok := ctx.Catalog.LookupRelType(rel.Types[0]); ok {
			typeID = &id
		} else {
			return emptyOperator{}, relAlias, nil
		}
	default:
		types := append([]string(nil), rel.Types...)
		postTypeFilter = func(row exec.Row) bool {
			v, ok := row[relAlias]
			if !ok || v.Kind != exec.VRel {
				return false
			}
			for _, t := range types {
				if v.Rel.Type == t {
					return true
				}
			}
			return false
		}
	}

	cyclic := nodePat.Variable != "" && ps.isBound(nodePat.Variable)
	toAlias := nodePat.Variable
	if cyclic {
		toAlias = ps.bind("")
	} else {
		toAlias = ps.bind(nodePat.Variable)
	}

	var next exec.Operator
	switch {
	case rel.VarLength != nil:
		minHops, maxHops := 1, -1
		if rel.VarLength.Min != nil {
			minHops = *rel.VarLength.Min
		}
		if rel.VarLength.Max != nil {
			maxHops = *rel.VarLength.Max
		}
		next = exec.NewVariableLengthPath(ctx, cur, fromAlias, relAlias, toAlias, typeID, rel.Direction, minHops, maxHops, false)
	case optional:
		next = exec.NewOptionalExpand(ctx, cur, fromAlias, relAlias, toAlias, typeID, rel.Direction)
	default:
		next = exec.NewExpand(ctx, cur, fromAlias, relAlias, toAlias, typeID, rel.Direction)
	}

	if postTypeFilter != nil {
		next = exec.NewFilterFunc(next, postTypeFilter)
	}
	if pred := relPatternPredicate(relAlias, rel); pred != nil {
		next = exec.NewFilter(ctx, next, pred)
	}

	if cyclic {
		origAlias := nodePat.Variable
		boundAlias := toAlias
		next = exec.NewFilterFunc(next, func(row exec.Row) bool {
			a, okA := row[boundAlias]
			b, okB := row[origAlias]
			return okA && okB && a.Kind == exec.VNode && b.Kind == exec.VNode && a.Node.ID == b.Node.ID
		})
	} else if pred := nodePatternPredicate(toAlias, nodePat); pred != nil {
		next = exec.NewFilter(ctx, next, pred)
	}

	newFrom := toAlias
	if cyclic {
		newFrom = nodePat.Variable
	}
	return next, newFrom, nil
}

// emptyOperator yields no rows; used when a pattern references a
// relationship type that has never been interned, so it provably matches
// nothing rather than erroring.
type emptyOperator struct{}

func (emptyOperator) Next() (exec.Row, bool, error) { return nil, false, nil }

// buildNodeScan chooses AllNodesScan, NodeByLabelScan, or
// PropertyIndexSeek for a node pattern's first label, the planner's
// operator-selection decision (spec.md §4.10.1 "the planner ... prefers a
// property index seek when ... b-tree index exists"). The caller applies
// the pattern's full label and literal-property checks as a Filter on top.
func buildNodeScan(ctx *exec.Context, alias string, np *parser.NodePattern) (exec.Operator, error) {
	if len(np.Labels) == 0 {
		return exec.NewAllNodesScan(ctx, alias), nil
	}
	labelID, ok := ctx.Catalog.LookupLabel(np.Labels[0])
	if !ok {
		return emptyOperator{}, nil
	}
	if np.Properties != nil && len(np.Properties.Keys) > 0 {
		keyID, ok := ctx.Catalog.LookupPropertyKey(np.Properties.Keys[0])
		if ok && ctx.Index.BTree.IsIndexed(labelID, keyID) {
			v, err := exec.Eval(ctx, exec.Row{}, np.Properties.Values[0])
			if err != nil {
				return nil, err
			}
			return exec.NewPropertyIndexSeekEq(ctx, alias, labelID, keyID, v)
		}
	}
	return exec.NewNodeByLabelScan(ctx, alias, labelID), nil
}

// nodePatternPredicate builds the AND of a label-membership check and
// literal property equalities for np, evaluated against alias; nil if the
// pattern carries neither (nothing left to filter beyond the scan).
func nodePatternPredicate(alias string, np *parser.NodePattern) parser.Expr {
	var pred parser.Expr
	add := func(e parser.Expr) { pred = and(pred, e) }
	if len(np.Labels) > 0 {
		add(&parser.LabelCheck{Target: &parser.VariableExpr{Name: alias}, Labels: np.Labels})
	}
	if np.Properties != nil {
		for i, k := range np.Properties.Keys {
			add(propertyEquals(alias, k, np.Properties.Values[i]))
		}
	}
	return pred
}

// relPatternPredicate mirrors nodePatternPredicate for a relationship
// pattern's literal properties (type filtering is handled separately,
// since a single type interns to typeID but multiple types need a
// post-filter on the resolved type name).
func relPatternPredicate(alias string, rp *parser.RelPattern) parser.Expr {
	if rp.Properties == nil {
		return nil
	}
	var pred parser.Expr
	for i, k := range rp.Properties.Keys {
		e := propertyEquals(alias, k, rp.Properties.Values[i])
		pred = and(pred, e)
	}
	return pred
}

func propertyEquals(alias, key string, value parser.Expr) parser.Expr {
	return &parser.BinaryExpr{
		Op:   "=",
		Left: &parser.PropertyAccess{Target: &parser.VariableExpr{Name: alias}, Key: key},
		Right: value,
	}
}

func and(a, b parser.Expr) parser.Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return &parser.BinaryExpr{Op: "AND", Left: a, Right: b}
}
