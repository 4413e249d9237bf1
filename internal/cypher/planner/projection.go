package planner

import (
	"fmt"
	"strings"

	"github.com/nexusdb/nexus/internal/cypher/exec"
	"github.com/nexusdb/nexus/internal/cypher/parser"
)

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "collect": true,
}

// isAggregateCall reports whether e is a direct call to one of Cypher's
// aggregate functions. Nested aggregates (`count(n) + 1`) are not detected
// here and fall through to plain projection, a simplification noted in
// DESIGN.md: this planner's aggregation compilation handles the common
// "bare aggregate, optionally aliased" shape (spec.md §4.11 "Aggregate"),
// not arbitrary aggregate sub-expressions.
func isAggregateCall(e parser.Expr) (*parser.FunctionCall, bool) {
	fc, ok := e.(*parser.FunctionCall)
	if !ok {
		return nil, false
	}
	return fc, aggregateFuncs[strings.ToLower(fc.Name)]
}

func isStarArg(fc *parser.FunctionCall) bool {
	if len(fc.Args) != 1 {
		return false
	}
	ve, ok := fc.Args[0].(*parser.VariableExpr)
	return ok && ve.Name == "*"
}

// itemAlias derives a projection item's output column name: its explicit
// alias, the bare variable name for `RETURN n`, or a synthesized label for
// any other unaliased expression (spec.md §4.9 "unaliased non-variable
// expressions get an implementation-defined column name").
func itemAlias(it *parser.ProjectionItem) string {
	if it.Alias != "" {
		return it.Alias
	}
	if ve, ok := it.Expr.(*parser.VariableExpr); ok {
		return ve.Name
	}
	return exprLabel(it.Expr)
}

func exprLabel(e parser.Expr) string {
	switch x := e.(type) {
	case *parser.VariableExpr:
		return x.Name
	case *parser.PropertyAccess:
		return exprLabel(x.Target) + "." + x.Key
	case *parser.FunctionCall:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = exprLabel(a)
		}
		return x.Name + "(" + strings.Join(args, ", ") + ")"
	case *parser.IntLiteral:
		return fmt.Sprintf("%d", x.Value)
	case *parser.FloatLiteral:
		return fmt.Sprintf("%g", x.Value)
	case *parser.StringLiteral:
		return fmt.Sprintf("%q", x.Value)
	case *parser.BoolLiteral:
		return fmt.Sprintf("%v", x.Value)
	case *parser.BinaryExpr:
		return exprLabel(x.Left) + " " + x.Op + " " + exprLabel(x.Right)
	case *parser.UnaryExpr:
		return x.Op + exprLabel(x.Operand)
	default:
		return "expr"
	}
}

// compileProjection builds the Project or Aggregate operator for a
// RETURN/WITH item list (spec.md §4.11). Any item whose expression is a
// bare aggregate function call routes every OTHER item into the group-by
// key list, matching Cypher's implicit grouping: mixing aggregate and
// non-aggregate projection items groups by the non-aggregate ones.
func compileProjection(ctx *exec.Context, op exec.Operator, items []*parser.ProjectionItem) (exec.Operator, []string, error) {
	hasAgg := false
	for _, it := range items {
		if _, ok := isAggregateCall(it.Expr); ok {
			hasAgg = true
			break
		}
	}

	columns := make([]string, len(items))
	for i, it := range items {
		columns[i] = itemAlias(it)
	}

	if !hasAgg {
		return exec.NewProject(ctx, op, items), columns, nil
	}

	var groupAliases []string
	var groupExprs []parser.Expr
	var aggs []exec.AggSpec
	for i, it := range items {
		if fc, ok := isAggregateCall(it.Expr); ok {
			var arg parser.Expr
			if len(fc.Args) > 0 && !isStarArg(fc) {
				arg = fc.Args[0]
			}
			aggs = append(aggs, exec.AggSpec{
				Func:     strings.ToLower(fc.Name),
				Arg:      arg,
				Alias:    columns[i],
				Distinct: fc.Distinct,
			})
			continue
		}
		groupAliases = append(groupAliases, columns[i])
		groupExprs = append(groupExprs, it.Expr)
	}
	return exec.NewAggregate(ctx, op, groupAliases, groupExprs, aggs), columns, nil
}

// compileWith compiles a WITH clause: project, then filter/order/paginate
// against the projected row, then replace scope with exactly the
// projected aliases (spec.md §4.9 "WITH re-scopes: only the projected
// items remain bound afterward").
func compileWith(ctx *exec.Context, op exec.Operator, ps *planState, c *parser.WithClause) (exec.Operator, error) {
	items := expandStar(c.Projection, ps)
	op, columns, err := compileProjection(ctx, ensureSeed(op), items)
	if err != nil {
		return nil, err
	}
	if c.Where != nil {
		op = exec.NewFilter(ctx, op, c.Where)
	}
	if c.Distinct {
		op = exec.NewDistinct(op, columns)
	}
	if len(c.OrderBy) > 0 {
		op = exec.NewSort(ctx, op, c.OrderBy)
	}
	if c.Skip != nil || c.Limit != nil {
		skip, limit, err := evalSkipLimit(ctx, c.Skip, c.Limit)
		if err != nil {
			return nil, err
		}
		op = exec.NewSkipLimit(op, skip, limit)
	}
	ps.reset(columns)
	return op, nil
}
