package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/cypher/parser"
)

func emptyCtx() *Context {
	return &Context{Params: map[string]Value{}}
}

func evalExpr(t *testing.T, e parser.Expr, row Row) Value {
	t.Helper()
	v, err := Eval(emptyCtx(), row, e)
	require.NoError(t, err)
	return v
}

func TestEvalLiteralsAndVariables(t *testing.T) {
	require.Equal(t, Int(42), evalExpr(t, &parser.IntLiteral{Value: 42}, nil))
	require.Equal(t, Null(), evalExpr(t, &parser.NullLiteral{}, nil))
	require.Equal(t, Int(7), evalExpr(t, &parser.VariableExpr{Name: "x"}, Row{"x": Int(7)}))
	require.Equal(t, Null(), evalExpr(t, &parser.VariableExpr{Name: "missing"}, Row{}))
}

func TestEvalParameterFallsBackToNullWhenUnbound(t *testing.T) {
	ctx := &Context{Params: map[string]Value{"age": Int(30)}}
	v, err := Eval(ctx, Row{}, &parser.ParameterExpr{Name: "age"})
	require.NoError(t, err)
	require.Equal(t, Int(30), v)

	v, err = Eval(ctx, Row{}, &parser.ParameterExpr{Name: "missing"})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestEvalArithmeticIntVsFloatPromotion(t *testing.T) {
	add := &parser.BinaryExpr{Op: "+", Left: &parser.IntLiteral{Value: 2}, Right: &parser.IntLiteral{Value: 3}}
	require.Equal(t, Int(5), evalExpr(t, add, nil))

	mixed := &parser.BinaryExpr{Op: "+", Left: &parser.IntLiteral{Value: 2}, Right: &parser.FloatLiteral{Value: 1.5}}
	require.Equal(t, Float(3.5), evalExpr(t, mixed, nil))
}

func TestEvalArithmeticNullPropagates(t *testing.T) {
	expr := &parser.BinaryExpr{Op: "+", Left: &parser.NullLiteral{}, Right: &parser.IntLiteral{Value: 1}}
	require.True(t, evalExpr(t, expr, nil).IsNull())
}

func TestEvalDivisionByZeroErrors(t *testing.T) {
	expr := &parser.BinaryExpr{Op: "/", Left: &parser.IntLiteral{Value: 1}, Right: &parser.IntLiteral{Value: 0}}
	_, err := Eval(emptyCtx(), nil, expr)
	require.Error(t, err)
}

func TestEvalStringConcatenationViaPlus(t *testing.T) {
	expr := &parser.BinaryExpr{Op: "+", Left: &parser.StringLiteral{Value: "foo"}, Right: &parser.StringLiteral{Value: "bar"}}
	require.Equal(t, Str("foobar"), evalExpr(t, expr, nil))
}

func TestEvalEqualityNullYieldsNull(t *testing.T) {
	expr := &parser.BinaryExpr{Op: "=", Left: &parser.NullLiteral{}, Right: &parser.IntLiteral{Value: 1}}
	require.True(t, evalExpr(t, expr, nil).IsNull())

	expr2 := &parser.BinaryExpr{Op: "=", Left: &parser.IntLiteral{Value: 1}, Right: &parser.IntLiteral{Value: 1}}
	v, ok := evalExpr(t, expr2, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)
}

func TestEvalAndThreeValuedLogic(t *testing.T) {
	falseLit := &parser.BoolLiteral{Value: false}
	nullLit := &parser.NullLiteral{}
	trueLit := &parser.BoolLiteral{Value: true}

	// false AND null = false (false dominates).
	v := evalExpr(t, &parser.BinaryExpr{Op: "AND", Left: falseLit, Right: nullLit}, nil)
	b, ok := v.Truthy()
	require.True(t, ok)
	require.False(t, b)

	// true AND null = null.
	require.True(t, evalExpr(t, &parser.BinaryExpr{Op: "AND", Left: trueLit, Right: nullLit}, nil).IsNull())
}

func TestEvalOrThreeValuedLogic(t *testing.T) {
	falseLit := &parser.BoolLiteral{Value: false}
	nullLit := &parser.NullLiteral{}
	trueLit := &parser.BoolLiteral{Value: true}

	// true OR null = true (true dominates).
	v := evalExpr(t, &parser.BinaryExpr{Op: "OR", Left: trueLit, Right: nullLit}, nil)
	b, ok := v.Truthy()
	require.True(t, ok)
	require.True(t, b)

	// false OR null = null.
	require.True(t, evalExpr(t, &parser.BinaryExpr{Op: "OR", Left: falseLit, Right: nullLit}, nil).IsNull())
}

func TestEvalInWithNullMember(t *testing.T) {
	list := &parser.ListLiteral{Items: []parser.Expr{
		&parser.IntLiteral{Value: 1},
		&parser.NullLiteral{},
	}}
	// item not present but list has null -> null (can't prove absence).
	notFound := &parser.InExpr{Item: &parser.IntLiteral{Value: 2}, List: list}
	require.True(t, evalExpr(t, notFound, nil).IsNull())

	// item present -> true even with a null sibling.
	found := &parser.InExpr{Item: &parser.IntLiteral{Value: 1}, List: list}
	v, ok := evalExpr(t, found, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)
}

func TestEvalIsNullExprAndNegation(t *testing.T) {
	isNull := &parser.IsNullExpr{Operand: &parser.NullLiteral{}}
	v, ok := evalExpr(t, isNull, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)

	isNotNull := &parser.IsNullExpr{Operand: &parser.NullLiteral{}, Negate: true}
	v, ok = evalExpr(t, isNotNull, nil).Truthy()
	require.True(t, ok)
	require.False(t, v)
}

func TestEvalCaseGenericForm(t *testing.T) {
	expr := &parser.CaseExpr{
		Whens: []*parser.CaseWhen{
			{Cond: &parser.BoolLiteral{Value: false}, Result: &parser.StringLiteral{Value: "no"}},
			{Cond: &parser.BoolLiteral{Value: true}, Result: &parser.StringLiteral{Value: "yes"}},
		},
		Else: &parser.StringLiteral{Value: "else"},
	}
	require.Equal(t, Str("yes"), evalExpr(t, expr, nil))
}

func TestEvalCaseFallsThroughToElse(t *testing.T) {
	expr := &parser.CaseExpr{
		Whens: []*parser.CaseWhen{
			{Cond: &parser.BoolLiteral{Value: false}, Result: &parser.StringLiteral{Value: "no"}},
		},
		Else: &parser.StringLiteral{Value: "else"},
	}
	require.Equal(t, Str("else"), evalExpr(t, expr, nil))
}

func TestEvalCaseWithNoElseYieldsNull(t *testing.T) {
	expr := &parser.CaseExpr{Whens: []*parser.CaseWhen{
		{Cond: &parser.BoolLiteral{Value: false}, Result: &parser.StringLiteral{Value: "no"}},
	}}
	require.True(t, evalExpr(t, expr, nil).IsNull())
}

func TestEvalIndexNegativeWraps(t *testing.T) {
	list := &parser.ListLiteral{Items: []parser.Expr{
		&parser.IntLiteral{Value: 1}, &parser.IntLiteral{Value: 2}, &parser.IntLiteral{Value: 3},
	}}
	expr := &parser.IndexExpr{Target: list, Index: &parser.IntLiteral{Value: -1}}
	require.Equal(t, Int(3), evalExpr(t, expr, nil))
}

func TestEvalIndexOutOfRangeYieldsNull(t *testing.T) {
	list := &parser.ListLiteral{Items: []parser.Expr{&parser.IntLiteral{Value: 1}}}
	expr := &parser.IndexExpr{Target: list, Index: &parser.IntLiteral{Value: 5}}
	require.True(t, evalExpr(t, expr, nil).IsNull())
}

func TestEvalMapIndexByKey(t *testing.T) {
	m := &parser.MapLiteral{Keys: []string{"a"}, Values: []parser.Expr{&parser.IntLiteral{Value: 9}}}
	expr := &parser.IndexExpr{Target: m, Index: &parser.StringLiteral{Value: "a"}}
	require.Equal(t, Int(9), evalExpr(t, expr, nil))

	missing := &parser.IndexExpr{Target: m, Index: &parser.StringLiteral{Value: "b"}}
	require.True(t, evalExpr(t, missing, nil).IsNull())
}

func TestEvalComparisonOperators(t *testing.T) {
	lt := &parser.BinaryExpr{Op: "<", Left: &parser.IntLiteral{Value: 1}, Right: &parser.IntLiteral{Value: 2}}
	v, ok := evalExpr(t, lt, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)

	gte := &parser.BinaryExpr{Op: ">=", Left: &parser.FloatLiteral{Value: 2.0}, Right: &parser.IntLiteral{Value: 2}}
	v, ok = evalExpr(t, gte, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)

	// Comparison against null yields null, never an error.
	nullCmp := &parser.BinaryExpr{Op: "<", Left: &parser.NullLiteral{}, Right: &parser.IntLiteral{Value: 2}}
	require.True(t, evalExpr(t, nullCmp, nil).IsNull())
}

func TestEvalStringPredicates(t *testing.T) {
	starts := &parser.BinaryExpr{Op: "STARTS WITH", Left: &parser.StringLiteral{Value: "hello"}, Right: &parser.StringLiteral{Value: "he"}}
	v, ok := evalExpr(t, starts, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)

	contains := &parser.BinaryExpr{Op: "CONTAINS", Left: &parser.StringLiteral{Value: "hello"}, Right: &parser.StringLiteral{Value: "ell"}}
	v, ok = evalExpr(t, contains, nil).Truthy()
	require.True(t, ok)
	require.True(t, v)
}

func TestEvalUnsupportedExpressionKindErrors(t *testing.T) {
	_, err := Eval(emptyCtx(), nil, unsupportedExpr{})
	require.Error(t, err)
}

type unsupportedExpr struct{}

func (unsupportedExpr) expr() {}
