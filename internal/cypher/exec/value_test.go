package exec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nexusdb/nexus/internal/propstore"
)

func TestTruthyDistinguishesNullFromBoolean(t *testing.T) {
	b, ok := Bool(true).Truthy()
	require.True(t, ok)
	require.True(t, b)

	_, ok = Null().Truthy()
	require.False(t, ok)

	_, ok = Int(1).Truthy()
	require.False(t, ok)
}

func TestEqualPromotesIntAndFloat(t *testing.T) {
	require.True(t, Equal(Int(1), Float(1.0)))
	require.True(t, Equal(Float(1.0), Int(1)))
	require.False(t, Equal(Int(1), Float(1.5)))
	require.False(t, Equal(Int(1), Str("1")))
}

func TestEqualNullsAreEqualToEachOther(t *testing.T) {
	// NB: exec.Equal is the value-equality helper for DISTINCT/ORDER BY,
	// distinct from WHERE's three-valued `=` (eval.go's compareEqual).
	require.True(t, Equal(Null(), Null()))
}

func TestEqualListsAndMapsAreDeep(t *testing.T) {
	require.True(t, Equal(List([]Value{Int(1), Str("a")}), List([]Value{Int(1), Str("a")})))
	require.False(t, Equal(List([]Value{Int(1)}), List([]Value{Int(2)})))

	m1 := Map(map[string]Value{"a": Int(1)})
	m2 := Map(map[string]Value{"a": Int(1)})
	m3 := Map(map[string]Value{"a": Int(2)})
	require.True(t, Equal(m1, m2))
	require.False(t, Equal(m1, m3))
}

func TestEqualNodeAndRelCompareByID(t *testing.T) {
	n1 := NodeVal(&NodeRef{ID: 1})
	n2 := NodeVal(&NodeRef{ID: 1})
	n3 := NodeVal(&NodeRef{ID: 2})
	require.True(t, Equal(n1, n2))
	require.False(t, Equal(n1, n3))

	r1 := RelVal(&RelRef{ID: 5})
	r2 := RelVal(&RelRef{ID: 5})
	require.True(t, Equal(r1, r2))
}

func TestLessOrdersByKindThenNaturalOrder(t *testing.T) {
	require.True(t, Less(Null(), Int(0)))
	require.True(t, Less(Int(1), Str("a")))
	require.True(t, Less(Str("z"), Bool(false)))
	require.True(t, Less(Int(1), Int(2)))
	require.True(t, Less(Int(1), Float(1.5)))
	require.True(t, Less(Float(1.5), Int(2)))
	require.True(t, Less(Str("a"), Str("b")))
	require.True(t, Less(Bool(false), Bool(true)))
}

func TestLessListsCompareElementwiseThenLength(t *testing.T) {
	require.True(t, Less(List([]Value{Int(1)}), List([]Value{Int(1), Int(2)})))
	require.True(t, Less(List([]Value{Int(1), Int(2)}), List([]Value{Int(1), Int(3)})))
	require.False(t, Less(List([]Value{Int(1)}), List([]Value{Int(1)})))
}

func TestCompareKeysHonorsPerColumnDirection(t *testing.T) {
	a := []Value{Int(1), Int(5)}
	b := []Value{Int(1), Int(3)}
	// First column tied, second column descending: a should sort before b
	// because 5 > 3 and the column is DESC.
	require.True(t, CompareKeys(a, b, []bool{false, true}))
	require.False(t, CompareKeys(b, a, []bool{false, true}))
}

func TestFromPropertyWidensEveryKind(t *testing.T) {
	require.True(t, Null().IsNull())
	require.Equal(t, VNull, FromProperty(propstore.Null()).Kind)
	require.Equal(t, Bool(true), FromProperty(propstore.Bool(true)))
	require.Equal(t, Int(7), FromProperty(propstore.Int(7)))
	require.Equal(t, Float(1.5), FromProperty(propstore.Float(1.5)))
	require.Equal(t, Str("x"), FromProperty(propstore.Str("x")))
	require.Equal(t, Vector([]float64{1, 2}), FromProperty(propstore.Vector([]float64{1, 2})))

	listed := FromProperty(propstore.List([]propstore.Value{propstore.Int(1), propstore.Str("a")}))
	require.Equal(t, List([]Value{Int(1), Str("a")}), listed)

	mapped := FromProperty(propstore.Map(map[string]propstore.Value{"k": propstore.Int(1)}))
	require.Equal(t, Map(map[string]Value{"k": Int(1)}), mapped)
}

func TestToPropertyRoundTripsAndRejectsEntityRefs(t *testing.T) {
	pv, err := ToProperty(Int(42))
	require.NoError(t, err)
	require.Equal(t, propstore.Int(42), pv)

	pv, err = ToProperty(List([]Value{Int(1), Str("a")}))
	require.NoError(t, err)
	require.Equal(t, propstore.List([]propstore.Value{propstore.Int(1), propstore.Str("a")}), pv)

	_, err = ToProperty(NodeVal(&NodeRef{ID: 1}))
	require.Error(t, err)

	_, err = ToProperty(RelVal(&RelRef{ID: 1}))
	require.Error(t, err)
}

func TestValueStringRendersEachKind(t *testing.T) {
	require.Equal(t, "null", Null().String())
	require.Equal(t, "true", Bool(true).String())
	require.Equal(t, "42", Int(42).String())
	require.Equal(t, "x", Str("x").String())
	require.Contains(t, NodeVal(&NodeRef{ID: 3}).String(), "3")
	require.Contains(t, RelVal(&RelRef{ID: 9}).String(), "9")
}
