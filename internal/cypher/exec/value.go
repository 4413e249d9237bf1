// Package exec implements C11: the operator executor. Operators pull rows
// from their source one at a time (spec.md §4.11, §9 "Query-execution
// control flow as a pipeline"); a Row is a map from bound alias to a
// dynamically typed Value, matching spec.md §4.11's row contract and
// generalizing propstore's storage-level value model with the two
// reference kinds a query result can hold: a node and a relationship.
package exec

import (
	"fmt"

	"github.com/nexusdb/nexus/internal/propstore"
)

// ValueKind tags the dynamic type a row column or expression result
// carries at runtime (spec.md §9 "Property model is dynamic").
type ValueKind uint8

const (
	VNull ValueKind = iota
	VBool
	VInt
	VFloat
	VString
	VList
	VMap
	VVector
	VNode
	VRel
)

// NodeRef is a query-facing view of a node: its id, resolved label names,
// and materialized properties. Built by scans/expansions from record.Node
// plus a PropertyStore read.
type NodeRef struct {
	ID     uint64
	Labels []string
	Props  map[string]Value
}

// RelRef mirrors NodeRef for relationships.
type RelRef struct {
	ID    uint64
	Type  string
	Start uint64
	End   uint64
	Props map[string]Value
}

// Value is the executor's row/expression value: property values plus the
// two entity reference kinds a Cypher result row can bind (spec.md
// §4.11 "a typed value (node reference, relationship reference, or
// property value)").
type Value struct {
	Kind   ValueKind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	List   []Value
	Map    map[string]Value
	Vector []float64
	Node   *NodeRef
	Rel    *RelRef
}

func Null() Value                  { return Value{Kind: VNull} }
func Bool(b bool) Value            { return Value{Kind: VBool, Bool: b} }
func Int(i int64) Value            { return Value{Kind: VInt, Int: i} }
func Float(f float64) Value        { return Value{Kind: VFloat, Float: f} }
func Str(s string) Value           { return Value{Kind: VString, Str: s} }
func List(v []Value) Value         { return Value{Kind: VList, List: v} }
func Map(v map[string]Value) Value { return Value{Kind: VMap, Map: v} }
func Vector(v []float64) Value     { return Value{Kind: VVector, Vector: v} }
func NodeVal(n *NodeRef) Value     { return Value{Kind: VNode, Node: n} }
func RelVal(r *RelRef) Value       { return Value{Kind: VRel, Rel: r} }

func (v Value) IsNull() bool { return v.Kind == VNull }

// Truthy implements Cypher's three-valued boolean logic: returns the
// boolean value and whether it was actually a (non-null) boolean at all.
// Callers treat !ok as null-in-boolean-context.
func (v Value) Truthy() (value bool, ok bool) {
	if v.Kind != VBool {
		return false, false
	}
	return v.Bool, true
}

func (v Value) String() string {
	switch v.Kind {
	case VNull:
		return "null"
	case VBool:
		return fmt.Sprintf("%v", v.Bool)
	case VInt:
		return fmt.Sprintf("%d", v.Int)
	case VFloat:
		return fmt.Sprintf("%g", v.Float)
	case VString:
		return v.Str
	case VList:
		return fmt.Sprintf("%v", v.List)
	case VMap:
		return fmt.Sprintf("%v", v.Map)
	case VVector:
		return fmt.Sprintf("%v", v.Vector)
	case VNode:
		return fmt.Sprintf("(node %d)", v.Node.ID)
	case VRel:
		return fmt.Sprintf("[rel %d]", v.Rel.ID)
	default:
		return "<unknown>"
	}
}

// FromProperty converts a property-store value into its row-value
// equivalent. Property values never carry entity references, so this is
// a pure widening conversion.
func FromProperty(pv propstore.Value) Value {
	switch pv.Kind {
	case propstore.KindNull:
		return Null()
	case propstore.KindBool:
		return Bool(pv.Bool)
	case propstore.KindInt:
		return Int(pv.Int)
	case propstore.KindFloat:
		return Float(pv.Float)
	case propstore.KindString:
		return Str(pv.Str)
	case propstore.KindVector:
		return Vector(pv.Vector)
	case propstore.KindList:
		out := make([]Value, len(pv.List))
		for i, e := range pv.List {
			out[i] = FromProperty(e)
		}
		return List(out)
	case propstore.KindMap:
		out := make(map[string]Value, len(pv.Map))
		for k, e := range pv.Map {
			out[k] = FromProperty(e)
		}
		return Map(out)
	default:
		return Null()
	}
}

// ToProperty converts a row value into a property-store value for
// writing via SET/CREATE. It fails for node/relationship references,
// which cannot be stored as a property (spec.md §3 "Property").
func ToProperty(v Value) (propstore.Value, error) {
	switch v.Kind {
	case VNull:
		return propstore.Null(), nil
	case VBool:
		return propstore.Bool(v.Bool), nil
	case VInt:
		return propstore.Int(v.Int), nil
	case VFloat:
		return propstore.Float(v.Float), nil
	case VString:
		return propstore.Str(v.Str), nil
	case VVector:
		return propstore.Vector(v.Vector), nil
	case VList:
		out := make([]propstore.Value, len(v.List))
		for i, e := range v.List {
			pv, err := ToProperty(e)
			if err != nil {
				return propstore.Value{}, err
			}
			out[i] = pv
		}
		return propstore.List(out), nil
	case VMap:
		out := make(map[string]propstore.Value, len(v.Map))
		for k, e := range v.Map {
			pv, err := ToProperty(e)
			if err != nil {
				return propstore.Value{}, err
			}
			out[k] = pv
		}
		return propstore.Map(out), nil
	default:
		return propstore.Value{}, fmt.Errorf("value of kind %d cannot be stored as a property", v.Kind)
	}
}

// Equal is value-level equality used by DISTINCT, ORDER BY tie-breaking,
// and set membership (as opposed to WHERE's three-valued `=`, see
// eval.go's compareEqual). Numeric promotion matches Cypher: 1 and 1.0
// compare equal.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		if a.Kind == VInt && b.Kind == VFloat {
			return float64(a.Int) == b.Float
		}
		if a.Kind == VFloat && b.Kind == VInt {
			return a.Float == float64(b.Int)
		}
		return false
	}
	switch a.Kind {
	case VNull:
		return true
	case VBool:
		return a.Bool == b.Bool
	case VInt:
		return a.Int == b.Int
	case VFloat:
		return a.Float == b.Float
	case VString:
		return a.Str == b.Str
	case VVector:
		if len(a.Vector) != len(b.Vector) {
			return false
		}
		for i := range a.Vector {
			if a.Vector[i] != b.Vector[i] {
				return false
			}
		}
		return true
	case VList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case VMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	case VNode:
		return a.Node.ID == b.Node.ID
	case VRel:
		return a.Rel.ID == b.Rel.ID
	default:
		return false
	}
}

// Less orders two values for ORDER BY. Cypher's default sort order is
// null < numbers < strings < booleans < lists < maps < nodes <
// relationships; within a kind, natural order applies.
func Less(a, b Value) bool {
	ra, rb := sortRank(a), sortRank(b)
	if ra != rb {
		return ra < rb
	}
	switch a.Kind {
	case VInt:
		if b.Kind == VFloat {
			return float64(a.Int) < b.Float
		}
		return a.Int < b.Int
	case VFloat:
		if b.Kind == VInt {
			return a.Float < float64(b.Int)
		}
		return a.Float < b.Float
	case VString:
		return a.Str < b.Str
	case VBool:
		return !a.Bool && b.Bool
	case VList:
		n := len(a.List)
		if len(b.List) < n {
			n = len(b.List)
		}
		for i := 0; i < n; i++ {
			if !Equal(a.List[i], b.List[i]) {
				return Less(a.List[i], b.List[i])
			}
		}
		return len(a.List) < len(b.List)
	default:
		return false
	}
}

func sortRank(v Value) int {
	switch v.Kind {
	case VNull:
		return 0
	case VInt, VFloat:
		return 1
	case VString:
		return 2
	case VBool:
		return 3
	case VList:
		return 4
	case VMap:
		return 5
	case VNode:
		return 6
	case VRel:
		return 7
	default:
		return 8
	}
}

// CompareKeys orders two multi-column sort keys using per-column
// direction, implementing Sort's "total sort; stable" contract (spec.md
// §4.11). Equal is checked first so null/NaN-free Less never needs to
// handle the tie case itself.
func CompareKeys(a, b []Value, descending []bool) bool {
	for k := range a {
		if Equal(a[k], b[k]) {
			continue
		}
		if descending[k] {
			return Less(b[k], a[k])
		}
		return Less(a[k], b[k])
	}
	return false
}
