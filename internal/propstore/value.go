// Package propstore implements C4: PropertyStore. Variable-length property
// values are stored as a chain of cells, each holding one (key_id,
// value_type, value) triple, keyed by (entity-kind, entity-id) and
// threaded from the entity's property_head pointer (spec.md §3 "Property",
// §4.4). Chain length is bounded in practice by the number of distinct
// keys on an entity.
package propstore

import "fmt"

// Kind tags the dynamic type of a Value, per spec.md §3: "null | boolean |
// signed integer | double | UTF-8 string | list of properties | map of
// string->property | vector".
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

// Value is a dynamically typed property value. The property model is
// dynamic at runtime (spec.md §9 "Property model is dynamic"); only one of
// the typed fields is meaningful for a given Kind.
type Value struct {
	Kind   Kind
	Bool   bool
	Int    int64
	Float  float64
	Str    string
	List   []Value
	Map    map[string]Value
	Vector []float64
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Float: f} }
func Str(s string) Value         { return Value{Kind: KindString, Str: s} }
func List(v []Value) Value       { return Value{Kind: KindList, List: v} }
func Map(v map[string]Value) Value { return Value{Kind: KindMap, Map: v} }
func Vector(v []float64) Value   { return Value{Kind: KindVector, Vector: v} }

// IsNull reports whether the value is the null property value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return v.Str
	case KindList:
		return fmt.Sprintf("%v", v.List)
	case KindMap:
		return fmt.Sprintf("%v", v.Map)
	case KindVector:
		return fmt.Sprintf("%v", v.Vector)
	default:
		return "<unknown>"
	}
}

// Equal reports deep equality between two values, used by Distinct and
// equality comparisons that don't go through three-valued WHERE semantics.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		// Integer/float promotion: 1 and 1.0 compare equal as Cypher numbers do.
		if a.Kind == KindInt && b.Kind == KindFloat {
			return float64(a.Int) == b.Float
		}
		if a.Kind == KindFloat && b.Kind == KindInt {
			return a.Float == float64(b.Int)
		}
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindInt:
		return a.Int == b.Int
	case KindFloat:
		return a.Float == b.Float
	case KindString:
		return a.Str == b.Str
	case KindVector:
		if len(a.Vector) != len(b.Vector) {
			return false
		}
		for i := range a.Vector {
			if a.Vector[i] != b.Vector[i] {
				return false
			}
		}
		return true
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
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
	default:
		return false
	}
}
