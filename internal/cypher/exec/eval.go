package exec

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/nexusdb/nexus/internal/cypher/parser"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Row is a binding from alias to value, the unit the executor streams
// between operators (spec.md §4.11 "a row is a map from alias to a typed
// value").
type Row map[string]Value

// Clone returns a shallow copy of r, safe for an operator to extend
// without mutating its source's row.
func (r Row) Clone() Row {
	out := make(Row, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Eval evaluates e against row in ctx, implementing Cypher's three-valued
// logic (null propagates through arithmetic and comparisons) and numeric
// promotion between int and float (spec.md §4.11).
func Eval(ctx *Context, row Row, e parser.Expr) (Value, error) {
	switch n := e.(type) {
	case *parser.NullLiteral:
		return Null(), nil
	case *parser.BoolLiteral:
		return Bool(n.Value), nil
	case *parser.IntLiteral:
		return Int(n.Value), nil
	case *parser.FloatLiteral:
		return Float(n.Value), nil
	case *parser.StringLiteral:
		return Str(n.Value), nil
	case *parser.ParameterExpr:
		if v, ok := ctx.Params[n.Name]; ok {
			return v, nil
		}
		return Null(), nil
	case *parser.VariableExpr:
		if v, ok := row[n.Name]; ok {
			return v, nil
		}
		return Null(), nil
	case *parser.ListLiteral:
		out := make([]Value, len(n.Items))
		for i, it := range n.Items {
			v, err := Eval(ctx, row, it)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out), nil
	case *parser.MapLiteral:
		out := make(map[string]Value, len(n.Keys))
		for i, k := range n.Keys {
			v, err := Eval(ctx, row, n.Values[i])
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	case *parser.PropertyAccess:
		return evalPropertyAccess(ctx, row, n)
	case *parser.LabelCheck:
		return evalLabelCheck(ctx, row, n)
	case *parser.FunctionCall:
		return evalFunction(ctx, row, n)
	case *parser.BinaryExpr:
		return evalBinary(ctx, row, n)
	case *parser.UnaryExpr:
		return evalUnary(ctx, row, n)
	case *parser.InExpr:
		return evalIn(ctx, row, n)
	case *parser.IsNullExpr:
		v, err := Eval(ctx, row, n.Operand)
		if err != nil {
			return Value{}, err
		}
		result := v.IsNull()
		if n.Negate {
			result = !result
		}
		return Bool(result), nil
	case *parser.CaseExpr:
		return evalCase(ctx, row, n)
	case *parser.ExistsExpr:
		return evalExists(ctx, row, n)
	case *parser.IndexExpr:
		return evalIndex(ctx, row, n)
	case *parser.SliceExpr:
		return evalSlice(ctx, row, n)
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unsupported expression type %T", e)
	}
}

func evalPropertyAccess(ctx *Context, row Row, n *parser.PropertyAccess) (Value, error) {
	target, err := Eval(ctx, row, n.Target)
	if err != nil {
		return Value{}, err
	}
	switch target.Kind {
	case VNode:
		if v, ok := target.Node.Props[n.Key]; ok {
			return v, nil
		}
		return Null(), nil
	case VRel:
		if v, ok := target.Rel.Props[n.Key]; ok {
			return v, nil
		}
		return Null(), nil
	case VMap:
		if v, ok := target.Map[n.Key]; ok {
			return v, nil
		}
		return Null(), nil
	case VNull:
		return Null(), nil
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "cannot access property %q on %s", n.Key, target)
	}
}

func evalLabelCheck(ctx *Context, row Row, n *parser.LabelCheck) (Value, error) {
	target, err := Eval(ctx, row, n.Target)
	if err != nil {
		return Value{}, err
	}
	if target.Kind != VNode {
		return Null(), nil
	}
	have := make(map[string]bool, len(target.Node.Labels))
	for _, l := range target.Node.Labels {
		have[l] = true
	}
	for _, want := range n.Labels {
		if !have[want] {
			return Bool(false), nil
		}
	}
	return Bool(true), nil
}

func evalUnary(ctx *Context, row Row, n *parser.UnaryExpr) (Value, error) {
	v, err := Eval(ctx, row, n.Operand)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case "NOT":
		if v.Kind != VBool {
			return Null(), nil
		}
		return Bool(!v.Bool), nil
	case "-":
		if v.IsNull() {
			return Null(), nil
		}
		switch v.Kind {
		case VInt:
			return Int(-v.Int), nil
		case VFloat:
			return Float(-v.Float), nil
		default:
			return Value{}, nexuserr.New(nexuserr.KindSemantic, "cannot negate %s", v)
		}
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unknown unary operator %q", n.Op)
	}
}

func evalBinary(ctx *Context, row Row, n *parser.BinaryExpr) (Value, error) {
	switch n.Op {
	case "AND":
		return evalAnd(ctx, row, n)
	case "OR":
		return evalOr(ctx, row, n)
	case "XOR":
		l, err := Eval(ctx, row, n.Left)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(ctx, row, n.Right)
		if err != nil {
			return Value{}, err
		}
		if l.Kind != VBool || r.Kind != VBool {
			return Null(), nil
		}
		return Bool(l.Bool != r.Bool), nil
	}

	l, err := Eval(ctx, row, n.Left)
	if err != nil {
		return Value{}, err
	}
	r, err := Eval(ctx, row, n.Right)
	if err != nil {
		return Value{}, err
	}

	switch n.Op {
	case "+", "-", "*", "/", "%", "^":
		return evalArith(n.Op, l, r)
	case "=":
		return compareEqual(l, r), nil
	case "<>":
		eq := compareEqual(l, r)
		if eq.Kind != VBool {
			return Null(), nil
		}
		return Bool(!eq.Bool), nil
	case "<", "<=", ">", ">=":
		return compareOrder(n.Op, l, r)
	case "STARTS WITH":
		return stringPredicate(l, r, strings.HasPrefix)
	case "ENDS WITH":
		return stringPredicate(l, r, strings.HasSuffix)
	case "CONTAINS":
		return stringPredicate(l, r, strings.Contains)
	case "=~":
		return evalRegex(l, r)
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unknown binary operator %q", n.Op)
	}
}

func evalAnd(ctx *Context, row Row, n *parser.BinaryExpr) (Value, error) {
	l, err := Eval(ctx, row, n.Left)
	if err != nil {
		return Value{}, err
	}
	if l.Kind == VBool && !l.Bool {
		return Bool(false), nil
	}
	r, err := Eval(ctx, row, n.Right)
	if err != nil {
		return Value{}, err
	}
	if r.Kind == VBool && !r.Bool {
		return Bool(false), nil
	}
	if l.Kind == VBool && r.Kind == VBool {
		return Bool(true), nil
	}
	return Null(), nil
}

func evalOr(ctx *Context, row Row, n *parser.BinaryExpr) (Value, error) {
	l, err := Eval(ctx, row, n.Left)
	if err != nil {
		return Value{}, err
	}
	if l.Kind == VBool && l.Bool {
		return Bool(true), nil
	}
	r, err := Eval(ctx, row, n.Right)
	if err != nil {
		return Value{}, err
	}
	if r.Kind == VBool && r.Bool {
		return Bool(true), nil
	}
	if l.Kind == VBool && r.Kind == VBool {
		return Bool(false), nil
	}
	return Null(), nil
}

// numeric converts v to float64, reporting whether it was an integer;
// ok=false if v isn't numeric.
func numeric(v Value) (f float64, isInt bool, ok bool) {
	switch v.Kind {
	case VInt:
		return float64(v.Int), true, true
	case VFloat:
		return v.Float, false, true
	default:
		return 0, false, false
	}
}

func evalArith(op string, l, r Value) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return Null(), nil
	}
	if op == "+" && (l.Kind == VString || r.Kind == VString) {
		return Str(l.String() + r.String()), nil
	}
	if op == "+" && l.Kind == VList {
		if r.Kind == VList {
			return List(append(append([]Value(nil), l.List...), r.List...)), nil
		}
		return List(append(append([]Value(nil), l.List...), r)), nil
	}
	lf, lInt, lok := numeric(l)
	rf, rInt, rok := numeric(r)
	if !lok || !rok {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "arithmetic %s not defined on %s and %s", op, l, r)
	}
	bothInt := lInt && rInt
	switch op {
	case "+":
		if bothInt {
			return Int(l.Int + r.Int), nil
		}
		return Float(lf + rf), nil
	case "-":
		if bothInt {
			return Int(l.Int - r.Int), nil
		}
		return Float(lf - rf), nil
	case "*":
		if bothInt {
			return Int(l.Int * r.Int), nil
		}
		return Float(lf * rf), nil
	case "/":
		if bothInt {
			if r.Int == 0 {
				return Value{}, nexuserr.New(nexuserr.KindConstraint, "division by zero")
			}
			return Int(l.Int / r.Int), nil
		}
		return Float(lf / rf), nil
	case "%":
		if bothInt {
			if r.Int == 0 {
				return Value{}, nexuserr.New(nexuserr.KindConstraint, "modulo by zero")
			}
			return Int(l.Int % r.Int), nil
		}
		return Float(math.Mod(lf, rf)), nil
	case "^":
		return Float(math.Pow(lf, rf)), nil
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unknown arithmetic operator %q", op)
	}
}

// compareEqual implements `=` in expression context: null yields null
// (spec.md §4.11 "Equality with null yields null in expression context").
func compareEqual(l, r Value) Value {
	if l.IsNull() || r.IsNull() {
		return Null()
	}
	return Bool(Equal(l, r))
}

func compareOrder(op string, l, r Value) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return Null(), nil
	}
	lf, _, lok := numeric(l)
	rf, _, rok := numeric(r)
	var lt, eq bool
	if lok && rok {
		lt, eq = lf < rf, lf == rf
	} else if l.Kind == VString && r.Kind == VString {
		lt, eq = l.Str < r.Str, l.Str == r.Str
	} else {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "cannot order-compare %s and %s", l, r)
	}
	switch op {
	case "<":
		return Bool(lt), nil
	case "<=":
		return Bool(lt || eq), nil
	case ">":
		return Bool(!lt && !eq), nil
	case ">=":
		return Bool(!lt), nil
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unknown comparison operator %q", op)
	}
}

func stringPredicate(l, r Value, f func(s, prefix string) bool) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return Null(), nil
	}
	if l.Kind != VString || r.Kind != VString {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "string predicate requires strings, got %s and %s", l, r)
	}
	return Bool(f(l.Str, r.Str)), nil
}

func evalRegex(l, r Value) (Value, error) {
	if l.IsNull() || r.IsNull() {
		return Null(), nil
	}
	if l.Kind != VString || r.Kind != VString {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "=~ requires strings")
	}
	re, err := regexp.Compile("^(?:" + r.Str + ")$")
	if err != nil {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "invalid regular expression %q: %v", r.Str, err)
	}
	return Bool(re.MatchString(l.Str)), nil
}

func evalIn(ctx *Context, row Row, n *parser.InExpr) (Value, error) {
	item, err := Eval(ctx, row, n.Item)
	if err != nil {
		return Value{}, err
	}
	list, err := Eval(ctx, row, n.List)
	if err != nil {
		return Value{}, err
	}
	if item.IsNull() || list.IsNull() {
		return Null(), nil
	}
	if list.Kind != VList {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "IN requires a list, got %s", list)
	}
	sawNull := false
	for _, e := range list.List {
		if e.IsNull() {
			sawNull = true
			continue
		}
		if Equal(item, e) {
			return Bool(true), nil
		}
	}
	if sawNull {
		return Null(), nil
	}
	return Bool(false), nil
}

func evalCase(ctx *Context, row Row, n *parser.CaseExpr) (Value, error) {
	var subject Value
	hasSubject := n.Subject != nil
	if hasSubject {
		v, err := Eval(ctx, row, n.Subject)
		if err != nil {
			return Value{}, err
		}
		subject = v
	}
	for _, w := range n.Whens {
		if hasSubject {
			cmp, err := Eval(ctx, row, w.Cond)
			if err != nil {
				return Value{}, err
			}
			eq := compareEqual(subject, cmp)
			if eq.Kind == VBool && eq.Bool {
				return Eval(ctx, row, w.Result)
			}
			continue
		}
		cond, err := Eval(ctx, row, w.Cond)
		if err != nil {
			return Value{}, err
		}
		if cond.Kind == VBool && cond.Bool {
			return Eval(ctx, row, w.Result)
		}
	}
	if n.Else != nil {
		return Eval(ctx, row, n.Else)
	}
	return Null(), nil
}

// evalExists evaluates a pattern-existence subquery by attempting a
// single Expand step from whichever pattern endpoint is already bound in
// row. It supports the common case spec.md §4.9 names — a simple
// relationship pattern anchored on a bound variable — rather than
// arbitrary nested clauses.
func evalExists(ctx *Context, row Row, n *parser.ExistsExpr) (Value, error) {
	pat := n.Pattern
	if len(pat.Nodes) == 0 {
		return Bool(false), nil
	}
	var anchor *NodeRef
	anchorIdx := -1
	for i, np := range pat.Nodes {
		if np.Variable == "" {
			continue
		}
		if v, ok := row[np.Variable]; ok && v.Kind == VNode {
			anchor = v.Node
			anchorIdx = i
			break
		}
	}
	if anchor == nil {
		return Bool(false), nil
	}
	if len(pat.Rels) == 0 {
		return Bool(true), nil
	}
	relIdx := anchorIdx
	if relIdx >= len(pat.Rels) {
		relIdx = len(pat.Rels) - 1
	}
	rp := pat.Rels[relIdx]
	found := false
	err := ctx.Store.Adjacency(anchor.ID, func(relID uint64) error {
		if found {
			return nil
		}
		ref, ok, err := ctx.ReadRelRef(relID)
		if err != nil || !ok {
			return err
		}
		if len(rp.Types) > 0 {
			match := false
			for _, t := range rp.Types {
				if t == ref.Type {
					match = true
					break
				}
			}
			if !match {
				return nil
			}
		}
		found = true
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	return Bool(found), nil
}

func evalIndex(ctx *Context, row Row, n *parser.IndexExpr) (Value, error) {
	target, err := Eval(ctx, row, n.Target)
	if err != nil {
		return Value{}, err
	}
	idxVal, err := Eval(ctx, row, n.Index)
	if err != nil {
		return Value{}, err
	}
	if target.IsNull() || idxVal.IsNull() {
		return Null(), nil
	}
	if target.Kind == VMap {
		if idxVal.Kind != VString {
			return Value{}, nexuserr.New(nexuserr.KindSemantic, "map index must be a string")
		}
		if v, ok := target.Map[idxVal.Str]; ok {
			return v, nil
		}
		return Null(), nil
	}
	if target.Kind != VList {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "cannot index into %s", target)
	}
	if idxVal.Kind != VInt {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "list index must be an integer")
	}
	i := resolveIndex(idxVal.Int, len(target.List))
	if i < 0 || i >= len(target.List) {
		return Null(), nil
	}
	return target.List[i], nil
}

// resolveIndex applies Python-style negative-index wraparound: index -1
// is the last element (spec.md §8 "Array negative index `[1,2,3][-1] =
// 3`"; this is the documented resolution of §9 Open Question 2's sibling
// ambiguity for substring, extended consistently to list indexing).
func resolveIndex(i int64, length int) int {
	if i < 0 {
		i += int64(length)
	}
	return int(i)
}

func evalSlice(ctx *Context, row Row, n *parser.SliceExpr) (Value, error) {
	target, err := Eval(ctx, row, n.Target)
	if err != nil {
		return Value{}, err
	}
	if target.IsNull() {
		return Null(), nil
	}
	if target.Kind != VList {
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "cannot slice %s", target)
	}
	lo, hi := 0, len(target.List)
	if n.Lo != nil {
		v, err := Eval(ctx, row, n.Lo)
		if err != nil {
			return Value{}, err
		}
		if v.Kind == VInt {
			lo = resolveIndex(v.Int, len(target.List))
		}
	}
	if n.Hi != nil {
		v, err := Eval(ctx, row, n.Hi)
		if err != nil {
			return Value{}, err
		}
		if v.Kind == VInt {
			hi = resolveIndex(v.Int, len(target.List))
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > len(target.List) {
		hi = len(target.List)
	}
	if lo >= hi {
		return List(nil), nil
	}
	return List(append([]Value(nil), target.List[lo:hi]...)), nil
}

func evalFunction(ctx *Context, row Row, n *parser.FunctionCall) (Value, error) {
	name := strings.ToLower(n.Name)
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		if v, isVar := a.(*parser.VariableExpr); isVar && v.Name == "*" {
			args[i] = Null()
			continue
		}
		val, err := Eval(ctx, row, a)
		if err != nil {
			return Value{}, err
		}
		args[i] = val
	}

	switch name {
	case "id":
		if len(args) != 1 {
			return Value{}, nexuserr.New(nexuserr.KindSemantic, "id() takes one argument")
		}
		switch args[0].Kind {
		case VNode:
			return Int(int64(args[0].Node.ID)), nil
		case VRel:
			return Int(int64(args[0].Rel.ID)), nil
		default:
			return Null(), nil
		}
	case "labels":
		if len(args) != 1 || args[0].Kind != VNode {
			return Null(), nil
		}
		out := make([]Value, len(args[0].Node.Labels))
		for i, l := range args[0].Node.Labels {
			out[i] = Str(l)
		}
		return List(out), nil
	case "type":
		if len(args) != 1 || args[0].Kind != VRel {
			return Null(), nil
		}
		return Str(args[0].Rel.Type), nil
	case "properties":
		if len(args) != 1 {
			return Null(), nil
		}
		switch args[0].Kind {
		case VNode:
			return Map(args[0].Node.Props), nil
		case VRel:
			return Map(args[0].Rel.Props), nil
		default:
			return Null(), nil
		}
	case "startnode":
		if len(args) != 1 || args[0].Kind != VRel {
			return Null(), nil
		}
		ref, ok, err := ctx.ReadNodeRef(args[0].Rel.Start)
		if err != nil || !ok {
			return Null(), err
		}
		return NodeVal(ref), nil
	case "endnode":
		if len(args) != 1 || args[0].Kind != VRel {
			return Null(), nil
		}
		ref, ok, err := ctx.ReadNodeRef(args[0].Rel.End)
		if err != nil || !ok {
			return Null(), err
		}
		return NodeVal(ref), nil
	case "size":
		if len(args) != 1 {
			return Null(), nil
		}
		switch args[0].Kind {
		case VList:
			return Int(int64(len(args[0].List))), nil
		case VString:
			return Int(int64(len([]rune(args[0].Str)))), nil
		default:
			return Null(), nil
		}
	case "tostring":
		if len(args) != 1 || args[0].IsNull() {
			return Null(), nil
		}
		return Str(args[0].String()), nil
	case "tointeger":
		return toIntegerFunc(args)
	case "tofloat":
		return toFloatFunc(args)
	case "tolower":
		if len(args) != 1 || args[0].Kind != VString {
			return Null(), nil
		}
		return Str(strings.ToLower(args[0].Str)), nil
	case "toupper":
		if len(args) != 1 || args[0].Kind != VString {
			return Null(), nil
		}
		return Str(strings.ToUpper(args[0].Str)), nil
	case "substring":
		return substringFunc(args)
	case "coalesce":
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return Null(), nil
	case "abs":
		if len(args) != 1 {
			return Null(), nil
		}
		switch args[0].Kind {
		case VInt:
			if args[0].Int < 0 {
				return Int(-args[0].Int), nil
			}
			return args[0], nil
		case VFloat:
			return Float(math.Abs(args[0].Float)), nil
		default:
			return Null(), nil
		}
	case "sqrt":
		if len(args) != 1 {
			return Null(), nil
		}
		f, _, ok := numeric(args[0])
		if !ok {
			return Null(), nil
		}
		return Float(math.Sqrt(f)), nil
	default:
		return Value{}, nexuserr.New(nexuserr.KindSemantic, "unknown function %q", n.Name)
	}
}

func toIntegerFunc(args []Value) (Value, error) {
	if len(args) != 1 || args[0].IsNull() {
		return Null(), nil
	}
	switch args[0].Kind {
	case VInt:
		return args[0], nil
	case VFloat:
		return Int(int64(args[0].Float)), nil
	case VString:
		i, err := strconv.ParseInt(strings.TrimSpace(args[0].Str), 10, 64)
		if err != nil {
			return Null(), nil
		}
		return Int(i), nil
	default:
		return Null(), nil
	}
}

func toFloatFunc(args []Value) (Value, error) {
	if len(args) != 1 || args[0].IsNull() {
		return Null(), nil
	}
	switch args[0].Kind {
	case VFloat:
		return args[0], nil
	case VInt:
		return Float(float64(args[0].Int)), nil
	case VString:
		f, err := strconv.ParseFloat(strings.TrimSpace(args[0].Str), 64)
		if err != nil {
			return Null(), nil
		}
		return Float(f), nil
	default:
		return Null(), nil
	}
}

// substringFunc implements spec.md §8's explicit extension point: a
// negative start counts from the end of the string rather than erroring
// (the resolution DESIGN.md records for §9 Open Question 2).
func substringFunc(args []Value) (Value, error) {
	if len(args) < 2 || args[0].Kind != VString || args[1].Kind != VInt {
		return Null(), nil
	}
	runes := []rune(args[0].Str)
	start := resolveIndex(args[1].Int, len(runes))
	if start < 0 {
		start = 0
	}
	if start >= len(runes) {
		return Str(""), nil
	}
	end := len(runes)
	if len(args) >= 3 && args[2].Kind == VInt {
		end = start + int(args[2].Int)
		if end > len(runes) {
			end = len(runes)
		}
	}
	if end < start {
		end = start
	}
	return Str(string(runes[start:end])), nil
}
