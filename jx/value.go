// Package jx implements the self-describing value and expression
// language used throughout catalogd: a JSON superset with operators,
// symbols, and comprehensions, plus an evaluator and function library.
package jx

import "fmt"

// Kind discriminates the variants of a Value, mirroring the C jx_type_t
// tagged union: null, boolean, integer, double, string, array, object,
// symbol, operator and error.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDouble
	KindString
	KindArray
	KindObject
	KindSymbol
	KindOperator
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	case KindSymbol:
		return "symbol"
	case KindOperator:
		return "operator"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Op enumerates the operator-AST tags of spec.md's grammar.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpNot
	OpLookup
	OpCall
	OpDot
	OpSlice
)

// Pair is one (key, value) binding of an object, kept in insertion
// order. A Pair may carry a Comprehension, in which case Value is the
// per-iteration element expression rather than a final value.
type Pair struct {
	Key   string
	Value *Value
	Comp  *Comprehension
}

// Item is one element of an array literal, optionally generated by a
// comprehension.
type Item struct {
	Value *Value
	Comp  *Comprehension
}

// Comprehension represents `for Var in Elements (if Cond)?` possibly
// chained into a nested comprehension, per spec.md §4.1/§4.4.
type Comprehension struct {
	Var      string
	Elements *Value
	Cond     *Value // nil if no "if" clause
	Next     *Comprehension
}

// Value is the tagged union at the heart of the language. Scalar
// payloads are stored by value; composite payloads (Array, Object,
// children of Operator, Err) are owning pointers, following spec.md
// §9's move-only ownership model — a Value handed to a builder must
// not be reused by the caller afterward.
type Value struct {
	Kind Kind
	Line int

	Bool   bool
	Int    int64
	Double float64
	Str    string
	Sym    string

	Array []Item
	Obj   []Pair

	OpTag Op
	Left  *Value
	Right *Value

	Err *Value
}

// Constructors. Each returns a freshly owned Value.

func Null() *Value                 { return &Value{Kind: KindNull} }
func Bool(b bool) *Value           { return &Value{Kind: KindBool, Bool: b} }
func Int(i int64) *Value           { return &Value{Kind: KindInt, Int: i} }
func Double(d float64) *Value      { return &Value{Kind: KindDouble, Double: d} }
func String(s string) *Value       { return &Value{Kind: KindString, Str: s} }
func Symbol(name string) *Value    { return &Value{Kind: KindSymbol, Sym: name} }
func Errorf(format string, args ...interface{}) *Value {
	return &Value{Kind: KindError, Err: String(fmt.Sprintf(format, args...))}
}
func WrapError(inner *Value) *Value { return &Value{Kind: KindError, Err: inner} }

// Array builds an array value from items, consuming the slice.
func Array(items ...*Value) *Value {
	v := &Value{Kind: KindArray}
	for _, it := range items {
		v.Array = append(v.Array, Item{Value: it})
	}
	return v
}

// Object builds an object from key/value pairs, consuming its
// arguments. Duplicate keys replace the prior binding, per spec.md §3.
func Object(pairs ...Pair) *Value {
	v := &Value{Kind: KindObject}
	for _, p := range pairs {
		v.set(p.Key, p.Value)
	}
	return v
}

// Operator builds an operator AST node. Unary operators (Not, and a
// unary +/- that did not fold into a numeric literal) leave Left nil.
func Operator(tag Op, left, right *Value, line int) *Value {
	return &Value{Kind: KindOperator, OpTag: tag, Left: left, Right: right, Line: line}
}

// IsError reports whether v is an error value.
func (v *Value) IsError() bool { return v != nil && v.Kind == KindError }

// IsNull reports whether v is the null literal.
func (v *Value) IsNull() bool { return v != nil && v.Kind == KindNull }

// Truthy follows the C jx_istrue convention: null, false, 0, 0.0, "",
// empty array and empty object are falsy; everything else (including
// error, somewhat surprisingly mirroring the source) is truthy unless
// it is specifically one of those.
func (v *Value) Truthy() bool {
	if v == nil {
		return false
	}
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindDouble:
		return v.Double != 0
	case KindString:
		return v.Str != ""
	case KindArray:
		return len(v.Array) != 0
	case KindObject:
		return len(v.Obj) != 0
	default:
		return true
	}
}

// Copy performs a deep, owner-unique copy of v.
func (v *Value) Copy() *Value {
	if v == nil {
		return nil
	}
	out := &Value{Kind: v.Kind, Line: v.Line, Bool: v.Bool, Int: v.Int,
		Double: v.Double, Str: v.Str, Sym: v.Sym, OpTag: v.OpTag}
	switch v.Kind {
	case KindArray:
		out.Array = make([]Item, len(v.Array))
		for i, it := range v.Array {
			out.Array[i] = Item{Value: it.Value.Copy(), Comp: it.Comp.Copy()}
		}
	case KindObject:
		out.Obj = make([]Pair, len(v.Obj))
		for i, p := range v.Obj {
			out.Obj[i] = Pair{Key: p.Key, Value: p.Value.Copy(), Comp: p.Comp.Copy()}
		}
	case KindOperator:
		out.Left = v.Left.Copy()
		out.Right = v.Right.Copy()
	case KindError:
		out.Err = v.Err.Copy()
	}
	return out
}

// Copy deep-copies a comprehension chain.
func (c *Comprehension) Copy() *Comprehension {
	if c == nil {
		return nil
	}
	return &Comprehension{Var: c.Var, Elements: c.Elements.Copy(), Cond: c.Cond.Copy(), Next: c.Next.Copy()}
}

// Equal performs structural equality: array comparison is
// order-sensitive, object comparison is order-insensitive (by key),
// matching spec.md §4.1.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindInt:
		return v.Int == o.Int
	case KindDouble:
		return v.Double == o.Double
	case KindString:
		return v.Str == o.Str
	case KindSymbol:
		return v.Sym == o.Sym
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Value.Equal(o.Array[i].Value) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.Obj) != len(o.Obj) {
			return false
		}
		for _, p := range v.Obj {
			ov := o.lookup(p.Key)
			if ov == nil || !p.Value.Equal(ov) {
				return false
			}
		}
		return true
	case KindError:
		return v.Err.Equal(o.Err)
	case KindOperator:
		return v.OpTag == o.OpTag && v.Left.Equal(o.Left) && v.Right.Equal(o.Right)
	default:
		return false
	}
}

func (v *Value) lookup(key string) *Value {
	for _, p := range v.Obj {
		if p.Key == key {
			return p.Value
		}
	}
	return nil
}

// Get looks up a field on an object value. Returns nil, false if v is
// not an object or the key is absent.
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.Kind != KindObject {
		return nil, false
	}
	r := v.lookup(key)
	return r, r != nil
}

// set installs or replaces a binding, preserving insertion order for
// new keys and in-place position for replaced ones.
func (v *Value) set(key string, val *Value) {
	for i, p := range v.Obj {
		if p.Key == key {
			v.Obj[i].Value = val
			return
		}
	}
	v.Obj = append(v.Obj, Pair{Key: key, Value: val})
}

// Set installs a field into an object value, consuming val, matching
// the builder-owns-its-arguments convention. It panics on a nil or
// non-object receiver.
func (v *Value) Set(key string, val *Value) *Value {
	if v.Kind != KindObject {
		panic("jx: Set on non-object value")
	}
	v.set(key, val)
	return v
}

// Delete removes a field by key. Delete on null is a documented no-op
// per spec.md §4.1.
func (v *Value) Delete(key string) {
	if v == nil || v.Kind == KindNull {
		return
	}
	if v.Kind != KindObject {
		return
	}
	for i, p := range v.Obj {
		if p.Key == key {
			v.Obj = append(v.Obj[:i], v.Obj[i+1:]...)
			return
		}
	}
}

// Keys returns the object's keys in insertion order.
func (v *Value) Keys() []string {
	if v == nil || v.Kind != KindObject {
		return nil
	}
	out := make([]string, len(v.Obj))
	for i, p := range v.Obj {
		out[i] = p.Key
	}
	return out
}

// Len reports the array length, or -1 if v is not an array.
func (v *Value) Len() int {
	if v == nil || v.Kind != KindArray {
		return -1
	}
	return len(v.Array)
}

// Index returns the i'th array element (no negative-index wraparound;
// callers needing that do it in the evaluator per spec.md §4.4).
func (v *Value) Index(i int) (*Value, bool) {
	if v == nil || v.Kind != KindArray || i < 0 || i >= len(v.Array) {
		return nil, false
	}
	return v.Array[i].Value, true
}

// Append appends an element to an array value, consuming it.
func (v *Value) Append(item *Value) *Value {
	if v.Kind != KindArray {
		panic("jx: Append on non-array value")
	}
	v.Array = append(v.Array, Item{Value: item})
	return v
}

// Merge produces a new object whose bindings are the union of a and b,
// with b's bindings winning on key conflict — used by deltadb's
// merge-delta application (spec.md §4.6 `M` events).
func Merge(a, b *Value) *Value {
	out := &Value{Kind: KindObject}
	if a != nil {
		for _, p := range a.Obj {
			out.set(p.Key, p.Value.Copy())
		}
	}
	if b != nil {
		for _, p := range b.Obj {
			out.set(p.Key, p.Value.Copy())
		}
	}
	return out
}

// TypeName returns the textual type name used by the schema() builtin.
func (v *Value) TypeName() string {
	if v == nil {
		return "null"
	}
	switch v.Kind {
	case KindInt, KindDouble:
		return "number"
	default:
		return v.Kind.String()
	}
}
