package jx

// ExternalFunctions is the process-wide switch gating environment-
// touching builtins (fetch, listdir), per spec.md §4.4/§9. Folded here
// as a field on EvalOptions rather than a bare global, following
// spec.md §9's "fold globals into config" guidance; a package-level
// default is still provided for callers that don't thread options
// through (e.g. ad-hoc tooling), mirroring the C original's default-on
// behavior.
type EvalOptions struct {
	ExternalFunctions bool
	FetchRoot         string // base directory that relative fetch() paths resolve against; empty = cwd. listdir() does not use it
}

// DefaultEvalOptions matches the historical C default (external
// functions enabled).
func DefaultEvalOptions() EvalOptions {
	return EvalOptions{ExternalFunctions: true}
}

// Eval evaluates expr against context (an object value, or nil) and
// returns a newly owned value. Errors are values of Kind KindError,
// never a Go error, per spec.md §4.4.
func Eval(expr *Value, context *Value, opts EvalOptions) *Value {
	if expr == nil {
		return Null()
	}
	switch expr.Kind {
	case KindSymbol:
		return evalSymbol(expr, context)
	case KindOperator:
		return evalOperator(expr, context, opts)
	case KindArray:
		return evalArray(expr, context, opts)
	case KindObject:
		return evalObject(expr, context, opts)
	case KindError:
		return &Value{Kind: KindError, Err: Eval(expr.Err, context, opts)}
	default:
		return expr.Copy()
	}
}

func evalSymbol(expr *Value, context *Value) *Value {
	if context != nil && context.Kind == KindObject {
		if v, ok := context.Get(expr.Sym); ok {
			return v.Copy()
		}
	}
	return Errorf("on line %d, %s: undefined symbol", expr.Line, expr.Sym)
}

func evalArray(expr *Value, context *Value, opts EvalOptions) *Value {
	out := &Value{Kind: KindArray, Line: expr.Line}
	for _, it := range expr.Array {
		if it.Comp == nil {
			v := Eval(it.Value, context, opts)
			if v.IsError() {
				return v
			}
			out.Array = append(out.Array, Item{Value: v})
			continue
		}
		items, errv := expandItemComprehension(it, context, opts)
		if errv != nil {
			return errv
		}
		out.Array = append(out.Array, items...)
	}
	return out
}

func expandItemComprehension(it Item, context *Value, opts EvalOptions) ([]Item, *Value) {
	var result []Item
	err := forEachComprehensionBinding(it.Comp, context, opts, func(ctx *Value) *Value {
		v := Eval(it.Value, ctx, opts)
		if v.IsError() {
			return v
		}
		result = append(result, Item{Value: v})
		return nil
	})
	return result, err
}

func evalObject(expr *Value, context *Value, opts EvalOptions) *Value {
	out := &Value{Kind: KindObject, Line: expr.Line}
	for _, p := range expr.Obj {
		if p.Comp == nil {
			v := Eval(p.Value, context, opts)
			if v.IsError() {
				return v
			}
			out.set(p.Key, v)
			continue
		}
		err := forEachComprehensionBinding(p.Comp, context, opts, func(ctx *Value) *Value {
			v := Eval(p.Value, ctx, opts)
			if v.IsError() {
				return v
			}
			out.set(p.Key, v)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return out
}

// forEachComprehensionBinding iterates a (possibly chained)
// comprehension, extending context with each binding in turn and
// invoking fn. fn returns a non-nil error Value to abort the whole
// iteration (error propagation through comprehension expansion).
func forEachComprehensionBinding(c *Comprehension, context *Value, opts EvalOptions, fn func(ctx *Value) *Value) *Value {
	elems := Eval(c.Elements, context, opts)
	if elems.IsError() {
		return elems
	}
	if elems.Kind != KindArray {
		return Errorf("on line %d, for %s in ...: not an array", c.Elements.Line, c.Var)
	}
	for _, item := range elems.Array {
		ctx := extendContext(context, c.Var, item.Value)
		if c.Cond != nil {
			cond := Eval(c.Cond, ctx, opts)
			if cond.IsError() {
				return cond
			}
			if !cond.Truthy() {
				continue
			}
		}
		if c.Next != nil {
			if err := forEachComprehensionBinding(c.Next, ctx, opts, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// extendContext returns a new object context with name bound to val,
// shadowing any prior binding, without mutating the parent.
func extendContext(context *Value, name string, val *Value) *Value {
	out := &Value{Kind: KindObject}
	if context != nil && context.Kind == KindObject {
		for _, p := range context.Obj {
			out.Obj = append(out.Obj, Pair{Key: p.Key, Value: p.Value})
		}
	}
	out.set(name, val)
	return out
}

func evalOperator(expr *Value, context *Value, opts EvalOptions) *Value {
	switch expr.OpTag {
	case OpAnd:
		left := Eval(expr.Left, context, opts)
		if left.IsError() {
			return left
		}
		if !left.Truthy() {
			return left
		}
		return Eval(expr.Right, context, opts)
	case OpOr:
		left := Eval(expr.Left, context, opts)
		if left.IsError() {
			return left
		}
		if left.Truthy() {
			return left
		}
		return Eval(expr.Right, context, opts)
	case OpNot:
		right := Eval(expr.Right, context, opts)
		if right.IsError() {
			return right
		}
		return Bool(!right.Truthy())
	case OpLookup:
		return evalLookup(expr, context, opts)
	case OpCall:
		return evalCall(expr, context, opts)
	case OpDot:
		return evalDot(expr, context, opts)
	case OpSub:
		if expr.Left == nil {
			right := Eval(expr.Right, context, opts)
			return negate(right, expr.Line)
		}
		return evalArith(expr, context, opts)
	case OpAdd:
		if expr.Left == nil {
			return Eval(expr.Right, context, opts)
		}
		return evalArith(expr, context, opts)
	case OpMul, OpDiv, OpMod:
		return evalArith(expr, context, opts)
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return evalCompare(expr, context, opts)
	default:
		return Errorf("on line %d: unsupported operator", expr.Line)
	}
}

func negate(v *Value, line int) *Value {
	if v.IsError() {
		return v
	}
	switch v.Kind {
	case KindInt:
		return Int(-v.Int)
	case KindDouble:
		return Double(-v.Double)
	default:
		return Errorf("on line %d: cannot negate %s", line, v.Kind)
	}
}

func evalArith(expr *Value, context *Value, opts EvalOptions) *Value {
	left := Eval(expr.Left, context, opts)
	if left.IsError() {
		return left
	}
	right := Eval(expr.Right, context, opts)
	if right.IsError() {
		return right
	}
	if expr.OpTag == OpAdd && left.Kind == KindString {
		rstr := right.Str
		if right.Kind != KindString {
			rstr = Print(right)
		}
		return String(left.Str + rstr)
	}
	if expr.OpTag == OpAdd && left.Kind == KindArray && right.Kind == KindArray {
		out := &Value{Kind: KindArray}
		out.Array = append(out.Array, left.Array...)
		out.Array = append(out.Array, right.Array...)
		return out
	}
	if !isNumeric(left) || !isNumeric(right) {
		return Errorf("on line %d: %s %s %s: type mismatch", expr.Line, left.Kind, opStr(expr.OpTag), right.Kind)
	}
	if left.Kind == KindDouble || right.Kind == KindDouble {
		a, b := asDouble(left), asDouble(right)
		switch expr.OpTag {
		case OpAdd:
			return Double(a + b)
		case OpSub:
			return Double(a - b)
		case OpMul:
			return Double(a * b)
		case OpDiv:
			if b == 0 {
				return Errorf("on line %d: division by zero", expr.Line)
			}
			return Double(a / b)
		case OpMod:
			return Errorf("on line %d: modulo requires integers", expr.Line)
		}
	}
	a, b := left.Int, right.Int
	switch expr.OpTag {
	case OpAdd:
		return Int(a + b)
	case OpSub:
		return Int(a - b)
	case OpMul:
		return Int(a * b)
	case OpDiv:
		if b == 0 {
			return Errorf("on line %d: division by zero", expr.Line)
		}
		return Int(a / b)
	case OpMod:
		if b == 0 {
			return Errorf("on line %d: modulo by zero", expr.Line)
		}
		return Int(a % b)
	}
	return Errorf("on line %d: unreachable arithmetic case", expr.Line)
}

func isNumeric(v *Value) bool { return v.Kind == KindInt || v.Kind == KindDouble }
func asDouble(v *Value) float64 {
	if v.Kind == KindDouble {
		return v.Double
	}
	return float64(v.Int)
}

func evalCompare(expr *Value, context *Value, opts EvalOptions) *Value {
	left := Eval(expr.Left, context, opts)
	if left.IsError() {
		return left
	}
	right := Eval(expr.Right, context, opts)
	if right.IsError() {
		return right
	}
	if expr.OpTag == OpEq || expr.OpTag == OpNe {
		if left.Kind != right.Kind && !(isNumeric(left) && isNumeric(right)) {
			return Bool(expr.OpTag == OpNe)
		}
		eq := left.Equal(right)
		if isNumeric(left) && isNumeric(right) {
			eq = asDouble(left) == asDouble(right)
		}
		if expr.OpTag == OpEq {
			return Bool(eq)
		}
		return Bool(!eq)
	}
	if !isNumeric(left) || !isNumeric(right) {
		if left.Kind == KindString && right.Kind == KindString {
			return Bool(compareStrings(expr.OpTag, left.Str, right.Str))
		}
		return Errorf("on line %d: %s %s %s: type mismatch", expr.Line, left.Kind, opStr(expr.OpTag), right.Kind)
	}
	a, b := asDouble(left), asDouble(right)
	switch expr.OpTag {
	case OpLt:
		return Bool(a < b)
	case OpLe:
		return Bool(a <= b)
	case OpGt:
		return Bool(a > b)
	case OpGe:
		return Bool(a >= b)
	}
	return Errorf("on line %d: unreachable comparison case", expr.Line)
}

func compareStrings(tag Op, a, b string) bool {
	switch tag {
	case OpLt:
		return a < b
	case OpLe:
		return a <= b
	case OpGt:
		return a > b
	case OpGe:
		return a >= b
	}
	return false
}

func evalLookup(expr *Value, context *Value, opts EvalOptions) *Value {
	base := Eval(expr.Left, context, opts)
	if base.IsError() {
		return base
	}
	if expr.Right != nil && expr.Right.Kind == KindOperator && expr.Right.OpTag == OpSlice {
		return evalSlice(base, expr.Right, context, opts)
	}
	idx := Eval(expr.Right, context, opts)
	if idx.IsError() {
		return idx
	}
	switch base.Kind {
	case KindObject:
		if idx.Kind != KindString {
			return Errorf("on line %d: object lookup requires a string key", expr.Line)
		}
		v, ok := base.Get(idx.Str)
		if !ok {
			return Errorf("on line %d: no such field %q", expr.Line, idx.Str)
		}
		return v.Copy()
	case KindArray:
		if idx.Kind != KindInt {
			return Errorf("on line %d: array lookup requires an integer index", expr.Line)
		}
		i := int(idx.Int)
		if i < 0 {
			i += len(base.Array)
		}
		v, ok := base.Index(i)
		if !ok {
			return Errorf("on line %d: array index %d out of range", expr.Line, idx.Int)
		}
		return v.Copy()
	default:
		return Errorf("on line %d: cannot index a %s", expr.Line, base.Kind)
	}
}

func evalSlice(base *Value, slice *Value, context *Value, opts EvalOptions) *Value {
	if base.Kind != KindArray {
		return Errorf("on line %d: slice requires an array", slice.Line)
	}
	n := len(base.Array)
	lo, hi := 0, n
	if slice.Left != nil {
		lv := Eval(slice.Left, context, opts)
		if lv.IsError() {
			return lv
		}
		lo = int(lv.Int)
		if lo < 0 {
			lo += n
		}
	}
	if slice.Right != nil {
		hv := Eval(slice.Right, context, opts)
		if hv.IsError() {
			return hv
		}
		hi = int(hv.Int)
		if hi < 0 {
			hi += n
		}
	}
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	if lo > hi {
		lo = hi
	}
	out := &Value{Kind: KindArray}
	out.Array = append(out.Array, base.Array[lo:hi]...)
	return out
}

// deferFuncs evaluate their arguments lazily/per-iteration rather than
// up front, per spec.md §4.4.
var deferFuncs = map[string]bool{"select": true, "where": true, "project": true}

func evalCall(expr *Value, context *Value, opts EvalOptions) *Value {
	name, argExprs, errv := resolveCall(expr, context, opts)
	if errv != nil {
		return errv
	}
	if deferFuncs[name] {
		return callDefer(name, argExprs, context, opts, expr.Line)
	}
	args := make([]*Value, len(argExprs))
	for i, a := range argExprs {
		v := Eval(a, context, opts)
		if v.IsError() {
			return v
		}
		args[i] = v
	}
	return CallBuiltin(name, args, context, opts, expr.Line)
}

func resolveCall(expr *Value, context *Value, opts EvalOptions) (string, []*Value, *Value) {
	fn := expr.Left
	var name string
	if fn != nil && fn.Kind == KindSymbol {
		name = fn.Sym
	} else {
		v := Eval(fn, context, opts)
		if v.IsError() {
			return "", nil, v
		}
		if v.Kind != KindString {
			return "", nil, Errorf("on line %d: call target is not a function name", expr.Line)
		}
		name = v.Str
	}
	var argExprs []*Value
	if expr.Right != nil {
		for _, it := range expr.Right.Array {
			argExprs = append(argExprs, it.Value)
		}
	}
	return name, argExprs, nil
}

func evalDot(expr *Value, context *Value, opts EvalOptions) *Value {
	call := expr.Right
	if call == nil || call.Kind != KindOperator || call.OpTag != OpCall {
		return Errorf("on line %d: malformed method call", expr.Line)
	}
	name := call.Left.Sym
	var argExprs []*Value
	argExprs = append(argExprs, expr.Left)
	if call.Right != nil {
		for _, it := range call.Right.Array {
			argExprs = append(argExprs, it.Value)
		}
	}
	if deferFuncs[name] {
		return callDefer(name, argExprs, context, opts, expr.Line)
	}
	args := make([]*Value, len(argExprs))
	for i, a := range argExprs {
		v := Eval(a, context, opts)
		if v.IsError() {
			return v
		}
		args[i] = v
	}
	return CallBuiltin(name, args, context, opts, expr.Line)
}

// Sub substitutes bound symbols in expr with their values from
// context, leaving operators intact and shadowing comprehension
// variables with a null placeholder so they survive verbatim — used
// by select/where/project to pre-expand an expression once per
// collection (spec.md §4.4's auxiliary sub()).
func Sub(expr *Value, context *Value) *Value {
	if expr == nil {
		return nil
	}
	switch expr.Kind {
	case KindSymbol:
		if context != nil && context.Kind == KindObject {
			if v, ok := context.Get(expr.Sym); ok {
				if v.Kind == KindNull && isPlaceholder(v) {
					return expr.Copy()
				}
				return v.Copy()
			}
		}
		return expr.Copy()
	case KindOperator:
		out := &Value{Kind: KindOperator, OpTag: expr.OpTag, Line: expr.Line}
		out.Left = Sub(expr.Left, context)
		out.Right = Sub(expr.Right, context)
		return out
	case KindArray:
		out := &Value{Kind: KindArray, Line: expr.Line}
		for _, it := range expr.Array {
			ctx := context
			for c := it.Comp; c != nil; c = c.Next {
				ctx = extendContext(ctx, c.Var, Null())
			}
			out.Array = append(out.Array, Item{Value: Sub(it.Value, ctx), Comp: it.Comp})
		}
		return out
	case KindObject:
		out := &Value{Kind: KindObject, Line: expr.Line}
		for _, p := range expr.Obj {
			ctx := context
			for c := p.Comp; c != nil; c = c.Next {
				ctx = extendContext(ctx, c.Var, Null())
			}
			out.Obj = append(out.Obj, Pair{Key: p.Key, Value: Sub(p.Value, ctx), Comp: p.Comp})
		}
		return out
	default:
		return expr.Copy()
	}
}

// isPlaceholder reports whether v is the null placeholder Sub uses to
// shadow a comprehension variable so it survives substitution intact.
func isPlaceholder(v *Value) bool { return v != nil && v.Kind == KindNull }
