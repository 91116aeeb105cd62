package jx

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CallBuiltin dispatches name(args...) to the built-in function
// library of spec.md §4.5. Errors carry the function name, line, and
// reason, per spec.md.
func CallBuiltin(name string, args []*Value, context *Value, opts EvalOptions, line int) *Value {
	fn, ok := builtins[name]
	if !ok {
		return Errorf("on line %d, %s: undefined function", line, name)
	}
	return fn(args, context, opts, line)
}

type builtinFn func(args []*Value, context *Value, opts EvalOptions, line int) *Value

func argErr(name string, line int, format string, a ...interface{}) *Value {
	return Errorf("on line %d, %s: %s", line, name, fmt.Sprintf(format, a...))
}

var builtins map[string]builtinFn

func init() {
	builtins = map[string]builtinFn{
		"range":    fnRange,
		"format":   fnFormat,
		"join":     fnJoin,
		"ceil":     fnCeil,
		"floor":    fnFloor,
		"basename": fnBasename,
		"dirname":  fnDirname,
		"listdir":  fnListdir,
		"escape":   fnEscape,
		"template": fnTemplate,
		"len":      fnLen,
		"fetch":    fnFetch,
		"schema":   fnSchema,
		"like":     fnLike,
		"keys":     fnKeys,
		"values":   fnValues,
		"items":    fnItems,
	}
}

func fnRange(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		if args[0].Kind != KindInt {
			return argErr("range", line, "argument must be an integer")
		}
		stop = args[0].Int
	case 2:
		if args[0].Kind != KindInt || args[1].Kind != KindInt {
			return argErr("range", line, "arguments must be integers")
		}
		start, stop = args[0].Int, args[1].Int
	case 3:
		if args[0].Kind != KindInt || args[1].Kind != KindInt || args[2].Kind != KindInt {
			return argErr("range", line, "arguments must be integers")
		}
		start, stop, step = args[0].Int, args[1].Int, args[2].Int
		if step == 0 {
			return argErr("range", line, "step must be non-zero")
		}
	default:
		return argErr("range", line, "expects 1 to 3 arguments")
	}
	out := &Value{Kind: KindArray}
	if step > 0 {
		for i := start; i < stop; i += step {
			out.Array = append(out.Array, Item{Value: Int(i)})
		}
	} else {
		for i := start; i > stop; i += step {
			out.Array = append(out.Array, Item{Value: Int(i)})
		}
	}
	return out
}

func fnFormat(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("format", line, "first argument must be a format string")
	}
	format := args[0].Str
	rest := args[1:]
	var sb strings.Builder
	ai := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(format) {
			return argErr("format", line, "trailing %% in format string")
		}
		i++
		spec := format[i]
		if spec == '%' {
			sb.WriteByte('%')
			continue
		}
		if ai >= len(rest) {
			return argErr("format", line, "not enough arguments for format string")
		}
		arg := rest[ai]
		ai++
		switch spec {
		case 'd', 'i':
			if arg.Kind != KindInt {
				return argErr("format", line, "%%%c expects an integer argument", spec)
			}
			sb.WriteString(strconv.FormatInt(arg.Int, 10))
		case 'e', 'E', 'f', 'F', 'g', 'G':
			var d float64
			switch arg.Kind {
			case KindDouble:
				d = arg.Double
			case KindInt:
				d = float64(arg.Int)
			default:
				return argErr("format", line, "%%%c expects a numeric argument", spec)
			}
			sb.WriteString(strconv.FormatFloat(d, byte(spec), -1, 64))
		case 's':
			if arg.Kind == KindString {
				sb.WriteString(arg.Str)
			} else {
				sb.WriteString(Print(arg))
			}
		default:
			return argErr("format", line, "unsupported format specifier %%%c", spec)
		}
	}
	if ai != len(rest) {
		return argErr("format", line, "too many arguments for format string")
	}
	return String(sb.String())
}

func fnJoin(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindArray {
		return argErr("join", line, "first argument must be an array")
	}
	delim := " "
	if len(args) > 1 {
		if args[1].Kind != KindString {
			return argErr("join", line, "second argument must be a string")
		}
		delim = args[1].Str
	}
	parts := make([]string, len(args[0].Array))
	for i, it := range args[0].Array {
		if it.Value.Kind != KindString {
			return argErr("join", line, "array element %d is not a string", i)
		}
		parts[i] = it.Value.Str
	}
	return String(strings.Join(parts, delim))
}

func fnCeil(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	d, ok := numArg(args, 0)
	if !ok {
		return argErr("ceil", line, "expects one numeric argument")
	}
	return Double(math.Ceil(d))
}

func fnFloor(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	d, ok := numArg(args, 0)
	if !ok {
		return argErr("floor", line, "expects one numeric argument")
	}
	return Double(math.Floor(d))
}

func numArg(args []*Value, i int) (float64, bool) {
	if i >= len(args) {
		return 0, false
	}
	switch args[i].Kind {
	case KindInt:
		return float64(args[i].Int), true
	case KindDouble:
		return args[i].Double, true
	default:
		return 0, false
	}
}

func fnBasename(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("basename", line, "expects a string path")
	}
	b := filepath.Base(args[0].Str)
	if len(args) > 1 {
		if args[1].Kind != KindString {
			return argErr("basename", line, "suffix must be a string")
		}
		b = strings.TrimSuffix(b, args[1].Str)
	}
	return String(b)
}

func fnDirname(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("dirname", line, "expects a string path")
	}
	return String(filepath.Dir(args[0].Str))
}

func fnListdir(args []*Value, _ *Value, opts EvalOptions, line int) *Value {
	if !opts.ExternalFunctions {
		return argErr("listdir", line, "external functions are disabled")
	}
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("listdir", line, "expects a string path")
	}
	entries, err := os.ReadDir(args[0].Str)
	if err != nil {
		return argErr("listdir", line, "%v", err)
	}
	out := &Value{Kind: KindArray}
	for _, e := range entries {
		out.Array = append(out.Array, Item{Value: String(e.Name())})
	}
	return out
}

func fnEscape(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("escape", line, "expects a string")
	}
	s := args[0].Str
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			sb.WriteString(`'\''`)
			continue
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('\'')
	return String(sb.String())
}

func fnTemplate(args []*Value, context *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("template", line, "expects a template string")
	}
	tmpl := args[0].Str
	var overrides *Value
	if len(args) > 1 {
		if args[1].Kind != KindObject {
			return argErr("template", line, "overrides must be an object")
		}
		overrides = args[1]
	}
	lookup := func(name string) (*Value, bool) {
		if overrides != nil {
			if v, ok := overrides.Get(name); ok {
				return v, true
			}
		}
		if context != nil {
			return context.Get(name)
		}
		return nil, false
	}
	var sb strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{' {
			sb.WriteByte('{')
			i++
			continue
		}
		if c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}' {
			sb.WriteByte('}')
			i++
			continue
		}
		if c != '{' {
			sb.WriteByte(c)
			continue
		}
		end := strings.IndexByte(tmpl[i:], '}')
		if end < 0 {
			return argErr("template", line, "unterminated {token}")
		}
		name := tmpl[i+1 : i+end]
		v, ok := lookup(name)
		if !ok {
			return argErr("template", line, "unresolved reference {%s}", name)
		}
		if v.Kind == KindString {
			sb.WriteString(v.Str)
		} else {
			sb.WriteString(Print(v))
		}
		i += end
	}
	return String(sb.String())
}

func fnLen(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindArray {
		return argErr("len", line, "expects an array")
	}
	return Int(int64(len(args[0].Array)))
}

func fnFetch(args []*Value, _ *Value, opts EvalOptions, line int) *Value {
	if !opts.ExternalFunctions {
		return argErr("fetch", line, "external functions are disabled")
	}
	if len(args) < 1 || args[0].Kind != KindString {
		return argErr("fetch", line, "expects a URL or path string")
	}
	data, err := fetchBytes(args[0].Str, opts.FetchRoot)
	if err != nil {
		return argErr("fetch", line, "%v", err)
	}
	v, errs := Parse(data, ModePermissive)
	if len(errs) > 0 {
		return argErr("fetch", line, "%s", errs[0].Message)
	}
	return v
}

var fetchClient = &http.Client{Timeout: 10 * time.Second}

// fetchBytes retrieves the raw bytes behind a fetch() target: an
// http(s) URL is fetched over the network, anything else is treated
// as a filesystem path rooted under root (when non-empty).
func fetchBytes(target, root string) ([]byte, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		resp, err := fetchClient.Get(target)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %s", target, resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxStringLiteral))
	}
	path := target
	if root != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return os.ReadFile(path)
}

func fnSchema(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) < 1 || args[0].Kind != KindArray {
		return argErr("schema", line, "expects an array of objects")
	}
	out := &Value{Kind: KindObject}
	for _, it := range args[0].Array {
		if it.Value.Kind != KindObject {
			continue
		}
		for _, p := range it.Value.Obj {
			if _, exists := out.Get(p.Key); !exists {
				out.set(p.Key, String(p.Value.TypeName()))
			}
		}
	}
	return out
}

func fnLike(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) != 2 || args[0].Kind != KindString || args[1].Kind != KindString {
		return argErr("like", line, "expects two strings")
	}
	re, err := regexp.Compile(args[1].Str)
	if err != nil {
		return argErr("like", line, "invalid pattern: %v", err)
	}
	return Bool(re.MatchString(args[0].Str))
}

func fnKeys(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) != 1 || args[0].Kind != KindObject {
		return argErr("keys", line, "expects an object")
	}
	out := &Value{Kind: KindArray}
	for _, p := range args[0].Obj {
		out.Array = append(out.Array, Item{Value: String(p.Key)})
	}
	return out
}

func fnValues(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) != 1 || args[0].Kind != KindObject {
		return argErr("values", line, "expects an object")
	}
	out := &Value{Kind: KindArray}
	for _, p := range args[0].Obj {
		out.Array = append(out.Array, Item{Value: p.Value.Copy()})
	}
	return out
}

func fnItems(args []*Value, _ *Value, _ EvalOptions, line int) *Value {
	if len(args) != 1 || args[0].Kind != KindObject {
		return argErr("items", line, "expects an object")
	}
	out := &Value{Kind: KindArray}
	for _, p := range args[0].Obj {
		out.Array = append(out.Array, Item{Value: Array(p.Value.Copy(), String(p.Key))})
	}
	return out
}

// callDefer implements select/where/project, whose second argument is
// evaluated once per element of the first rather than up front
// (spec.md §4.4/§4.5). select and where are synonyms.
func callDefer(name string, argExprs []*Value, context *Value, opts EvalOptions, line int) *Value {
	if len(argExprs) != 2 {
		return argErr(name, line, "expects a list and an expression")
	}
	list := Eval(argExprs[0], context, opts)
	if list.IsError() {
		return list
	}
	if list.Kind != KindArray {
		return argErr(name, line, "first argument must be an array")
	}
	body := Sub(argExprs[1], context)
	out := &Value{Kind: KindArray}
	for _, it := range list.Array {
		if it.Value.Kind != KindObject {
			return argErr(name, line, "elements must be objects")
		}
		ctx := Merge(context, it.Value)
		v := Eval(body, ctx, opts)
		if v.IsError() {
			return v
		}
		switch name {
		case "select", "where":
			if v.Truthy() {
				out.Array = append(out.Array, Item{Value: it.Value.Copy()})
			}
		case "project":
			out.Array = append(out.Array, Item{Value: v})
		}
	}
	return out
}

// sortedKeys returns v's object keys in sorted order, independent of
// insertion order.
func sortedKeys(v *Value) []string {
	ks := v.Keys()
	sort.Strings(ks)
	return ks
}
