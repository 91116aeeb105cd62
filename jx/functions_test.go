package jx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFnRange(t *testing.T) {
	tests := []struct {
		args []*Value
		want []int64
	}{
		{[]*Value{Int(3)}, []int64{0, 1, 2}},
		{[]*Value{Int(1), Int(4)}, []int64{1, 2, 3}},
		{[]*Value{Int(5), Int(0), Int(-2)}, []int64{5, 3, 1}},
	}
	for _, tt := range tests {
		v := CallBuiltin("range", tt.args, nil, DefaultEvalOptions(), 1)
		require.False(t, v.IsError(), Print(v))
		require.Equal(t, len(tt.want), v.Len())
		for i, w := range tt.want {
			e, _ := v.Index(i)
			assert.Equal(t, w, e.Int)
		}
	}
}

func TestFnFormat(t *testing.T) {
	v := CallBuiltin("format", []*Value{String("%s has %d items"), String("cart"), Int(3)}, nil, DefaultEvalOptions(), 1)
	require.False(t, v.IsError(), Print(v))
	assert.Equal(t, "cart has 3 items", v.Str)
}

func TestFnFormatArityMismatch(t *testing.T) {
	v := CallBuiltin("format", []*Value{String("%s %s"), String("only-one")}, nil, DefaultEvalOptions(), 1)
	assert.True(t, v.IsError())
}

func TestFnJoin(t *testing.T) {
	v := CallBuiltin("join", []*Value{Array(String("a"), String("b"), String("c")), String(",")}, nil, DefaultEvalOptions(), 1)
	require.False(t, v.IsError())
	assert.Equal(t, "a,b,c", v.Str)
}

func TestFnCeilFloor(t *testing.T) {
	c := CallBuiltin("ceil", []*Value{Double(1.2)}, nil, DefaultEvalOptions(), 1)
	assert.Equal(t, 2.0, c.Double)
	f := CallBuiltin("floor", []*Value{Double(1.8)}, nil, DefaultEvalOptions(), 1)
	assert.Equal(t, 1.0, f.Double)
}

func TestFnBasenameDirname(t *testing.T) {
	b := CallBuiltin("basename", []*Value{String("/a/b/c.txt")}, nil, DefaultEvalOptions(), 1)
	assert.Equal(t, "c.txt", b.Str)
	bs := CallBuiltin("basename", []*Value{String("/a/b/c.txt"), String(".txt")}, nil, DefaultEvalOptions(), 1)
	assert.Equal(t, "c", bs.Str)
	d := CallBuiltin("dirname", []*Value{String("/a/b/c.txt")}, nil, DefaultEvalOptions(), 1)
	assert.Equal(t, "/a/b", d.Str)
}

func TestFnListdirRequiresExternalFunctions(t *testing.T) {
	opts := EvalOptions{ExternalFunctions: false}
	v := CallBuiltin("listdir", []*Value{String(".")}, nil, opts, 1)
	assert.True(t, v.IsError())
}

func TestFnLen(t *testing.T) {
	v := CallBuiltin("len", []*Value{Array(Int(1), Int(2), Int(3))}, nil, DefaultEvalOptions(), 1)
	require.False(t, v.IsError())
	assert.Equal(t, int64(3), v.Int)
}

func TestFnSchema(t *testing.T) {
	list := Array(
		Object(Pair{Key: "a", Value: Int(1)}),
		Object(Pair{Key: "b", Value: String("x")}),
	)
	v := CallBuiltin("schema", []*Value{list}, nil, DefaultEvalOptions(), 1)
	require.False(t, v.IsError())
	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, "number", a.Str)
	b, ok := v.Get("b")
	require.True(t, ok)
	assert.Equal(t, "string", b.Str)
}

func TestFnLike(t *testing.T) {
	v := CallBuiltin("like", []*Value{String("hello.example.com"), String(`example\.com$`)}, nil, DefaultEvalOptions(), 1)
	require.False(t, v.IsError())
	assert.True(t, v.Truthy())
}

func TestFnKeysValuesItems(t *testing.T) {
	obj := Object(Pair{Key: "a", Value: Int(1)}, Pair{Key: "b", Value: Int(2)})
	keys := CallBuiltin("keys", []*Value{obj}, nil, DefaultEvalOptions(), 1)
	require.Equal(t, 2, keys.Len())
	k0, _ := keys.Index(0)
	assert.Equal(t, "a", k0.Str)

	values := CallBuiltin("values", []*Value{obj}, nil, DefaultEvalOptions(), 1)
	require.Equal(t, 2, values.Len())
	v0, _ := values.Index(0)
	assert.Equal(t, int64(1), v0.Int)

	items := CallBuiltin("items", []*Value{obj}, nil, DefaultEvalOptions(), 1)
	require.Equal(t, 2, items.Len())
	it0, _ := items.Index(0)
	require.Equal(t, 2, it0.Len())
	first, _ := it0.Index(0)
	second, _ := it0.Index(1)
	assert.Equal(t, int64(1), first.Int)
	assert.Equal(t, "a", second.Str)
}

func TestFnTemplate(t *testing.T) {
	ctx := Object(Pair{Key: "name", Value: String("alice")})
	v := CallBuiltin("template", []*Value{String("hello {name}")}, ctx, DefaultEvalOptions(), 1)
	require.False(t, v.IsError())
	assert.Equal(t, "hello alice", v.Str)
}

func TestFnTemplateUnresolvedReference(t *testing.T) {
	v := CallBuiltin("template", []*Value{String("hello {missing}")}, Object(), DefaultEvalOptions(), 1)
	assert.True(t, v.IsError())
}

func TestUndefinedFunctionIsError(t *testing.T) {
	v := CallBuiltin("not_a_real_function", nil, nil, DefaultEvalOptions(), 1)
	assert.True(t, v.IsError())
}
