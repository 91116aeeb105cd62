package jx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueTruthy(t *testing.T) {
	tests := []struct {
		name string
		v    *Value
		want bool
	}{
		{"null", Null(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero int", Int(0), false},
		{"nonzero int", Int(1), true},
		{"zero double", Double(0), false},
		{"empty string", String(""), false},
		{"nonempty string", String("x"), true},
		{"empty array", Array(), false},
		{"nonempty array", Array(Int(1)), true},
		{"empty object", Object(), false},
		{"nonempty object", Object(Pair{Key: "a", Value: Int(1)}), true},
		{"error", Errorf("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Truthy())
		})
	}
}

func TestValueEqual(t *testing.T) {
	a := Object(Pair{Key: "x", Value: Int(1)}, Pair{Key: "y", Value: Int(2)})
	b := Object(Pair{Key: "y", Value: Int(2)}, Pair{Key: "x", Value: Int(1)})
	assert.True(t, a.Equal(b), "object equality is order-insensitive")

	arr1 := Array(Int(1), Int(2))
	arr2 := Array(Int(2), Int(1))
	assert.False(t, arr1.Equal(arr2), "array equality is order-sensitive")

	assert.True(t, Int(3).Equal(Int(3)))
	assert.False(t, Int(3).Equal(Double(3)), "cross-kind equality is false, not promoted")
}

func TestValueGetSetDelete(t *testing.T) {
	obj := Object(Pair{Key: "a", Value: Int(1)})
	v, ok := obj.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v.Int)

	obj.Set("b", Int(2))
	assert.Equal(t, []string{"a", "b"}, obj.Keys())

	obj.Delete("a")
	assert.Equal(t, []string{"b"}, obj.Keys())

	obj.Delete("nonexistent") // no-op, must not panic
}

func TestValueIndexAndAppend(t *testing.T) {
	arr := Array(Int(10), Int(20))
	v, ok := arr.Index(1)
	assert.True(t, ok)
	assert.Equal(t, int64(20), v.Int)

	_, ok = arr.Index(5)
	assert.False(t, ok)

	arr.Append(Int(30))
	assert.Equal(t, 3, arr.Len())
}

func TestMerge(t *testing.T) {
	a := Object(Pair{Key: "name", Value: String("x")}, Pair{Key: "uptime", Value: Int(1)})
	b := Object(Pair{Key: "uptime", Value: Int(2)}, Pair{Key: "load", Value: Double(0.5)})
	m := Merge(a, b)
	uptime, _ := m.Get("uptime")
	assert.Equal(t, int64(2), uptime.Int, "b's bindings win on conflict")
	name, ok := m.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "x", name.Str)
}

func TestCopyIsDeep(t *testing.T) {
	orig := Array(Object(Pair{Key: "a", Value: Int(1)}))
	cp := orig.Copy()
	cp.Array[0].Value.Set("a", Int(99))
	v, _ := orig.Array[0].Value.Get("a")
	assert.Equal(t, int64(1), v.Int, "copy must not alias the original's nested values")
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "number", Int(1).TypeName())
	assert.Equal(t, "number", Double(1.5).TypeName())
	assert.Equal(t, "string", String("x").TypeName())
	assert.Equal(t, "null", (*Value)(nil).TypeName())
}
