package jx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintAtomics(t *testing.T) {
	tests := []struct {
		v    *Value
		want string
	}{
		{Null(), "null"},
		{Bool(true), "true"},
		{Int(42), "42"},
		{Int(-5), "-5"},
		{Double(3.5), "3.5"},
		{String("hi"), `"hi"`},
		{Array(Int(1), Int(2)), "[1,2]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Print(tt.v))
	}
}

func TestPrintEscapesControlCharacters(t *testing.T) {
	assert.Equal(t, `"a\nb"`, Print(String("a\nb")))
	assert.Equal(t, `"a\"b"`, Print(String(`a"b`)))
}

func TestPrintParenthesizesLowerPrecedenceChild(t *testing.T) {
	// (1 + 2) * 3 must keep its parens; 1 + 2 * 3 must not gain any.
	v, errs := Parse([]byte("(1 + 2) * 3"), ModePermissive)
	require.Empty(t, errs)
	assert.Equal(t, "(1 + 2) * 3", Print(v))

	v2, errs2 := Parse([]byte("1 + 2 * 3"), ModePermissive)
	require.Empty(t, errs2)
	assert.Equal(t, "1 + 2 * 3", Print(v2))
}

func TestPrintRightAssociativeSubtractionParenthesizes(t *testing.T) {
	v, errs := Parse([]byte("1 - (2 - 3)"), ModePermissive)
	require.Empty(t, errs)
	assert.Equal(t, "1 - (2 - 3)", Print(v), "equal-precedence right child must be parenthesized to preserve meaning")
}

func TestParsePrintRoundTrip(t *testing.T) {
	srcs := []string{
		"1 + 2 * 3",
		"(1 + 2) * 3",
		"a and b or c",
		"x[1:3]",
		`"hello world"`,
		"[1, 2, 3]",
		`{"a": 1, "b": 2}`,
	}
	for _, src := range srcs {
		v, errs := Parse([]byte(src), ModePermissive)
		require.Empty(t, errs, src)
		printed := Print(v)
		v2, errs2 := Parse([]byte(printed), ModePermissive)
		require.Empty(t, errs2, printed)
		assert.True(t, v.Equal(v2), "round trip mismatch: %s -> %s", src, printed)
	}
}

func TestPrettyPrintIndentsObjects(t *testing.T) {
	v := Object(Pair{Key: "a", Value: Int(1)})
	got := PrettyPrint(v)
	assert.Contains(t, got, "\n  \"a\":1")
}
