package jx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAtomics(t *testing.T) {
	tests := []struct {
		src  string
		kind Kind
	}{
		{"null", KindNull},
		{"true", KindBool},
		{"false", KindBool},
		{"42", KindInt},
		{"-42", KindInt},
		{"3.14", KindDouble},
		{`"hello"`, KindString},
		{"[1, 2, 3]", KindArray},
		{`{"a": 1}`, KindObject},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, errs := Parse([]byte(tt.src), ModePermissive)
			require.Empty(t, errs)
			require.NotNil(t, v)
			assert.Equal(t, tt.kind, v.Kind)
		})
	}
}

func TestParseStrictModeRejectsSymbols(t *testing.T) {
	_, errs := Parse([]byte("foo"), ModeStrict)
	assert.NotEmpty(t, errs)
}

func TestParsePermissiveAllowsSymbols(t *testing.T) {
	v, errs := Parse([]byte("foo"), ModePermissive)
	require.Empty(t, errs)
	assert.Equal(t, KindSymbol, v.Kind)
	assert.Equal(t, "foo", v.Sym)
}

func TestParseOperatorPrecedence(t *testing.T) {
	v, errs := Parse([]byte("1 + 2 * 3"), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindOperator, v.Kind)
	assert.Equal(t, OpAdd, v.OpTag)
	assert.Equal(t, OpMul, v.Right.OpTag, "multiplication binds tighter than addition")
}

func TestParseComparisonAndLogic(t *testing.T) {
	v, errs := Parse([]byte("a == 1 and b != 2"), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindOperator, v.Kind)
	assert.Equal(t, OpAnd, v.OpTag)
}

func TestParseLookupAndSlice(t *testing.T) {
	v, errs := Parse([]byte("x[1:3]"), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindOperator, v.Kind)
	assert.Equal(t, OpLookup, v.OpTag)
	require.Equal(t, KindOperator, v.Right.Kind)
	assert.Equal(t, OpSlice, v.Right.OpTag)
}

func TestParseDotCall(t *testing.T) {
	v, errs := Parse([]byte(`x.select(x > 1)`), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindOperator, v.Kind)
	assert.Equal(t, OpDot, v.OpTag)
	require.Equal(t, KindOperator, v.Right.Kind)
	assert.Equal(t, OpCall, v.Right.OpTag)
	assert.Equal(t, "select", v.Right.Left.Sym)
}

func TestParseArrayComprehension(t *testing.T) {
	v, errs := Parse([]byte("[x * 2 for x in items if x > 0]"), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindArray, v.Kind)
	require.Len(t, v.Array, 1)
	comp := v.Array[0].Comp
	require.NotNil(t, comp)
	assert.Equal(t, "x", comp.Var)
	assert.NotNil(t, comp.Cond)
}

func TestParseErrorKeyword(t *testing.T) {
	v, errs := Parse([]byte(`error("oops")`), ModePermissive)
	require.Empty(t, errs)
	require.Equal(t, KindError, v.Kind)
	assert.Equal(t, "oops", v.Err.Str)
}

func TestParseUnterminatedString(t *testing.T) {
	_, errs := Parse([]byte(`"unterminated`), ModePermissive)
	require.NotEmpty(t, errs)
}
