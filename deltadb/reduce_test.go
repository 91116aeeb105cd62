package deltadb

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"catalogd.dev/jx"
)

func TestReductionAccUpdate(t *testing.T) {
	acc := newReductionAcc()
	acc.update(jx.Int(3))
	acc.update(jx.Int(5))
	acc.update(jx.Int(5))

	assert.Equal(t, int64(3), acc.value(ReduceCount).Int)
	assert.Equal(t, float64(13), acc.value(ReduceSum).Double)
	assert.InDelta(t, 13.0/3.0, acc.value(ReduceAvg).Double, 1e-9)
	assert.Equal(t, float64(3), acc.value(ReduceMin).Double)
	assert.Equal(t, float64(5), acc.value(ReduceMax).Double)
	assert.Equal(t, int64(3), acc.value(ReduceFirst).Int)
	assert.Equal(t, int64(5), acc.value(ReduceLast).Int)

	unique := acc.value(ReduceUnique)
	assert.Equal(t, 2, unique.Len(), "duplicate value 5 counted once")
}

func TestReductionAccEmpty(t *testing.T) {
	acc := newReductionAcc()
	assert.Equal(t, int64(0), acc.value(ReduceCount).Int)
	assert.Equal(t, float64(0), acc.value(ReduceAvg).Double)
	assert.True(t, acc.value(ReduceFirst).IsNull())
	assert.True(t, acc.value(ReduceLast).IsNull())
}
