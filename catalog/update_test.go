package catalog

import (
	"bytes"
	"compress/zlib"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd.dev/jx"
)

func TestNormalizeUpdateConstantJX(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	obj, err := NormalizeUpdate([]byte(`{"name":"host1","avail":10}`), "10.0.0.1", now, 0)
	require.NoError(t, err)

	name, _ := obj.Get("name")
	assert.Equal(t, "host1", name.Str)
	addr, _ := obj.Get("address")
	assert.Equal(t, "10.0.0.1", addr.Str)
	lhf, _ := obj.Get("lastheardfrom")
	assert.Equal(t, now.Unix(), lhf.Int)
}

func TestNormalizeUpdateRejectsOperators(t *testing.T) {
	_, err := NormalizeUpdate([]byte(`{"avail":1+1}`), "10.0.0.1", time.Now(), 0)
	assert.Error(t, err, "update bodies must be constant JX, not expressions")
}

func TestNormalizeUpdateLegacyNVPairs(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	obj, err := NormalizeUpdate([]byte("name host1\navail 10\n\n"), "10.0.0.1", now, 0)
	require.NoError(t, err)
	avail, ok := obj.Get("avail")
	require.True(t, ok)
	assert.Equal(t, int64(10), avail.Int)
}

func TestNormalizeUpdateInflatesZlib(t *testing.T) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write([]byte(`{"name":"host1"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	raw := append([]byte{0x1A}, buf.Bytes()...)
	obj, err := NormalizeUpdate(raw, "10.0.0.1", time.Now(), 0)
	require.NoError(t, err)
	name, _ := obj.Get("name")
	assert.Equal(t, "host1", name.Str)
}

func TestNormalizeUpdateClampsMaxServerSize(t *testing.T) {
	obj, err := NormalizeUpdate([]byte(`{"total":1000,"avail":2000}`), "10.0.0.1", time.Now(), 500)
	require.NoError(t, err)
	total, _ := obj.Get("total")
	assert.Equal(t, int64(500), total.Int)
	avail, _ := obj.Get("avail")
	assert.Equal(t, int64(500), avail.Int)
}

func TestDeriveKeyTruncates(t *testing.T) {
	key := DeriveKey("10.0.0.1", 4242, "host1", "", 10)
	assert.Len(t, key, 10)
}

func TestDeriveKeyIncludesUUID(t *testing.T) {
	key := DeriveKey("10.0.0.1", 4242, "host1", "abc123", 256)
	assert.Equal(t, "10.0.0.1:4242:host1:abc123", key)
}

func TestLegacyLiteralTypes(t *testing.T) {
	assert.Equal(t, jx.KindBool, legacyLiteral("true").Kind)
	assert.Equal(t, jx.KindInt, legacyLiteral("7").Kind)
	assert.Equal(t, jx.KindDouble, legacyLiteral("1.5").Kind)
	assert.Equal(t, jx.KindString, legacyLiteral("hello").Kind)
}
