package deltadb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd.dev/jx"
)

func TestTableInsertLookupRemove(t *testing.T) {
	tb, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer tb.Close()

	require.NoError(t, tb.Insert("host1", jx.Object(jx.Pair{Key: "load", Value: jx.Int(1)})))
	v, ok := tb.Lookup("host1")
	require.True(t, ok)
	assert.Equal(t, int64(1), mustGet(v, "load").Int)
	assert.Equal(t, 1, tb.Len())
	assert.Equal(t, []string{"host1"}, tb.Keys())

	old, err := tb.Remove("host1")
	require.NoError(t, err)
	require.NotNil(t, old)
	assert.Equal(t, 0, tb.Len())
	_, ok = tb.Lookup("host1")
	assert.False(t, ok)
}

func TestTableInsertMergesExistingKey(t *testing.T) {
	tb, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer tb.Close()

	require.NoError(t, tb.Insert("host1", jx.Object(
		jx.Pair{Key: "load", Value: jx.Int(1)},
		jx.Pair{Key: "stale", Value: jx.Int(9)},
	)))
	require.NoError(t, tb.Insert("host1", jx.Object(
		jx.Pair{Key: "load", Value: jx.Int(2)},
	)))

	v, ok := tb.Lookup("host1")
	require.True(t, ok)
	assert.Equal(t, int64(2), mustGet(v, "load").Int)
}

func TestTableSnapshotRejectsMutators(t *testing.T) {
	dir := t.TempDir()
	tb, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, tb.Insert("k", jx.Object(jx.Pair{Key: "a", Value: jx.Int(1)})))
	require.NoError(t, tb.Close())

	snap, err := OpenSnapshot(dir, nil, time.Now())
	require.NoError(t, err)
	defer snap.Close()

	assert.Error(t, snap.Insert("k2", jx.Object()))
	_, err = snap.Remove("k")
	assert.Error(t, err)
}

func mustGet(v *jx.Value, key string) *jx.Value {
	got, ok := v.Get(key)
	if !ok {
		return jx.Null()
	}
	return got
}
