package deltadb

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd.dev/jx"
)

// TestMergeLogMinimal covers spec.md §8 S5: a second insert of the same
// key produces a minimal M event (only changed/new fields), not a
// second C, and an intermediate snapshot sees the pre-merge state.
func TestMergeLogMinimal(t *testing.T) {
	dir := t.TempDir()
	tb, err := Open(dir, nil)
	require.NoError(t, err)

	t1 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tb.now = func() time.Time { return t1 }
	require.NoError(t, tb.Insert("k", jx.Object(
		jx.Pair{Key: "a", Value: jx.Int(1)},
		jx.Pair{Key: "b", Value: jx.Int(2)},
	)))

	t2 := t1.Add(5 * time.Second)
	tb.now = func() time.Time { return t2 }
	require.NoError(t, tb.Insert("k", jx.Object(
		jx.Pair{Key: "a", Value: jx.Int(1)},
		jx.Pair{Key: "b", Value: jx.Int(3)},
		jx.Pair{Key: "c", Value: jx.Int(4)},
	)))
	require.NoError(t, tb.Close())

	year, yday := yearDay(t1)
	data, err := os.ReadFile(logPath(dir, year, yday))
	require.NoError(t, err)
	lines := splitLines(string(data))
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "T "+itoa(t1.Unix()), lines[0])
	assert.Equal(t, `C k {"a":1,"b":2}`, lines[1])
	assert.Equal(t, "t 5", lines[2], "a second elapsed-time delta marker precedes the merge event")
	assert.Contains(t, lines[3], `M k `)
	assert.Contains(t, lines[3], `"b":3`)
	assert.Contains(t, lines[3], `"c":4`)
	assert.NotContains(t, lines[3], `"a"`, "unchanged field a must be excluded from the merge delta")

	// Snapshot strictly between the two inserts sees the pre-merge value.
	between, err := OpenSnapshot(dir, nil, t1.Add(2*time.Second))
	require.NoError(t, err)
	defer between.Close()
	v, ok := between.Lookup("k")
	require.True(t, ok)
	b, _ := v.Get("b")
	assert.Equal(t, int64(2), b.Int)
	_, hasC := v.Get("c")
	assert.False(t, hasC)

	// Snapshot after the second insert sees the merged value.
	after, err := OpenSnapshot(dir, nil, t2.Add(time.Second))
	require.NoError(t, err)
	defer after.Close()
	v2, ok := after.Lookup("k")
	require.True(t, ok)
	b2, _ := v2.Get("b")
	assert.Equal(t, int64(3), b2.Int)
	c2, ok := v2.Get("c")
	require.True(t, ok)
	assert.Equal(t, int64(4), c2.Int)
}

// TestCorruptRWorkaround covers spec.md §8 S6: a log line "R k fieldC k
// {"a":1}" (a missing newline between an R event's field name and the
// next event) must replay as "R k field" followed by "C k {"a":1}".
func TestCorruptRWorkaround(t *testing.T) {
	dir := t.TempDir()
	year, yday := 2026, 60
	require.NoError(t, os.MkdirAll(dayDir(dir, year), 0o755))
	line := "T 1700000000\nR k fieldC k {\"a\":1}\n"
	require.NoError(t, os.WriteFile(logPath(dir, year, yday), []byte(line), 0o644))

	// at must resolve to the fixture's (year, yday) via yearDay.
	at := dayFromYearDay(year, yday).Add(time.Hour)

	tb, err := OpenSnapshot(dir, nil, at)
	require.NoError(t, err)
	defer tb.Close()

	v, ok := tb.Lookup("k")
	require.True(t, ok, "the reconstructed C event must have installed key k")
	a, ok := v.Get("a")
	require.True(t, ok)
	assert.Equal(t, int64(1), a.Int)
	_, hasField := v.Get("field")
	assert.False(t, hasField, "field was never set on k, so the R is a no-op")
}

func dayFromYearDay(year, yday int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, yday)
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
