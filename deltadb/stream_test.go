package deltadb

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRunReplayFilterAtIngestAndDeferredTime exercises filter-at-ingest
// (a record that never matches Filter never enters the query's table,
// so a later merge against it is dropped) and the deferred time-marker
// discipline (a time marker is only echoed once a subsequent data event
// forces a flush; a trailing marker with no following event is never
// printed).
func TestRunReplayFilterAtIngestAndDeferredTime(t *testing.T) {
	dir := t.TempDir()
	year, yday := 2026, 100
	require.NoError(t, os.MkdirAll(dayDir(dir, year), 0o755))
	log := "" +
		"T 1000\n" +
		"C k1 {\"type\":\"chirp\",\"avail\":10}\n" +
		"C k2 {\"type\":\"catalog\",\"avail\":5}\n" +
		"t 5\n" +
		"M k1 {\"avail\":20}\n" +
		"t 5\n"
	require.NoError(t, os.WriteFile(logPath(dir, year, yday), []byte(log), 0o644))

	var buf bytes.Buffer
	q := NewQuery(&buf)
	q.Filter = mustParse(t, `type=="chirp"`)
	q.Display = DisplayStream
	q.EpochMode = true

	t0 := dayFromYearDay(year, yday)
	t1 := t0.Add(time.Hour)
	require.NoError(t, q.RunReplay(dir, t0, t1))

	out := buf.String()
	assert.Equal(t, "T 1000\n"+
		`C k1 {"type":"chirp","avail":10}`+"\n"+
		"T 1005\n"+
		`M k1 {"avail":20}`+"\n", out)
	assert.NotContains(t, out, "k2", "k2 never passed Filter, so it must never appear in the stream")
	assert.NotContains(t, out, "T 1010", "a trailing time marker with no following event is never flushed")
}

func TestRunReplayObjectsDisplayAppliesWhereAtOutput(t *testing.T) {
	dir := t.TempDir()
	year, yday := 2026, 101
	require.NoError(t, os.MkdirAll(dayDir(dir, year), 0o755))
	log := "" +
		"T 2000\n" +
		"C k1 {\"avail\":10}\n" +
		"C k2 {\"avail\":50}\n" +
		"t 5\n"
	require.NoError(t, os.WriteFile(logPath(dir, year, yday), []byte(log), 0o644))

	var buf bytes.Buffer
	q := NewQuery(&buf)
	q.Where = mustParse(t, "avail>=20")
	q.Display = DisplayObjects
	q.EpochMode = true

	t0 := dayFromYearDay(year, yday)
	t1 := t0.Add(time.Hour)
	require.NoError(t, q.RunReplay(dir, t0, t1))

	assert.Equal(t, "[ 2000, [] ]\n"+`[ 2005, [{"avail":50}] ]`+"\n", buf.String())
}
