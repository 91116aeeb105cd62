package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogd.dev/catalog/workerpool"
	"catalogd.dev/config"
	"catalogd.dev/deltadb"
	"catalogd.dev/jx"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Port:                  0,
		Lifetime:              time.Hour,
		CleanInterval:         time.Hour,
		ChildProcsMax:         4,
		ChildProcsTimeout:     time.Second,
		StreamingProcsTimeout: time.Hour,
		HistoryDir:            t.TempDir(),
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig(t)
	log := logrus.NewEntry(logrus.New())
	srv, err := NewServer(cfg, log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.table.Close() })
	return srv
}

// TestHandleUpdateEnqueuesNormalizedRecord covers spec.md §4.8: a raw
// update is normalized (address/lastheardfrom stamped, name
// canonicalized) and handed to the table-owning event loop, not
// inserted directly.
func TestHandleUpdateEnqueuesNormalizedRecord(t *testing.T) {
	srv := newTestServer(t)

	srv.handleUpdate("udp", "192.0.2.1", []byte(`{"name":"producer1","avail":10}`))

	select {
	case op := <-srv.events:
		addr, ok := op.obj.Get("address")
		require.True(t, ok)
		assert.Equal(t, "192.0.2.1", addr.Str)
		_, ok = op.obj.Get("lastheardfrom")
		assert.True(t, ok)
		name, ok := op.obj.Get("name")
		require.True(t, ok)
		assert.NotEmpty(t, name.Str)
		assert.NotEmpty(t, op.key)
	case <-time.After(time.Second):
		t.Fatal("handleUpdate did not enqueue a tableOp")
	}
}

func TestHandleUpdateDropsMalformedBody(t *testing.T) {
	srv := newTestServer(t)
	srv.handleUpdate("udp", "192.0.2.1", []byte(`{"avail":1+1}`))

	select {
	case op := <-srv.events:
		t.Fatalf("malformed update must not be enqueued, got %+v", op)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestHandleUpdateCongestedDrop covers the "event loop congested"
// backpressure path: when s.events is full and ChildProcsTimeout
// elapses before a slot frees up, the update is dropped rather than
// blocking the ingestion goroutine forever.
func TestHandleUpdateCongestedDrop(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	cfg := testConfig(t)
	cfg.ChildProcsTimeout = 20 * time.Millisecond
	tb, err := deltadb.Open(cfg.HistoryDir, log)
	require.NoError(t, err)
	t.Cleanup(func() { tb.Close() })

	srv := &Server{
		cfg:    cfg,
		table:  tb,
		log:    log,
		pool:   workerpool.New(cfg.ChildProcsMax, cfg.ChildProcsTimeout, nil),
		events: make(chan tableOp), // unbuffered: any send blocks until drained
	}

	done := make(chan struct{})
	go func() {
		srv.handleUpdate("udp", "192.0.2.1", []byte(`{"avail":1}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleUpdate should have given up after ChildProcsTimeout")
	}
}

// TestEventLoopInsertsIntoTable covers spec.md §5: the table is
// mutated only by the single event-loop goroutine draining s.events.
func TestEventLoopInsertsIntoTable(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.eventLoop(ctx)

	srv.events <- tableOp{key: "k1", obj: jx.Object(jx.Pair{Key: "avail", Value: jx.Int(5)})}

	require.Eventually(t, func() bool {
		_, ok := srv.table.Lookup("k1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestSweepExpiredRemovesStaleRecords(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.Lifetime = time.Minute
	srv.startedAt = time.Now().Add(-2 * time.Minute) // past the startup grace window

	now := time.Now()
	require.NoError(t, srv.table.Insert("fresh", jx.Object(
		jx.Pair{Key: "lastheardfrom", Value: jx.Int(now.Unix())},
	)))
	require.NoError(t, srv.table.Insert("stale", jx.Object(
		jx.Pair{Key: "lastheardfrom", Value: jx.Int(now.Add(-time.Hour).Unix())},
	)))

	srv.sweepExpired()

	_, ok := srv.table.Lookup("fresh")
	assert.True(t, ok, "record within lifetime must survive the sweep")
	_, ok = srv.table.Lookup("stale")
	assert.False(t, ok, "record past lifetime must be removed")
}

// TestHandleUpdateRateLimited covers the update-rate-limiting guard:
// once the burst allowance is exhausted, further updates are dropped
// without reaching NormalizeUpdate/the event channel.
func TestHandleUpdateRateLimited(t *testing.T) {
	cfg := testConfig(t)
	cfg.UpdateRateLimit = 1
	cfg.UpdateRateBurst = 1
	log := logrus.NewEntry(logrus.New())
	srv, err := NewServer(cfg, log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { srv.table.Close() })

	srv.handleUpdate("udp", "192.0.2.1", []byte(`{"avail":1}`))
	select {
	case <-srv.events:
	case <-time.After(time.Second):
		t.Fatal("first update within the burst allowance must be enqueued")
	}

	srv.handleUpdate("udp", "192.0.2.1", []byte(`{"avail":2}`))
	select {
	case op := <-srv.events:
		t.Fatalf("update past the burst allowance must be rate-limited, got %+v", op)
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSweepExpiredUsesPerRecordLifetime covers spec.md §8 Property 10:
// a record advertising its own lifetime is expired against
// min(cfg.Lifetime, record.lifetime), not the global lifetime alone.
func TestSweepExpiredUsesPerRecordLifetime(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.Lifetime = 30 * time.Minute
	srv.startedAt = time.Now().Add(-time.Hour) // past the startup grace window

	now := time.Now()
	require.NoError(t, srv.table.Insert("short-lived", jx.Object(
		jx.Pair{Key: "lastheardfrom", Value: jx.Int(now.Add(-2 * time.Minute).Unix())},
		jx.Pair{Key: "lifetime", Value: jx.Int(60)},
	)))
	require.NoError(t, srv.table.Insert("long-lived", jx.Object(
		jx.Pair{Key: "lastheardfrom", Value: jx.Int(now.Add(-2 * time.Minute).Unix())},
		jx.Pair{Key: "lifetime", Value: jx.Int(3600)},
	)))

	srv.sweepExpired()

	_, ok := srv.table.Lookup("short-lived")
	assert.False(t, ok, "record whose own lifetime (60s) elapsed must be removed even though the global lifetime hasn't")
	_, ok = srv.table.Lookup("long-lived")
	assert.True(t, ok, "record whose own lifetime exceeds the global lifetime is capped by the global lifetime, not expired early")
}

func TestSweepExpiredSuppressedDuringStartupGrace(t *testing.T) {
	srv := newTestServer(t)
	srv.cfg.Lifetime = time.Minute
	srv.startedAt = time.Now() // well within the grace window

	require.NoError(t, srv.table.Insert("stale", jx.Object(
		jx.Pair{Key: "lastheardfrom", Value: jx.Int(time.Now().Add(-time.Hour).Unix())},
	)))

	srv.sweepExpired()

	_, ok := srv.table.Lookup("stale")
	assert.True(t, ok, "expiry must be suppressed until Lifetime has elapsed since startup")
}
