package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"catalogd.dev/catalog/metrics"
	"catalogd.dev/catalog/workerpool"
	"catalogd.dev/config"
	"catalogd.dev/deltadb"
	"catalogd.dev/jx"
)

// maxKeyLen bounds a derived record key, per spec.md §3's "truncated
// to a bounded length."
const maxKeyLen = 256

// tableOp is one normalized update queued for the single goroutine
// that owns table mutation, preserving the "table touched by only one
// thread" property of spec.md §5 even though Table itself is also
// safe for concurrent use.
type tableOp struct {
	key string
	obj *jx.Value
}

// Server wires deltadb's table to UDP/TCP ingestion, the expiry sweep
// and the query worker pool.
type Server struct {
	cfg     config.Config
	table   *deltadb.Table
	log     *logrus.Entry
	metrics *metrics.Metrics
	pool    *workerpool.Pool
	limiter *rate.Limiter

	events    chan tableOp
	startedAt time.Time
}

// NewServer opens (or recovers) the deltadb table at cfg.HistoryDir
// and prepares the ingestion/expiry/query plumbing.
func NewServer(cfg config.Config, log *logrus.Entry, m *metrics.Metrics, opts ...deltadb.Option) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	tb, err := deltadb.Open(cfg.HistoryDir, log.WithField("component", "deltadb"), opts...)
	if err != nil {
		return nil, fmt.Errorf("catalog: open table: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.UpdateRateLimit > 0 {
		burst := cfg.UpdateRateBurst
		if burst <= 0 {
			burst = cfg.UpdateRateLimit
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.UpdateRateLimit), burst)
	}

	return &Server{
		cfg:     cfg,
		table:   tb,
		log:     log,
		metrics: m,
		pool:    workerpool.New(cfg.ChildProcsMax, cfg.ChildProcsTimeout, m),
		limiter: limiter,
		events:  make(chan tableOp, 256),
	}, nil
}

// Table returns the live table, for read-only query access.
func (s *Server) Table() *deltadb.Table { return s.table }

// Pool returns the query worker pool, for catalog/api to submit
// bounded-concurrency query handlers through.
func (s *Server) Pool() *workerpool.Pool { return s.pool }

// StreamingTimeout returns the larger timeout budget afforded to
// long-lived streaming queries (spec.md §4.8/§6).
func (s *Server) StreamingTimeout() time.Duration { return s.cfg.StreamingProcsTimeout }

// HistoryDir returns the deltadb log root, for directory-replay
// queries issued outside the live table.
func (s *Server) HistoryDir() string { return s.cfg.HistoryDir }

// Run starts ingestion listeners and the table's owning event loop,
// blocking until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.startedAt = time.Now()

	if err := s.listenUDP(ctx); err != nil {
		return err
	}
	if err := s.listenTCPUpdates(ctx); err != nil {
		return err
	}

	s.eventLoop(ctx)
	return s.table.Close()
}

// eventLoop is the single goroutine that mutates the table: it drains
// normalized updates from s.events and runs the periodic expiry sweep,
// never touching the table from any other goroutine.
func (s *Server) eventLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-s.events:
			if err := s.table.Insert(op.key, op.obj); err != nil {
				s.log.WithError(err).Warn("catalog: insert failed")
				continue
			}
			if s.metrics != nil {
				s.metrics.RecordsGauge.Set(float64(s.table.Len()))
			}
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}
