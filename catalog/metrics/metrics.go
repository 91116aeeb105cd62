// Package metrics instruments catalogd with Prometheus counters,
// gauges and histograms, grounded on the teacher's tracing package but
// cut down to the catalog frontend's own concerns: ingest traffic,
// table size, query latency and worker-pool saturation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector catalogd registers.
type Metrics struct {
	EventsTotal    *prometheus.CounterVec
	UpdatesTotal   *prometheus.CounterVec
	UpdateErrors   *prometheus.CounterVec
	RecordsGauge   prometheus.Gauge
	ExpiredTotal   prometheus.Counter
	QueryDuration  *prometheus.HistogramVec
	QueriesActive  prometheus.Gauge
	WorkerQueueLen prometheus.Gauge
	WorkerRejected prometheus.Counter
}

// New creates and registers the metric set under namespace (typically
// "catalogd").
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "catalogd"
	}
	return &Metrics{
		EventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_events_total",
			Help:      "Total deltadb log events emitted, by event letter.",
		}, []string{"kind"}),

		UpdatesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Total incoming record updates accepted, by transport.",
		}, []string{"transport"}),

		UpdateErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_errors_total",
			Help:      "Total incoming record updates rejected, by reason.",
		}, []string{"reason"}),

		RecordsGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Current number of live records in the table.",
		}),

		ExpiredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_records_total",
			Help:      "Total records removed by the expiry sweep.",
		}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query handler latency in seconds, by display mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"display"}),

		QueriesActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queries_active",
			Help:      "Number of queries currently executing in the worker pool.",
		}),

		WorkerQueueLen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_queue_length",
			Help:      "Number of queries queued waiting for a worker slot.",
		}),

		WorkerRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_rejected_total",
			Help:      "Total queries rejected because the worker pool queue was full.",
		}),
	}
}
