package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DispatcherMetrics tracks the bounded worker pool that fans job-run
// attempts out across devices (§4.6).
//
// Metrics:
//   - netraven_dispatcher_queue_depth: Gauge of attempts waiting for a free worker
//   - netraven_dispatcher_workers_busy: Gauge of workers currently executing an attempt
//   - netraven_dispatcher_attempts_total: Counter of dispatched attempts by outcome
//   - netraven_dispatcher_retry_scheduled_total: Counter of attempts requeued after a retryable failure
type DispatcherMetrics struct {
	QueueDepth          prometheus.Gauge
	WorkersBusy         prometheus.Gauge
	AttemptsTotal       *prometheus.CounterVec
	RetryScheduledTotal *prometheus.CounterVec
}

func newDispatcherMetrics(namespace string) *DispatcherMetrics {
	return &DispatcherMetrics{
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "queue_depth",
			Help:      "Number of attempts waiting for a free worker slot",
		}),
		WorkersBusy: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "workers_busy",
			Help:      "Number of worker goroutines currently executing an attempt",
		}),
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "attempts_total",
			Help:      "Total attempts dispatched to a worker, by terminal outcome",
		}, []string{"outcome"}),
		RetryScheduledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "retry_scheduled_total",
			Help:      "Attempts requeued for retry after a retryable failure, by error kind",
		}, []string{"error_kind"}),
	}
}
