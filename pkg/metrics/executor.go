package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ExecutorMetrics tracks the per-device state machine (§4.4) that drives a
// single connect/authenticate/run/fetch attempt.
//
// Metrics:
//   - netraven_executor_attempt_duration_seconds: Histogram of full attempt duration
//   - netraven_executor_attempts_total: Counter of attempts by driver type and outcome
//   - netraven_executor_errors_total: Counter of classified errors by error kind
type ExecutorMetrics struct {
	AttemptDurationSeconds *prometheus.HistogramVec
	AttemptsTotal          *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

func newExecutorMetrics(namespace string) *ExecutorMetrics {
	return &ExecutorMetrics{
		AttemptDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of a connect-authenticate-run-fetch attempt",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"driver_type", "outcome"}),
		AttemptsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "attempts_total",
			Help:      "Total attempts executed, by driver type and outcome",
		}, []string{"driver_type", "outcome"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "errors_total",
			Help:      "Total classified attempt errors, by error kind",
		}, []string{"error_kind"}),
	}
}
