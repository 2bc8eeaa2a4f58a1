package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RunnerMetrics tracks job-run outcomes at the Runner boundary (§4.7).
//
// Metrics:
//   - netraven_runner_job_runs_total: Counter of completed job runs by terminal status
//   - netraven_runner_job_run_duration_seconds: Histogram of job-run wall time
//   - netraven_runner_devices_targeted: Histogram of device-set size per run
type RunnerMetrics struct {
	JobRunsTotal          *prometheus.CounterVec
	JobRunDurationSeconds *prometheus.HistogramVec
	DevicesTargeted       prometheus.Histogram
}

func newRunnerMetrics(namespace string) *RunnerMetrics {
	return &RunnerMetrics{
		JobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "job_runs_total",
			Help:      "Total job runs completed, by terminal status",
		}, []string{"status"}),
		JobRunDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "job_run_duration_seconds",
			Help:      "Wall-clock duration of a job run from creation to terminal status",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"status"}),
		DevicesTargeted: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runner",
			Name:      "devices_targeted",
			Help:      "Number of devices resolved from a job's target tag-set",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}
