package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RepositoryMetrics tracks the content-addressed configuration repository
// (§4.7): commits, the no-change short-circuit, and write contention.
//
// Metrics:
//   - netraven_repository_commit_duration_seconds: Histogram of commit latency
//   - netraven_repository_commits_total: Counter of commit outcomes (committed, no_change, failed)
//   - netraven_repository_write_lock_wait_seconds: Histogram of time spent waiting for a device's write lock
type RepositoryMetrics struct {
	CommitDurationSeconds *prometheus.HistogramVec
	CommitsTotal          *prometheus.CounterVec
	WriteLockWaitSeconds  prometheus.Histogram
}

func newRepositoryMetrics(namespace string) *RepositoryMetrics {
	return &RepositoryMetrics{
		CommitDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "commit_duration_seconds",
			Help:      "Time taken to commit a configuration snapshot",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"outcome"}),
		CommitsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "commits_total",
			Help:      "Configuration repository commit attempts, by outcome",
		}, []string{"outcome"}),
		WriteLockWaitSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "repository",
			Name:      "write_lock_wait_seconds",
			Help:      "Time spent waiting for a device's serialized write lock",
			Buckets:   []float64{0.001, 0.01, 0.1, 1, 5},
		}),
	}
}
