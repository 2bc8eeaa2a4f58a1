package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CredentialMetrics tracks the credential resolver (§4.3): tag-intersection
// matching and the EWMA success-rate statistics kept per credential.
//
// Metrics:
//   - netraven_credential_resolution_duration_seconds: Histogram of resolver lookup time
//   - netraven_credential_resolutions_total: Counter of resolutions by outcome
//   - netraven_credential_success_rate: Gauge of the current EWMA success rate, by credential
type CredentialMetrics struct {
	ResolutionDurationSeconds prometheus.Histogram
	ResolutionsTotal          *prometheus.CounterVec
	SuccessRate               *prometheus.GaugeVec
}

func newCredentialMetrics(namespace string) *CredentialMetrics {
	return &CredentialMetrics{
		ResolutionDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "resolution_duration_seconds",
			Help:      "Time taken to resolve a candidate credential for a device",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ResolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "resolutions_total",
			Help:      "Credential resolutions, by outcome (resolved, exhausted)",
		}, []string{"outcome"}),
		SuccessRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "success_rate",
			Help:      "Current EWMA success rate for a credential",
		}, []string{"credential_id"}),
	}
}
