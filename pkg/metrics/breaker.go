package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BreakerMetrics tracks per-device circuit breaker state (§4.5).
//
// Metrics:
//   - netraven_breaker_transitions_total: Counter of state transitions by target state
//   - netraven_breaker_open_total: Counter of attempts rejected while a breaker is open
//   - netraven_breaker_devices_open: Gauge of devices currently tripped open
type BreakerMetrics struct {
	TransitionsTotal *prometheus.CounterVec
	RejectedTotal    prometheus.Counter
	DevicesOpen      prometheus.Gauge
}

func newBreakerMetrics(namespace string) *BreakerMetrics {
	return &BreakerMetrics{
		TransitionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions, by target state",
		}, []string{"to_state"}),
		RejectedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "open_total",
			Help:      "Attempts rejected because a device's breaker was open",
		}),
		DevicesOpen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "breaker",
			Name:      "devices_open",
			Help:      "Number of devices whose breaker is currently open",
		}),
	}
}
