// Package breaker implements the per-device circuit breaker of §4.5: a
// thin adapter over github.com/sony/gobreaker/v2 that preserves a small
// Execute surface while exposing CLOSED/OPEN/HALF_OPEN state for
// metrics and capability-probe short-circuiting.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/netraven/engine/pkg/metrics"
)

// State mirrors gobreaker's three-state model.
type State int

const (
	StateClosed   State = State(gobreaker.StateClosed)
	StateHalfOpen State = State(gobreaker.StateHalfOpen)
	StateOpen     State = State(gobreaker.StateOpen)
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when a device's breaker is open.
var ErrOpen = errors.New("breaker: circuit open for device")

// Config tunes a single device's breaker.
type Config struct {
	MaxFailures uint32        // consecutive failures before opening
	Timeout     time.Duration // time in open state before half-open
	HalfOpenMax uint32        // max requests allowed in half-open
}

// DefaultConfig matches §4.5's circuit breaker defaults: open after 5
// consecutive failures, half-open after a 60s reset timeout, close
// after 1 consecutive success in half-open.
func DefaultConfig() Config {
	return Config{
		MaxFailures: 5,
		Timeout:     60 * time.Second,
		HalfOpenMax: 1,
	}
}

// Breaker wraps one gobreaker.CircuitBreaker for one device.
type Breaker struct {
	gb *gobreaker.CircuitBreaker[any]
}

func newBreaker(deviceID string, cfg Config, onStateChange func(deviceID string, from, to State)) *Breaker {
	settings := gobreaker.Settings{
		Name:        deviceID,
		MaxRequests: cfg.HalfOpenMax,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
	}
	if onStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onStateChange(name, State(from), State(to))
		}
	}
	return &Breaker{gb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State reports the device's current breaker state.
func (b *Breaker) State() State { return State(b.gb.State()) }

// Execute runs fn with circuit breaker protection. ctx is accepted for
// caller symmetry with the rest of the executor pipeline; cancellation
// within fn is the caller's responsibility.
func (b *Breaker) Execute(_ context.Context, fn func() error) error {
	_, err := b.gb.Execute(func() (any, error) {
		return nil, fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrOpen
		}
		return err
	}
	return nil
}

// Manager owns one Breaker per device, created lazily on first use, and
// publishes state transitions to the breaker metrics category.
type Manager struct {
	cfg     Config
	metrics *metrics.BreakerMetrics

	mu       sync.Mutex
	breakers map[string]*Breaker
	openSet  map[string]struct{}
}

// NewManager builds a Manager with the given per-device config.
func NewManager(cfg Config, m *metrics.BreakerMetrics) *Manager {
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		breakers: make(map[string]*Breaker),
		openSet:  make(map[string]struct{}),
	}
}

// For returns the breaker for deviceID, creating it if this is the
// first attempt against that device.
func (m *Manager) For(deviceID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.breakers[deviceID]; ok {
		return b
	}
	b := newBreaker(deviceID, m.cfg, m.onStateChange)
	m.breakers[deviceID] = b
	return b
}

// Execute is a convenience wrapper equivalent to m.For(deviceID).Execute.
func (m *Manager) Execute(ctx context.Context, deviceID string, fn func() error) error {
	err := m.For(deviceID).Execute(ctx, fn)
	if errors.Is(err, ErrOpen) && m.metrics != nil {
		m.metrics.RejectedTotal.Inc()
	}
	return err
}

// State reports the current state for deviceID without creating a
// breaker as a side effect if none exists yet.
func (m *Manager) State(deviceID string) State {
	m.mu.Lock()
	b, ok := m.breakers[deviceID]
	m.mu.Unlock()
	if !ok {
		return StateClosed
	}
	return b.State()
}

func (m *Manager) onStateChange(deviceID string, from, to State) {
	if m.metrics == nil {
		return
	}
	m.metrics.TransitionsTotal.WithLabelValues(to.String()).Inc()

	m.mu.Lock()
	switch to {
	case StateOpen:
		m.openSet[deviceID] = struct{}{}
	default:
		delete(m.openSet, deviceID)
	}
	count := len(m.openSet)
	m.mu.Unlock()

	m.metrics.DevicesOpen.Set(float64(count))
}
