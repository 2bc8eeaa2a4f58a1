// Package dispatcher implements the bounded worker pool of §4.6: fans a
// job run's device set out across W concurrent workers, retries
// retriable classified errors with exponential backoff and jitter, and
// aggregates per-device outcomes for the Runner.
package dispatcher

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/pkg/metrics"
)

// Config tunes the worker pool and retry curve.
type Config struct {
	// Workers is the pool size. Zero selects min(len(devices), 16) per
	// Dispatch call.
	Workers int
	// MaxRetries is R in §4.6: up to R retries for R+1 total attempts.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter is the uniform jitter fraction applied to each delay, e.g.
	// 0.25 for +/-25%.
	Jitter float64
	// SubmissionsPerSecond, if positive, caps how fast new device
	// attempts (including retries) start across the whole pool,
	// independent of the worker count. Zero disables pacing. Useful
	// for fleets where the bottleneck is a shared upstream (a jump
	// host, a rate-limited AAA server) rather than worker concurrency.
	SubmissionsPerSecond float64
}

// DefaultConfig matches §4.6's defaults: 2 retries, 0.5s base delay,
// 30s cap, +/-25% jitter.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Jitter:     0.25,
	}
}

const maxPoolWorkers = 16

// Resolver is the subset of credential.Resolver the Dispatcher needs,
// narrowed for testability.
type Resolver interface {
	Resolve(ctx context.Context, deviceID string) (*credential.Candidates, error)
}

// Executor is the subset of executor.Executor the Dispatcher needs.
type Executor interface {
	Run(ctx context.Context, device domain.Device, candidates *credential.Candidates, jobRunID string) executor.Outcome
}

// Dispatcher fans a device set out across a bounded worker pool.
type Dispatcher struct {
	cfg      Config
	resolver Resolver
	executor Executor
	logger   *slog.Logger
	metrics  *metrics.DispatcherMetrics
	limiter  *rate.Limiter
}

// New builds a Dispatcher from its collaborators.
func New(cfg Config, resolver Resolver, exec Executor, logger *slog.Logger, m *metrics.DispatcherMetrics) *Dispatcher {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.SubmissionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmissionsPerSecond), 1)
	}

	return &Dispatcher{cfg: cfg, resolver: resolver, executor: exec, logger: logger, metrics: m, limiter: limiter}
}

// Dispatch runs every device in devices through the Executor, retrying
// retriable classified failures per the configured policy, and returns
// one terminal Outcome per device. Cancelling ctx lets in-flight
// attempts finish (subject to their own command timeouts) but stops new
// attempts and retries from starting.
func (d *Dispatcher) Dispatch(ctx context.Context, devices []domain.Device, jobRunID string) []executor.Outcome {
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = len(devices)
		if workers > maxPoolWorkers {
			workers = maxPoolWorkers
		}
		if workers == 0 {
			workers = 1
		}
	}

	jobs := make(chan int, len(devices))
	results := make([]executor.Outcome, len(devices))

	var wg sync.WaitGroup
	var busy int32
	var mu sync.Mutex

	if d.metrics != nil {
		d.metrics.QueueDepth.Set(float64(len(devices)))
	}

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			mu.Lock()
			busy++
			if d.metrics != nil {
				d.metrics.WorkersBusy.Set(float64(busy))
				d.metrics.QueueDepth.Set(float64(len(jobs)))
			}
			mu.Unlock()

			results[idx] = d.safeRunWithRetry(ctx, devices[idx], jobRunID)

			mu.Lock()
			busy--
			if d.metrics != nil {
				d.metrics.WorkersBusy.Set(float64(busy))
			}
			mu.Unlock()
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go worker()
	}
	for i := range devices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if d.metrics != nil {
		d.metrics.QueueDepth.Set(0)
		d.metrics.WorkersBusy.Set(0)
	}

	return results
}

// safeRunWithRetry isolates one device's attempt from the rest of the
// pool: a panic escaping the driver, classifier, or executor for this
// device is logged and turned into a FAILED(UNKNOWN) outcome (§7)
// instead of taking down the worker goroutine (and, absent recovery,
// the whole process).
func (d *Dispatcher) safeRunWithRetry(ctx context.Context, device domain.Device, jobRunID string) (outcome executor.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("dispatcher: recovered panic in worker", "device_id", device.ID, "panic", rec)
			outcome = executor.Outcome{DeviceID: device.ID, ErrorKind: domain.ErrUnknown}
		}
	}()
	return d.runWithRetry(ctx, device, jobRunID)
}

func (d *Dispatcher) runWithRetry(ctx context.Context, device domain.Device, jobRunID string) executor.Outcome {
	var outcome executor.Outcome
	attempt := 0

	for {
		if ctx.Err() != nil {
			outcome = executor.Outcome{DeviceID: device.ID, ErrorKind: domain.ErrCancelled}
			break
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				outcome = executor.Outcome{DeviceID: device.ID, ErrorKind: domain.ErrCancelled}
				break
			}
		}

		candidates, err := d.resolver.Resolve(ctx, device.ID)
		if err != nil {
			d.logger.Error("dispatcher: credential resolution failed", "device_id", device.ID, "error", err)
			outcome = executor.Outcome{DeviceID: device.ID, ErrorKind: domain.ErrUnknown}
			break
		}

		outcome = d.executor.Run(ctx, device, candidates, jobRunID)
		d.recordAttempt(outcome)

		if outcome.Success || outcome.Skipped {
			break
		}
		if !outcome.ErrorKind.Retriable() {
			break
		}
		if attempt >= d.cfg.MaxRetries {
			break
		}

		delay := d.backoffDelay(attempt)
		if d.metrics != nil {
			d.metrics.RetryScheduledTotal.WithLabelValues(string(outcome.ErrorKind)).Inc()
		}
		attempt++

		select {
		case <-ctx.Done():
			continue // loop head will observe ctx.Err() and stop
		case <-time.After(delay):
		}
	}

	return outcome
}

// backoffDelay implements delay(k) = base * 2^(k-1) * (1 + jitter),
// capped at MaxDelay: cenkalti/backoff's ExponentialBackOff computes
// the doubling curve itself via repeated NextBackOff() calls (its own
// RandomizationFactor disabled, since §4.6's +/-25% jitter is applied
// separately below, uniformly rather than via the library's normal
// distribution).
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.BaseDelay
	bo.MaxInterval = d.cfg.MaxDelay
	bo.Multiplier = 2.0
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var base time.Duration
	for i := 0; i <= attempt; i++ {
		base = bo.NextBackOff()
	}

	jitter := d.cfg.Jitter
	if jitter <= 0 {
		return base
	}
	factor := 1 + (rand.Float64()*2-1)*jitter
	delay := time.Duration(float64(base) * factor)
	if delay > d.cfg.MaxDelay {
		delay = d.cfg.MaxDelay
	}
	return delay
}

func (d *Dispatcher) recordAttempt(outcome executor.Outcome) {
	if d.metrics == nil {
		return
	}
	status := "failure"
	switch {
	case outcome.Success:
		status = "success"
	case outcome.Skipped:
		status = "skipped"
	}
	d.metrics.AttemptsTotal.WithLabelValues(status).Inc()
}
