package dispatcher_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/dispatcher"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/pkg/metrics"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, deviceID string) (*credential.Candidates, error) {
	return credential.NewCandidates([]domain.Credential{{ID: "cred-" + deviceID, Username: "admin"}}), nil
}

type scriptedExecutor struct {
	mu    sync.Mutex
	calls map[string]int
	// script maps deviceID to a function producing the outcome for the
	// Nth call (0-indexed) against that device.
	script func(deviceID string, call int) executor.Outcome
}

func newScriptedExecutor(script func(deviceID string, call int) executor.Outcome) *scriptedExecutor {
	return &scriptedExecutor{calls: make(map[string]int), script: script}
}

func (s *scriptedExecutor) Run(_ context.Context, device domain.Device, _ *credential.Candidates, _ string) executor.Outcome {
	s.mu.Lock()
	call := s.calls[device.ID]
	s.calls[device.ID] = call + 1
	s.mu.Unlock()
	return s.script(device.ID, call)
}

func (s *scriptedExecutor) callCount(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[deviceID]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devices(ids ...string) []domain.Device {
	out := make([]domain.Device, len(ids))
	for i, id := range ids {
		out[i] = domain.Device{ID: id}
	}
	return out
}

func fastConfig() dispatcher.Config {
	cfg := dispatcher.DefaultConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = 0
	return cfg
}

func TestDispatchReturnsOneOutcomePerDevice(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		return executor.Outcome{DeviceID: deviceID, Success: true}
	})
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(fastConfig(), stubResolver{}, exec, testLogger(), m.Dispatcher())

	outcomes := d.Dispatch(context.Background(), devices("a", "b", "c"), "run-1")
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.True(t, o.Success)
	}
}

func TestDispatchRetriesRetriableFailureUpToMaxRetries(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		if call < 2 {
			return executor.Outcome{DeviceID: deviceID, ErrorKind: domain.ErrConnectTimeout}
		}
		return executor.Outcome{DeviceID: deviceID, Success: true}
	})
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(fastConfig(), stubResolver{}, exec, testLogger(), m.Dispatcher())

	outcomes := d.Dispatch(context.Background(), devices("dev-1"), "run-2")
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, 3, exec.callCount("dev-1")) // initial + 2 retries
}

func TestDispatchDoesNotRetryNonRetriableFailure(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		return executor.Outcome{DeviceID: deviceID, ErrorKind: domain.ErrAuthFailure}
	})
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(fastConfig(), stubResolver{}, exec, testLogger(), m.Dispatcher())

	outcomes := d.Dispatch(context.Background(), devices("dev-1"), "run-3")
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, domain.ErrAuthFailure, outcomes[0].ErrorKind)
	assert.Equal(t, 1, exec.callCount("dev-1"))
}

func TestDispatchStopsRetryingAfterMaxRetriesExhausted(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		return executor.Outcome{DeviceID: deviceID, ErrorKind: domain.ErrConnectTimeout}
	})
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(fastConfig(), stubResolver{}, exec, testLogger(), m.Dispatcher())

	outcomes := d.Dispatch(context.Background(), devices("dev-1"), "run-4")
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, domain.ErrConnectTimeout, outcomes[0].ErrorKind)
	assert.Equal(t, 3, exec.callCount("dev-1")) // initial + 2 retries, all fail
}

func TestDispatchRespectsWorkerPoolCeiling(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		cur := atomic.AddInt32(&concurrent, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if cur <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&concurrent, -1)
		return executor.Outcome{DeviceID: deviceID, Success: true}
	})

	cfg := fastConfig()
	cfg.Workers = 2
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(cfg, stubResolver{}, exec, testLogger(), m.Dispatcher())

	ids := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		ids = append(ids, string(rune('a'+i)))
	}
	outcomes := d.Dispatch(context.Background(), devices(ids...), "run-5")
	require.Len(t, outcomes, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(2))
}

func TestDispatchSubmissionPacingLimitsStartRate(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		return executor.Outcome{DeviceID: deviceID, Success: true}
	})

	cfg := fastConfig()
	cfg.Workers = 4
	cfg.SubmissionsPerSecond = 100 // one attempt every 10ms
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(cfg, stubResolver{}, exec, testLogger(), m.Dispatcher())

	start := time.Now()
	outcomes := d.Dispatch(context.Background(), devices("a", "b", "c", "d", "e"), "run-7")
	elapsed := time.Since(start)

	require.Len(t, outcomes, 5)
	// 5 attempts paced at 100/s cannot complete in under ~40ms even with
	// 4 idle workers ready to go.
	assert.GreaterOrEqual(t, elapsed, 35*time.Millisecond)
}

func TestDispatchRecoversPanicAsUnknownFailure(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		if deviceID == "dev-panics" {
			panic("driver exploded")
		}
		return executor.Outcome{DeviceID: deviceID, Success: true}
	})
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(fastConfig(), stubResolver{}, exec, testLogger(), m.Dispatcher())

	outcomes := d.Dispatch(context.Background(), devices("dev-panics", "dev-ok"), "run-8")
	require.Len(t, outcomes, 2)

	byDevice := make(map[string]executor.Outcome, 2)
	for _, o := range outcomes {
		byDevice[o.DeviceID] = o
	}
	assert.Equal(t, domain.ErrUnknown, byDevice["dev-panics"].ErrorKind)
	assert.False(t, byDevice["dev-panics"].Success)
	assert.True(t, byDevice["dev-ok"].Success)
}

func TestDispatchStopsStartingNewAttemptsAfterCancellation(t *testing.T) {
	exec := newScriptedExecutor(func(deviceID string, call int) executor.Outcome {
		time.Sleep(2 * time.Millisecond)
		return executor.Outcome{DeviceID: deviceID, ErrorKind: domain.ErrConnectTimeout}
	})
	cfg := fastConfig()
	cfg.Workers = 1
	m := metrics.NewRegistry("test_dispatch_" + t.Name())
	d := dispatcher.New(cfg, stubResolver{}, exec, testLogger(), m.Dispatcher())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := d.Dispatch(ctx, devices("dev-1", "dev-2"), "run-6")
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, domain.ErrCancelled, o.ErrorKind)
	}
}
