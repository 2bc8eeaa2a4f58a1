package runner_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/internal/runner"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/internal/telemetry"
	"github.com/netraven/engine/pkg/metrics"
)

type stubDispatcher struct {
	outcomes []executor.Outcome
}

func (s stubDispatcher) Dispatch(_ context.Context, devices []domain.Device, _ string) []executor.Outcome {
	if s.outcomes != nil {
		return s.outcomes
	}
	out := make([]executor.Outcome, len(devices))
	for i, d := range devices {
		out[i] = executor.Outcome{DeviceID: d.ID, Success: true}
	}
	return out
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newHarness(t *testing.T, d stubDispatcher) (*runner.Runner, *store.MemoryStore, *telemetry.MemorySink) {
	t.Helper()
	st := store.NewMemoryStore()
	sink := telemetry.NewMemorySink()
	m := metrics.NewRegistry("test_runner_" + t.Name())
	r := runner.New(st, nil, d, sink, testLogger(), m.Runner())
	return r, st, sink
}

func TestRunJobReturnsCompletedNoDevicesWhenTagSetEmpty(t *testing.T) {
	r, st, _ := newHarness(t, stubDispatcher{})
	st.PutJob(domain.Job{ID: "job-1", Name: "empty", TargetTagIDs: []string{"nonexistent"}, Enabled: true})

	result, err := r.RunJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunCompletedNoDevices, result.Status)
	assert.Empty(t, result.Outcomes)
}

func TestRunJobReturnsCompletedSuccessWhenAllDevicesSucceed(t *testing.T) {
	r, st, _ := newHarness(t, stubDispatcher{})
	st.PutJob(domain.Job{ID: "job-2", Name: "all-ok", TargetTagIDs: []string{"core"}, Enabled: true})
	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutDevice(domain.Device{ID: "dev-2", Hostname: "r2", Address: "10.0.0.2", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})

	result, err := r.RunJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunCompletedSuccess, result.Status)
	assert.Len(t, result.Outcomes, 2)

	job, err := st.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunCompletedSuccess, job.LastStatus)
	require.NotNil(t, job.LastRunAt)
}

func TestRunJobReturnsCompletedFailureWhenAllDevicesFail(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutJob(domain.Job{ID: "job-3", Name: "all-fail", TargetTagIDs: []string{"core"}, Enabled: true})
	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})

	d := stubDispatcher{outcomes: []executor.Outcome{{DeviceID: "dev-1", ErrorKind: domain.ErrConnectTimeout}}}
	sink := telemetry.NewMemorySink()
	m := metrics.NewRegistry("test_runner_" + t.Name())
	r := runner.New(st, nil, d, sink, testLogger(), m.Runner())

	result, err := r.RunJob(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunCompletedFailure, result.Status)
}

func TestRunJobReturnsPartialFailureWhenSomeDevicesFail(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutJob(domain.Job{ID: "job-4", Name: "mixed", TargetTagIDs: []string{"core"}, Enabled: true})
	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutDevice(domain.Device{ID: "dev-2", Hostname: "r2", Address: "10.0.0.2", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})

	d := stubDispatcher{outcomes: []executor.Outcome{
		{DeviceID: "dev-1", Success: true},
		{DeviceID: "dev-2", ErrorKind: domain.ErrAuthFailure},
	}}
	sink := telemetry.NewMemorySink()
	m := metrics.NewRegistry("test_runner_" + t.Name())
	r := runner.New(st, nil, d, sink, testLogger(), m.Runner())

	result, err := r.RunJob(context.Background(), "job-4")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunCompletedPartial, result.Status)
}

func TestRunJobUnknownJobReturnsError(t *testing.T) {
	r, _, _ := newHarness(t, stubDispatcher{})
	_, err := r.RunJob(context.Background(), "no-such-job")
	assert.Error(t, err)
}

func TestRunJobWritesJobLogsOnCompletion(t *testing.T) {
	r, st, sink := newHarness(t, stubDispatcher{})
	st.PutJob(domain.Job{ID: "job-5", Name: "logged", TargetTagIDs: []string{"core"}, Enabled: true})
	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})

	result, err := r.RunJob(context.Background(), "job-5")
	require.NoError(t, err)

	page, err := sink.ListJobLogs(context.Background(), telemetry.JobLogFilter{JobRunID: result.JobRunID})
	require.NoError(t, err)
	assert.NotEmpty(t, page.Items)
}
