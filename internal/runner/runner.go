// Package runner implements the Runner job entry point of §4.7: load a
// job's device set, invoke the dispatcher (which resolves credentials
// per device), compute a terminal status, and write final telemetry.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/dispatcher"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/internal/telemetry"
	"github.com/netraven/engine/pkg/metrics"
)

// Dispatcher is the subset of dispatcher.Dispatcher the Runner needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, devices []domain.Device, jobRunID string) []executor.Outcome
}

var _ Dispatcher = (*dispatcher.Dispatcher)(nil)

// Result is the outcome of one run_job invocation (§6 "Runner entry
// point").
type Result struct {
	JobRunID string
	Status   domain.JobRunStatus
	Outcomes []executor.Outcome
}

// Runner drives a single job from creation of its Job Run record through
// terminal status and final telemetry.
type Runner struct {
	store      store.Store
	resolver   *credential.Resolver
	dispatcher Dispatcher
	sink       telemetry.Sink
	logger     *slog.Logger
	metrics    *metrics.RunnerMetrics
}

// New builds a Runner from its collaborators.
func New(st store.Store, resolver *credential.Resolver, d Dispatcher, sink telemetry.Sink, logger *slog.Logger, m *metrics.RunnerMetrics) *Runner {
	return &Runner{store: st, resolver: resolver, dispatcher: d, sink: sink, logger: logger, metrics: m}
}

// RunJob implements §4.7's seven steps for the given job id, generating
// a fresh job-run id. It blocks until every device outcome is in.
func (r *Runner) RunJob(ctx context.Context, jobID string) (Result, error) {
	return r.RunJobWithID(ctx, jobID, uuid.NewString())
}

// RunJobWithID runs §4.7 for a caller-supplied job-run id. The Scheduler
// uses this to generate the id synchronously (§6 "run_now(job-id) →
// job-run-id") and launch the remainder of the run in the background,
// without the Runner itself needing an async entry point.
func (r *Runner) RunJobWithID(ctx context.Context, jobID, jobRunID string) (Result, error) {
	start := time.Now()

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return Result{}, fmt.Errorf("runner: load job %s: %w", jobID, err)
	}

	run := domain.JobRun{ID: jobRunID, JobID: jobID, StartTime: start, Status: domain.JobRunRunning}
	if err := r.store.CreateJobRun(ctx, run); err != nil {
		return Result{}, fmt.Errorf("runner: create job run for job %s: %w", jobID, err)
	}

	devices, err := r.store.ListDevicesByTags(ctx, job.TargetTagIDs)
	if err != nil {
		return r.fail(ctx, job, jobRunID, start, fmt.Errorf("runner: resolve device set: %w", err))
	}

	if len(devices) == 0 {
		r.logJobEvent(ctx, jobRunID, domain.LogInfo, "no devices matched job target tags")
		return r.finish(ctx, job, jobRunID, start, domain.JobRunCompletedNoDevices, nil)
	}

	if r.metrics != nil {
		r.metrics.DevicesTargeted.Observe(float64(len(devices)))
	}

	outcomes := r.dispatcher.Dispatch(ctx, devices, jobRunID)

	status := terminalStatus(outcomes)
	return r.finish(ctx, job, jobRunID, start, status, outcomes)
}

// terminalStatus implements §4.7 step 6: all success -> COMPLETED_SUCCESS;
// all fail -> COMPLETED_FAILURE; mixed -> COMPLETED_PARTIAL_FAILURE.
// Skipped devices (no matching credential) count as failures for this
// rollup since no configuration was captured for them.
func terminalStatus(outcomes []executor.Outcome) domain.JobRunStatus {
	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	switch {
	case succeeded == len(outcomes):
		return domain.JobRunCompletedSuccess
	case succeeded == 0:
		return domain.JobRunCompletedFailure
	default:
		return domain.JobRunCompletedPartial
	}
}

func (r *Runner) fail(ctx context.Context, job domain.Job, jobRunID string, start time.Time, cause error) (Result, error) {
	r.logger.Error("runner: job run failed", "job_id", job.ID, "job_run_id", jobRunID, "error", cause)
	r.logJobEvent(ctx, jobRunID, domain.LogError, fmt.Sprintf("job run failed: %v", cause))
	res, _ := r.finish(ctx, job, jobRunID, start, domain.JobRunFailed, nil)
	return res, nil
}

func (r *Runner) finish(ctx context.Context, job domain.Job, jobRunID string, start time.Time, status domain.JobRunStatus, outcomes []executor.Outcome) (Result, error) {
	end := time.Now()

	if err := r.store.CompleteJobRun(ctx, jobRunID, status, end); err != nil {
		r.logger.Error("runner: failed to record job run completion", "job_run_id", jobRunID, "error", err)
	}
	if err := r.store.UpdateJobStatus(ctx, job.ID, status, end); err != nil {
		r.logger.Error("runner: failed to update job last-status", "job_id", job.ID, "error", err)
	}

	r.logJobEvent(ctx, jobRunID, domain.LogInfo, fmt.Sprintf("job run completed: status=%s devices=%d", status, len(outcomes)))

	if r.metrics != nil {
		r.metrics.JobRunsTotal.WithLabelValues(string(status)).Inc()
		r.metrics.JobRunDurationSeconds.WithLabelValues(string(status)).Observe(end.Sub(start).Seconds())
	}

	return Result{JobRunID: jobRunID, Status: status, Outcomes: outcomes}, nil
}

func (r *Runner) logJobEvent(ctx context.Context, jobRunID string, level domain.LogLevel, message string) {
	entry := domain.JobLog{
		JobRunID:  jobRunID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
	}
	if err := r.sink.WriteJobLog(ctx, entry); err != nil {
		r.logger.Error("runner: failed to write job log", "job_run_id", jobRunID, "error", err)
	}
}
