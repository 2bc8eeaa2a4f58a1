// Package scheduler implements the Scheduler component of §4.8: owns
// the set of enabled jobs, computes each one's next firing time across
// the three schedule kinds (interval, cron, once), and exposes the
// register/enable/disable/run-now/cancel/list-schedules control surface
// of §6. It never waits for a job run to complete before scheduling the
// next firing.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/runner"
)

// minIntervalSeconds enforces §4.8's "N >= 60" floor on interval jobs.
const minIntervalSeconds = 60

// defaultPollInterval is how often the background loop checks entries
// for a due firing. One second is fine grain enough for interval/cron
// jobs measured in minutes without busy-looping.
const defaultPollInterval = time.Second

// State is a schedule entry's position in the §4.8 state machine:
// REGISTERED -> ACTIVE <-> PAUSED, terminal REMOVED.
type State string

const (
	StateRegistered State = "REGISTERED"
	StateActive     State = "ACTIVE"
	StatePaused     State = "PAUSED"
	StateRemoved    State = "REMOVED"
)

// Runner is the subset of runner.Runner the Scheduler needs, narrowed
// for testability.
type Runner interface {
	RunJobWithID(ctx context.Context, jobID, jobRunID string) (runner.Result, error)
}

// Info is one row of ListSchedules' output (§6 list_schedules).
type Info struct {
	JobID    string
	NextFire time.Time
	State    State
}

type entry struct {
	job          domain.Job
	state        State
	nextFire     time.Time
	cronSchedule cron.Schedule
	firedOnce    bool // "once" jobs removed after their single firing
}

// Scheduler owns the live set of schedule entries and a background loop
// that fires due entries without blocking on their completion.
type Scheduler struct {
	runner Runner
	logger *slog.Logger

	pollInterval time.Duration

	mu      sync.RWMutex
	entries map[string]*entry

	runsMu     sync.Mutex
	activeRuns map[string]context.CancelFunc

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New builds a Scheduler. It does not start the background loop; call
// Start for that.
func New(r Runner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:       r,
		logger:       logger,
		pollInterval: defaultPollInterval,
		entries:      make(map[string]*entry),
		activeRuns:   make(map[string]context.CancelFunc),
	}
}

// Register adds job to the active schedule set, computing its first
// firing time per §4.8. Re-registering an existing job id replaces its
// entry and recomputes the firing time from now.
func (s *Scheduler) Register(job domain.Job) error {
	next, cs, err := firstFire(job)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[job.ID] = &entry{
		job:          job,
		state:        StateActive,
		nextFire:     next,
		cronSchedule: cs,
	}
	return nil
}

// Deregister removes job-id from the active set entirely (terminal
// REMOVED). A deregistered job can be reintroduced only via Register.
func (s *Scheduler) Deregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, jobID)
}

// Enable transitions a PAUSED entry back to ACTIVE. No-op if already
// active; returns an error if the job isn't registered.
func (s *Scheduler) Enable(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobID]
	if !ok {
		return fmt.Errorf("scheduler: job %s is not registered", jobID)
	}
	if e.state == StatePaused {
		e.state = StateActive
	}
	return nil
}

// Disable transitions an ACTIVE entry to PAUSED. Paused entries are
// skipped by the firing loop but keep their computed next-fire time.
func (s *Scheduler) Disable(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[jobID]
	if !ok {
		return fmt.Errorf("scheduler: job %s is not registered", jobID)
	}
	if e.state == StateActive {
		e.state = StatePaused
	}
	return nil
}

// RunNow bypasses the schedule and submits a run immediately (§6
// run_now). It generates the job-run id synchronously and returns it
// before the run completes; the run itself proceeds in the background
// and is cancellable via CancelRun.
func (s *Scheduler) RunNow(jobID string) (string, error) {
	jobRunID := uuid.NewString()
	s.submit(context.Background(), jobID, jobRunID)
	return jobRunID, nil
}

// CancelRun cancels an in-flight run by job-run id (§6 cancel_run). The
// in-flight executor finishes its current attempt (bounded by command
// timeout) before the cancellation takes effect, per §5.
func (s *Scheduler) CancelRun(jobRunID string) error {
	s.runsMu.Lock()
	cancel, ok := s.activeRuns[jobRunID]
	s.runsMu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no in-flight run %s", jobRunID)
	}
	cancel()
	return nil
}

// ListSchedules reports every registered entry's next fire and state
// (§6 list_schedules).
func (s *Scheduler) ListSchedules() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Info, 0, len(s.entries))
	for jobID, e := range s.entries {
		out = append(out, Info{JobID: jobID, NextFire: e.nextFire, State: e.state})
	}
	return out
}

// Start launches the background firing loop. Missed fires accumulated
// while the process was down are never replayed: Register always
// computes the next fire from the current time, so a restart simply
// resumes scheduling forward (§4.8).
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

// Stop cancels the firing loop and every in-flight run, then waits for
// the loop goroutine and those runs to exit or timeout elapses (§5 "Scheduler shutdown
// cancels all runs and then awaits their completion with a grace
// timeout").
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	if !s.started {
		s.lifecycleMu.Unlock()
		return nil
	}
	s.cancel()
	s.lifecycleMu.Unlock()

	s.runsMu.Lock()
	for _, cancel := range s.activeRuns {
		cancel()
	}
	s.runsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: shutdown timed out after %s", timeout)
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.entries {
		if e.state == StateActive && !e.nextFire.After(now) {
			due = append(due, e)
		}
	}
	for _, e := range due {
		e.advance(now)
	}
	s.mu.Unlock()

	for _, e := range due {
		jobID := e.job.ID
		jobRunID := uuid.NewString()
		s.submit(ctx, jobID, jobRunID)

		if e.job.ScheduleKind == domain.ScheduleOnce {
			s.Deregister(jobID)
		}
	}
}

// advance recomputes the entry's next fire after it has just fired.
func (e *entry) advance(now time.Time) {
	switch e.job.ScheduleKind {
	case domain.ScheduleCron:
		e.nextFire = e.cronSchedule.Next(now)
	case domain.ScheduleInterval:
		e.nextFire = now.Add(time.Duration(e.job.IntervalSecs) * time.Second)
	case domain.ScheduleOnce:
		e.state = StateRemoved
	}
}

// submit launches a job run in the background, tracked by job-run id so
// CancelRun can reach it, and does not wait for completion before
// returning (§4.8).
func (s *Scheduler) submit(ctx context.Context, jobID, jobRunID string) {
	runCtx, cancel := context.WithCancel(ctx)

	s.runsMu.Lock()
	s.activeRuns[jobRunID] = cancel
	s.runsMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.runsMu.Lock()
			delete(s.activeRuns, jobRunID)
			s.runsMu.Unlock()
			cancel()
		}()

		if _, err := s.runner.RunJobWithID(runCtx, jobID, jobRunID); err != nil {
			s.logger.Error("scheduler: job run invocation failed", "job_id", jobID, "job_run_id", jobRunID, "error", err)
		}
	}()
}

// firstFire computes a job's initial next-fire time and, for cron
// jobs, its parsed cron.Schedule for subsequent recomputation.
func firstFire(job domain.Job) (time.Time, cron.Schedule, error) {
	now := time.Now().UTC()

	switch job.ScheduleKind {
	case domain.ScheduleInterval:
		if job.IntervalSecs < minIntervalSeconds {
			return time.Time{}, nil, fmt.Errorf("scheduler: interval job %s: interval_seconds must be >= %d, got %d", job.ID, minIntervalSeconds, job.IntervalSecs)
		}
		return now.Add(time.Duration(job.IntervalSecs) * time.Second), nil, nil

	case domain.ScheduleCron:
		cs, err := cron.ParseStandard(job.CronExpr)
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("scheduler: cron job %s: invalid cron expression %q: %w", job.ID, job.CronExpr, err)
		}
		return cs.Next(now), cs, nil

	case domain.ScheduleOnce:
		if job.OnceAt == nil {
			return time.Time{}, nil, fmt.Errorf("scheduler: once job %s: once_at is required", job.ID)
		}
		return *job.OnceAt, nil, nil

	default:
		return time.Time{}, nil, fmt.Errorf("scheduler: job %s: unknown schedule kind %q", job.ID, job.ScheduleKind)
	}
}
