// Package executor implements the per-device state machine of §4.5:
// READY -> CONNECTING -> CAPABILITY_PROBE -> RUNNING -> CAPTURING ->
// REDACTING -> COMMITTING -> TELEMETRY -> DONE, with any state able to
// fail into a terminal FAILED(kind) for the attempt. It composes the
// Device Driver, Capability Registry, circuit breaker, redactor,
// Configuration Repository, Telemetry Sink, and Credential Resolver.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/netraven/engine/internal/breaker"
	"github.com/netraven/engine/internal/capability"
	"github.com/netraven/engine/internal/classify"
	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/driver"
	"github.com/netraven/engine/internal/gitrepo"
	"github.com/netraven/engine/internal/redact"
	"github.com/netraven/engine/internal/telemetry"
	"github.com/netraven/engine/pkg/metrics"
)

const defaultConnectTimeout = 15 * time.Second
const defaultCommandTimeout = 30 * time.Second

// Outcome describes the terminal result of one device's single
// execution attempt, reported up to the Dispatcher (§4.6).
type Outcome struct {
	DeviceID     string
	Success      bool
	Skipped      bool // true when no candidate credential matched the device
	ErrorKind    domain.ErrorKind
	CommitID     string
	NoChange     bool
	CredentialID string
}

// Executor runs a single device through the capture pipeline.
type Executor struct {
	driver       driver.Driver
	capabilities *capability.Registry
	breakers     *breaker.Manager
	repo         *gitrepo.Repository
	sink         telemetry.Sink
	resolver     *credential.Resolver
	redactor     *redact.Redactor
	logger       *slog.Logger
	metrics      *metrics.ExecutorMetrics

	connectTimeout time.Duration
	commandTimeout time.Duration
}

// New builds an Executor from its collaborators. connectTimeout and
// commandTimeout of zero use the package defaults. commandTimeout backs
// every prelude command (enable, paging-disable) that has no
// per-command entry in the capability profile's CommandTimeouts.
func New(
	drv driver.Driver,
	capabilities *capability.Registry,
	breakers *breaker.Manager,
	repo *gitrepo.Repository,
	sink telemetry.Sink,
	resolver *credential.Resolver,
	redactor *redact.Redactor,
	logger *slog.Logger,
	m *metrics.ExecutorMetrics,
	connectTimeout time.Duration,
	commandTimeout time.Duration,
) *Executor {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	return &Executor{
		driver:         drv,
		capabilities:   capabilities,
		breakers:       breakers,
		repo:           repo,
		sink:           sink,
		resolver:       resolver,
		redactor:       redactor,
		logger:         logger,
		metrics:        m,
		connectTimeout: connectTimeout,
		commandTimeout: commandTimeout,
	}
}

// Run drives device through one capture attempt, iterating credential
// candidates on AUTH_FAILURE and aborting on any other classified error
// (§4.5 "Credential iteration"). jobRunID scopes telemetry and commit
// metadata.
func (e *Executor) Run(ctx context.Context, device domain.Device, candidates *credential.Candidates, jobRunID string) Outcome {
	start := time.Now()
	profile, known := e.capabilities.LookupForDevice(device.ID, device.DriverType)
	if !known {
		e.logger.Warn("unknown driver type, using generic capability profile", "device_id", device.ID, "driver_type", device.DriverType)
	}

	if candidates.Remaining() == 0 {
		e.logJobEvent(ctx, jobRunID, device.ID, domain.LogWarn, "no candidate credentials matched device tags", nil)
		return Outcome{DeviceID: device.ID, Skipped: true}
	}

	for {
		cred, ok := candidates.Next()
		if !ok {
			return e.finish(ctx, jobRunID, device, start, profile, Outcome{DeviceID: device.ID, ErrorKind: domain.ErrAuthFailure})
		}

		outcome := e.attempt(ctx, device, profile, cred, jobRunID)
		if outcome.Success || outcome.ErrorKind != domain.ErrAuthFailure {
			return e.finish(ctx, jobRunID, device, start, profile, outcome)
		}
		// AUTH_FAILURE: statistics already recorded by attempt; advance.
	}
}

func (e *Executor) finish(ctx context.Context, jobRunID string, device domain.Device, start time.Time, profile capability.Profile, outcome Outcome) Outcome {
	status := "failure"
	if outcome.Success {
		status = "success"
	} else if outcome.Skipped {
		status = "skipped"
	}
	if e.metrics != nil {
		e.metrics.AttemptDurationSeconds.WithLabelValues(device.DriverType, status).Observe(time.Since(start).Seconds())
		e.metrics.AttemptsTotal.WithLabelValues(device.DriverType, status).Inc()
		if !outcome.Success && !outcome.Skipped {
			e.metrics.ErrorsTotal.WithLabelValues(string(outcome.ErrorKind)).Inc()
		}
	}
	return outcome
}

// attempt runs the CONNECTING..DONE pipeline for a single credential.
func (e *Executor) attempt(ctx context.Context, device domain.Device, profile capability.Profile, cred domain.Credential, jobRunID string) Outcome {
	connStart := time.Now()

	var raw string
	var attemptErr error
	var connectPhase bool

	breakerErr := e.breakers.Execute(ctx, device.ID, func() error {
		sess, err := e.driver.Open(ctx, device.Address, device.Port, driver.Credential{Username: cred.Username, Secret: cred.Secret}, profile.PromptPattern, e.connectTimeout)
		if err != nil {
			attemptErr = err
			connectPhase = true
			return err
		}
		defer sess.Close()

		raw, attemptErr = e.runCaptureSequence(ctx, sess, profile)
		connectPhase = false
		return attemptErr
	})

	if breakerErr != nil {
		if breakerErr == breaker.ErrOpen {
			e.writeFailureTelemetry(ctx, jobRunID, device.ID, connStart, domain.ErrCircuitOpen, breakerErr)
			return Outcome{DeviceID: device.ID, ErrorKind: domain.ErrCircuitOpen, CredentialID: cred.ID}
		}
		var kind domain.ErrorKind
		if connectPhase {
			kind = classify.Classify(attemptErr, profile.ErrorPatterns)
		} else {
			kind = classify.CommandPatterns(attemptErr, profile.ErrorPatterns)
		}
		e.resolver.RecordOutcome(ctx, cred.ID, false, time.Now())
		e.writeFailureTelemetry(ctx, jobRunID, device.ID, connStart, kind, attemptErr)
		return Outcome{DeviceID: device.ID, ErrorKind: kind, CredentialID: cred.ID}
	}

	e.resolver.RecordOutcome(ctx, cred.ID, true, time.Now())

	result, err := e.repo.Commit(device.ID, raw, gitrepo.CommitMetadata{DeviceID: device.ID, JobRunID: jobRunID, Time: time.Now()})
	if err != nil {
		e.writeFailureTelemetry(ctx, jobRunID, device.ID, connStart, domain.ErrRepositoryFailure, err)
		return Outcome{DeviceID: device.ID, ErrorKind: domain.ErrRepositoryFailure, CredentialID: cred.ID}
	}
	if result.NoChange {
		if prior, err := e.repo.LatestCommit(device.ID); err == nil {
			result.CommitID = prior
		} else {
			e.logger.Warn("failed to look up prior commit", "device_id", device.ID, "error", err)
		}
	}

	redacted := e.redactor.RedactText(raw)
	e.writeSuccessTelemetry(ctx, jobRunID, device.ID, connStart, redacted, result)

	return Outcome{
		DeviceID:     device.ID,
		Success:      true,
		CommitID:     result.CommitID,
		NoChange:     result.NoChange,
		CredentialID: cred.ID,
	}
}

func (e *Executor) runCaptureSequence(ctx context.Context, sess driver.Session, profile capability.Profile) (string, error) {
	if profile.Features.RequiresEnable {
		for _, cmd := range profile.EnableModePrelude {
			if _, err := sess.Run(ctx, cmd, profile.TimeoutFor(cmd, e.commandTimeout)); err != nil {
				return "", err
			}
		}
	}
	if profile.Features.SupportsPagingControl {
		for _, cmd := range profile.PagingDisableCommands {
			if _, err := sess.Run(ctx, cmd, profile.TimeoutFor(cmd, e.commandTimeout)); err != nil {
				return "", err
			}
		}
	}

	out, err := sess.Run(ctx, profile.ShowRunningCommand, profile.TimeoutFor(profile.ShowRunningCommand, e.commandTimeout))
	if err != nil {
		return "", err
	}
	return out, nil
}

func (e *Executor) writeSuccessTelemetry(ctx context.Context, jobRunID, deviceID string, start time.Time, redactedExcerpt string, result gitrepo.Result) {
	entry := domain.ConnectionLog{
		JobRunID:       jobRunID,
		DeviceID:       deviceID,
		Timestamp:      time.Now().UTC(),
		OutputExcerpt:  redactedExcerpt,
		BytesCaptured:  len(redactedExcerpt),
		DurationMillis: time.Since(start).Milliseconds(),
	}
	if err := e.sink.WriteConnectionLog(ctx, entry); err != nil {
		e.logger.Error("failed to write connection log", "device_id", deviceID, "error", err)
	}

	msg := fmt.Sprintf("captured running-configuration, commit=%s", result.CommitID)
	if result.NoChange {
		msg = fmt.Sprintf("captured running-configuration, no change from prior commit=%s", result.CommitID)
	}
	e.logJobEvent(ctx, jobRunID, deviceID, domain.LogInfo, msg, map[string]interface{}{"no_change": result.NoChange})
}

func (e *Executor) writeFailureTelemetry(ctx context.Context, jobRunID, deviceID string, start time.Time, kind domain.ErrorKind, cause error) {
	entry := domain.ConnectionLog{
		JobRunID:       jobRunID,
		DeviceID:       deviceID,
		Timestamp:      time.Now().UTC(),
		DurationMillis: time.Since(start).Milliseconds(),
		ErrorKind:      &kind,
	}
	if err := e.sink.WriteConnectionLog(ctx, entry); err != nil {
		e.logger.Error("failed to write connection log", "device_id", deviceID, "error", err)
	}

	msg := fmt.Sprintf("attempt failed: %s", kind)
	if cause != nil {
		msg = fmt.Sprintf("attempt failed: %s: %v", kind, cause)
	}
	e.logJobEvent(ctx, jobRunID, deviceID, domain.LogError, msg, map[string]interface{}{"error_kind": string(kind)})
}

func (e *Executor) logJobEvent(ctx context.Context, jobRunID, deviceID string, level domain.LogLevel, message string, fields map[string]interface{}) {
	entry := domain.JobLog{
		JobRunID:  jobRunID,
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Context:   fields,
	}
	if err := e.sink.WriteJobLog(ctx, entry); err != nil {
		e.logger.Error("failed to write job log", "device_id", deviceID, "error", err)
	}
}
