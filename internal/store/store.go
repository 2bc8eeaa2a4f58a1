// Package store provides the domain-table reads and writes the engine
// needs outside the append-only telemetry streams: Devices, Tags,
// Credentials, and Jobs (§3, §6 "Persisted state layout").
package store

import (
	"context"
	"time"

	"github.com/netraven/engine/internal/domain"
)

// Store is the aggregate read/write surface the Runner, Credential
// Resolver, and Scheduler need against the relational tables. A single
// interface (rather than one per entity) mirrors the Telemetry Sink's
// single-interface-per-backend shape and keeps wiring in cmd/ simple.
type Store interface {
	GetDevice(ctx context.Context, deviceID string) (domain.Device, error)
	ListDevicesByTags(ctx context.Context, tagIDs []string) ([]domain.Device, error)

	GetCredential(ctx context.Context, credentialID string) (domain.Credential, error)
	ListCredentialsByTags(ctx context.Context, tagIDs []string) ([]domain.Credential, error)
	UpdateCredentialStats(ctx context.Context, credentialID string, successRate float64, lastUsed time.Time) error

	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	ListEnabledJobs(ctx context.Context) ([]domain.Job, error)
	UpdateJobStatus(ctx context.Context, jobID string, status domain.JobRunStatus, lastRun time.Time) error

	CreateJobRun(ctx context.Context, run domain.JobRun) error
	CompleteJobRun(ctx context.Context, jobRunID string, status domain.JobRunStatus, endTime time.Time) error

	Close() error
}

// ErrNotFound is returned by single-entity lookups when no row matches.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }
