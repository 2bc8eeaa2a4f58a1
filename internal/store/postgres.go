package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/netraven/engine/internal/domain"
)

// PostgresStore implements Store against an external PostgreSQL
// database, for the Standard deployment profile. Schema is managed by
// goose migrations ahead of time.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool. The pool's lifecycle
// is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetDevice(ctx context.Context, deviceID string) (domain.Device, error) {
	var d domain.Device
	var tagIDs []string
	err := s.pool.QueryRow(ctx, `SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices WHERE id = $1`, deviceID).
		Scan(&d.ID, &d.Hostname, &d.Address, &d.Port, &d.DriverType, &tagIDs, &d.PreResolvedCredentialID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Device{}, ErrNotFound
		}
		return domain.Device{}, fmt.Errorf("store: get device: %w", err)
	}
	d.TagIDs = tagIDs
	return d, nil
}

func (s *PostgresStore) ListDevicesByTags(ctx context.Context, tagIDs []string) ([]domain.Device, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices WHERE tag_ids && $1`, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	defer rows.Close()

	var result []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.Hostname, &d.Address, &d.Port, &d.DriverType, &d.TagIDs, &d.PreResolvedCredentialID); err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (s *PostgresStore) GetCredential(ctx context.Context, credentialID string) (domain.Credential, error) {
	var c domain.Credential
	err := s.pool.QueryRow(ctx, `SELECT id, username, secret, priority, tag_ids, success_rate, last_used FROM credentials WHERE id = $1`, credentialID).
		Scan(&c.ID, &c.Username, &c.Secret, &c.Priority, &c.TagIDs, &c.SuccessRate, &c.LastUsed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Credential{}, ErrNotFound
		}
		return domain.Credential{}, fmt.Errorf("store: get credential: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCredentialsByTags(ctx context.Context, tagIDs []string) ([]domain.Credential, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, secret, priority, tag_ids, success_rate, last_used FROM credentials WHERE tag_ids && $1`, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}
	defer rows.Close()

	var result []domain.Credential
	for rows.Next() {
		var c domain.Credential
		if err := rows.Scan(&c.ID, &c.Username, &c.Secret, &c.Priority, &c.TagIDs, &c.SuccessRate, &c.LastUsed); err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateCredentialStats(ctx context.Context, credentialID string, successRate float64, lastUsed time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE credentials SET success_rate = $1, last_used = $2 WHERE id = $3`, successRate, lastUsed, credentialID)
	if err != nil {
		return fmt.Errorf("store: update credential stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	var j domain.Job
	var lastStatus *string
	err := s.pool.QueryRow(ctx, `SELECT id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, once_at, enabled, last_status, last_run_at FROM jobs WHERE id = $1`, jobID).
		Scan(&j.ID, &j.Name, &j.TargetTagIDs, &j.ScheduleKind, &j.IntervalSecs, &j.CronExpr, &j.OnceAt, &j.Enabled, &lastStatus, &j.LastRunAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("store: get job: %w", err)
	}
	if lastStatus != nil {
		j.LastStatus = domain.JobRunStatus(*lastStatus)
	}
	return j, nil
}

func (s *PostgresStore) ListEnabledJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, once_at, enabled, last_status, last_run_at FROM jobs WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled jobs: %w", err)
	}
	defer rows.Close()

	var result []domain.Job
	for rows.Next() {
		var j domain.Job
		var lastStatus *string
		if err := rows.Scan(&j.ID, &j.Name, &j.TargetTagIDs, &j.ScheduleKind, &j.IntervalSecs, &j.CronExpr, &j.OnceAt, &j.Enabled, &lastStatus, &j.LastRunAt); err != nil {
			return nil, fmt.Errorf("store: scan job: %w", err)
		}
		if lastStatus != nil {
			j.LastStatus = domain.JobRunStatus(*lastStatus)
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobRunStatus, lastRun time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE jobs SET last_status = $1, last_run_at = $2 WHERE id = $3`, string(status), lastRun, jobID)
	if err != nil {
		return fmt.Errorf("store: update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateJobRun(ctx context.Context, run domain.JobRun) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO job_runs (id, job_id, start_time, status) VALUES ($1, $2, $3, $4)`,
		run.ID, run.JobID, run.StartTime, string(run.Status))
	if err != nil {
		return fmt.Errorf("store: create job run: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteJobRun(ctx context.Context, jobRunID string, status domain.JobRunStatus, endTime time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE job_runs SET status = $1, end_time = $2 WHERE id = $3`, string(status), endTime, jobRunID)
	if err != nil {
		return fmt.Errorf("store: complete job run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }
