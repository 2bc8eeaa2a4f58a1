package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"

	"github.com/netraven/engine/internal/domain"
)

// PostgresSink implements Sink against an external PostgreSQL database,
// for the Standard deployment profile. Schema management is external to
// this package (goose migrations run ahead of time); this type only
// performs reads and writes against the already-migrated tables.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an already-connected pool. The pool's lifecycle
// is owned by the caller; Close on PostgresSink does not close it.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) WriteConnectionLog(ctx context.Context, log domain.ConnectionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	var errorKind *string
	if log.ErrorKind != nil {
		v := string(*log.ErrorKind)
		errorKind = &v
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO connection_logs (id, job_run_id, device_id, timestamp, output_excerpt, bytes_captured, duration_millis, error_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.ID, log.JobRunID, log.DeviceID, log.Timestamp, log.OutputExcerpt, log.BytesCaptured, log.DurationMillis, errorKind,
	)
	if err != nil {
		return fmt.Errorf("telemetry: write connection log: %w", err)
	}
	return nil
}

func (s *PostgresSink) WriteJobLog(ctx context.Context, log domain.JobLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	var contextJSON []byte
	if log.Context != nil {
		var err error
		contextJSON, err = json.Marshal(log.Context)
		if err != nil {
			return fmt.Errorf("telemetry: marshal job log context: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_logs (id, job_run_id, device_id, timestamp, level, message, context)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		log.ID, log.JobRunID, log.DeviceID, log.Timestamp, string(log.Level), log.Message, contextJSON,
	)
	if err != nil {
		return fmt.Errorf("telemetry: write job log: %w", err)
	}
	return nil
}

func (s *PostgresSink) ListConnectionLogs(ctx context.Context, filter ConnectionLogFilter) (Page[domain.ConnectionLog], error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := 0
	if filter.Cursor != "" {
		parsed, err := strconv.Atoi(filter.Cursor)
		if err != nil {
			return Page[domain.ConnectionLog]{}, fmt.Errorf("telemetry: invalid cursor %q: %w", filter.Cursor, err)
		}
		offset = parsed
	}

	query := `SELECT id, job_run_id, device_id, timestamp, output_excerpt, bytes_captured, duration_millis, error_kind
		FROM connection_logs WHERE ($1 = '' OR job_run_id = $1) AND ($2 = '' OR device_id = $2)
		AND ($3::timestamptz IS NULL OR timestamp >= $3) AND ($4::timestamptz IS NULL OR timestamp <= $4)
		ORDER BY timestamp ASC, id ASC LIMIT $5 OFFSET $6`

	from, to := nullableTime(filter.From), nullableTime(filter.To)
	rows, err := s.pool.Query(ctx, query, filter.JobRunID, filter.DeviceID, from, to, limit+1, offset)
	if err != nil {
		return Page[domain.ConnectionLog]{}, fmt.Errorf("telemetry: list connection logs: %w", err)
	}
	defer rows.Close()

	var items []domain.ConnectionLog
	for rows.Next() {
		var l domain.ConnectionLog
		var errorKind *string
		if err := rows.Scan(&l.ID, &l.JobRunID, &l.DeviceID, &l.Timestamp, &l.OutputExcerpt, &l.BytesCaptured, &l.DurationMillis, &errorKind); err != nil {
			return Page[domain.ConnectionLog]{}, fmt.Errorf("telemetry: scan connection log: %w", err)
		}
		if errorKind != nil {
			kind := domain.ErrorKind(*errorKind)
			l.ErrorKind = &kind
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return Page[domain.ConnectionLog]{}, err
	}

	return finishPage(items, limit, offset), nil
}

func (s *PostgresSink) ListJobLogs(ctx context.Context, filter JobLogFilter) (Page[domain.JobLog], error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := 0
	if filter.Cursor != "" {
		parsed, err := strconv.Atoi(filter.Cursor)
		if err != nil {
			return Page[domain.JobLog]{}, fmt.Errorf("telemetry: invalid cursor %q: %w", filter.Cursor, err)
		}
		offset = parsed
	}

	query := `SELECT id, job_run_id, COALESCE(device_id, ''), timestamp, level, message, context
		FROM job_logs WHERE ($1 = '' OR job_run_id = $1) AND ($2 = '' OR device_id = $2)
		AND ($3 = '' OR level = $3)
		AND ($4::timestamptz IS NULL OR timestamp >= $4) AND ($5::timestamptz IS NULL OR timestamp <= $5)
		ORDER BY timestamp ASC, id ASC LIMIT $6 OFFSET $7`

	from, to := nullableTime(filter.From), nullableTime(filter.To)
	rows, err := s.pool.Query(ctx, query, filter.JobRunID, filter.DeviceID, string(filter.Level), from, to, limit+1, offset)
	if err != nil {
		return Page[domain.JobLog]{}, fmt.Errorf("telemetry: list job logs: %w", err)
	}
	defer rows.Close()

	var items []domain.JobLog
	for rows.Next() {
		var l domain.JobLog
		var contextJSON []byte
		if err := rows.Scan(&l.ID, &l.JobRunID, &l.DeviceID, &l.Timestamp, &l.Level, &l.Message, &contextJSON); err != nil {
			return Page[domain.JobLog]{}, fmt.Errorf("telemetry: scan job log: %w", err)
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &l.Context); err != nil {
				return Page[domain.JobLog]{}, fmt.Errorf("telemetry: unmarshal job log context: %w", err)
			}
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return Page[domain.JobLog]{}, err
	}

	return finishPage(items, limit, offset), nil
}

func (s *PostgresSink) Close() error { return nil }

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
