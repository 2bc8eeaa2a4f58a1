package telemetry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/netraven/engine/internal/domain"
)

// SQLiteSink implements Sink on an embedded, WAL-mode sqlite database,
// for the Lite deployment profile.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSink opens (creating if necessary) the sqlite database at
// path and initializes its schema.
func NewSQLiteSink(ctx context.Context, path string, logger *slog.Logger) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("telemetry: sqlite path cannot be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("telemetry: create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: ping sqlite: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: enable foreign keys: %w", err)
	}

	s := &SQLiteSink{db: db, logger: logger}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS connection_logs (
	id TEXT PRIMARY KEY,
	job_run_id TEXT NOT NULL,
	device_id TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	output_excerpt TEXT NOT NULL,
	bytes_captured INTEGER NOT NULL,
	duration_millis INTEGER NOT NULL,
	error_kind TEXT
);
CREATE INDEX IF NOT EXISTS idx_connection_logs_run_ts ON connection_logs(job_run_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_connection_logs_device ON connection_logs(device_id);

CREATE TABLE IF NOT EXISTS job_logs (
	id TEXT PRIMARY KEY,
	job_run_id TEXT NOT NULL,
	device_id TEXT,
	timestamp INTEGER NOT NULL,
	level TEXT NOT NULL CHECK(level IN ('INFO','WARN','ERROR')),
	message TEXT NOT NULL,
	context TEXT
);
CREATE INDEX IF NOT EXISTS idx_job_logs_run_ts ON job_logs(job_run_id, timestamp);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("telemetry: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) WriteConnectionLog(ctx context.Context, log domain.ConnectionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	var errorKind *string
	if log.ErrorKind != nil {
		v := string(*log.ErrorKind)
		errorKind = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connection_logs (id, job_run_id, device_id, timestamp, output_excerpt, bytes_captured, duration_millis, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobRunID, log.DeviceID, log.Timestamp.UnixMilli(), log.OutputExcerpt, log.BytesCaptured, log.DurationMillis, errorKind,
	)
	if err != nil {
		return fmt.Errorf("telemetry: write connection log: %w", err)
	}
	return nil
}

func (s *SQLiteSink) WriteJobLog(ctx context.Context, log domain.JobLog) error {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_logs (id, job_run_id, device_id, timestamp, level, message, context)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobRunID, nullIfEmpty(log.DeviceID), log.Timestamp.UnixMilli(), log.Level, log.Message, nullIfEmptyBytes(contextJSON),
	)
	if err != nil {
		return fmt.Errorf("telemetry: write job log: %w", err)
	}
	return nil
}

func (s *SQLiteSink) ListConnectionLogs(ctx context.Context, filter ConnectionLogFilter) (Page[domain.ConnectionLog], error) {
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

	query := `SELECT id, job_run_id, device_id, timestamp, output_excerpt, bytes_captured, duration_millis, error_kind FROM connection_logs WHERE 1=1`
	var args []interface{}
	if filter.JobRunID != "" {
		query += " AND job_run_id = ?"
		args = append(args, filter.JobRunID)
	}
	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if !filter.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.From.UnixMilli())
	}
	if !filter.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.To.UnixMilli())
	}
	query += " ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page[domain.ConnectionLog]{}, fmt.Errorf("telemetry: list connection logs: %w", err)
	}
	defer rows.Close()

	var items []domain.ConnectionLog
	for rows.Next() {
		var l domain.ConnectionLog
		var tsMillis int64
		var errorKind sql.NullString
		if err := rows.Scan(&l.ID, &l.JobRunID, &l.DeviceID, &tsMillis, &l.OutputExcerpt, &l.BytesCaptured, &l.DurationMillis, &errorKind); err != nil {
			return Page[domain.ConnectionLog]{}, fmt.Errorf("telemetry: scan connection log: %w", err)
		}
		l.Timestamp = time.UnixMilli(tsMillis).UTC()
		if errorKind.Valid {
			kind := domain.ErrorKind(errorKind.String)
			l.ErrorKind = &kind
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return Page[domain.ConnectionLog]{}, err
	}

	return finishPage(items, limit, offset), nil
}

func (s *SQLiteSink) ListJobLogs(ctx context.Context, filter JobLogFilter) (Page[domain.JobLog], error) {
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

	query := `SELECT id, job_run_id, device_id, timestamp, level, message, context FROM job_logs WHERE 1=1`
	var args []interface{}
	if filter.JobRunID != "" {
		query += " AND job_run_id = ?"
		args = append(args, filter.JobRunID)
	}
	if filter.DeviceID != "" {
		query += " AND device_id = ?"
		args = append(args, filter.DeviceID)
	}
	if filter.Level != "" {
		query += " AND level = ?"
		args = append(args, string(filter.Level))
	}
	if !filter.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, filter.From.UnixMilli())
	}
	if !filter.To.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, filter.To.UnixMilli())
	}
	query += " ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, limit+1, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page[domain.JobLog]{}, fmt.Errorf("telemetry: list job logs: %w", err)
	}
	defer rows.Close()

	var items []domain.JobLog
	for rows.Next() {
		var l domain.JobLog
		var tsMillis int64
		var deviceID, contextJSON sql.NullString
		if err := rows.Scan(&l.ID, &l.JobRunID, &deviceID, &tsMillis, &l.Level, &l.Message, &contextJSON); err != nil {
			return Page[domain.JobLog]{}, fmt.Errorf("telemetry: scan job log: %w", err)
		}
		l.Timestamp = time.UnixMilli(tsMillis).UTC()
		l.DeviceID = deviceID.String
		if contextJSON.Valid && contextJSON.String != "" {
			if err := json.Unmarshal([]byte(contextJSON.String), &l.Context); err != nil {
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

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// finishPage trims the limit+1 lookahead row used to detect a next page
// and, if present, computes the next offset-cursor.
func finishPage[T any](items []T, limit, offset int) Page[T] {
	page := Page[T]{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = strconv.Itoa(offset + limit)
	}
	return page
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfEmptyBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
