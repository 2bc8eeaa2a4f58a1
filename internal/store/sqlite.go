package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/netraven/engine/internal/domain"
)

// SQLiteStore implements Store against an embedded sqlite database, for
// the Lite deployment profile. It uses its own database file, placed
// beside the Telemetry Sink's sqlite file (see domainStorePath).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the sqlite database at
// path and initializes the domain-table schema.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: sqlite path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(10)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	s := newSQLiteStoreFromDB(db)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("domain store initialized", "backend", "sqlite", "path", path)
	return s, nil
}

// newSQLiteStoreFromDB wraps an already-open *sql.DB, letting tests
// exercise the query/scan logic below against a mocked driver instead
// of a real sqlite file.
func newSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	hostname TEXT NOT NULL,
	address TEXT NOT NULL,
	port INTEGER NOT NULL,
	driver_type TEXT NOT NULL,
	tag_ids TEXT NOT NULL,
	pre_resolved_credential_id TEXT
);

CREATE TABLE IF NOT EXISTS credentials (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	secret TEXT NOT NULL,
	priority INTEGER NOT NULL,
	tag_ids TEXT NOT NULL,
	success_rate REAL NOT NULL DEFAULT 0,
	last_used INTEGER
);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	target_tag_ids TEXT NOT NULL,
	schedule_kind TEXT NOT NULL,
	interval_seconds INTEGER,
	cron_expr TEXT,
	once_at INTEGER,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_status TEXT,
	last_run_at INTEGER
);

CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_runs_job ON job_runs(job_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (domain.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices WHERE id = ?`, deviceID)
	var d domain.Device
	var tagIDs string
	var preResolved sql.NullString
	if err := row.Scan(&d.ID, &d.Hostname, &d.Address, &d.Port, &d.DriverType, &tagIDs, &preResolved); err != nil {
		if err == sql.ErrNoRows {
			return domain.Device{}, ErrNotFound
		}
		return domain.Device{}, fmt.Errorf("store: get device: %w", err)
	}
	d.TagIDs = splitTags(tagIDs)
	if preResolved.Valid {
		d.PreResolvedCredentialID = &preResolved.String
	}
	return d, nil
}

func (s *SQLiteStore) ListDevicesByTags(ctx context.Context, tagIDs []string) ([]domain.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices`)
	if err != nil {
		return nil, fmt.Errorf("store: list devices: %w", err)
	}
	defer rows.Close()

	want := toSet(tagIDs)
	var result []domain.Device
	for rows.Next() {
		var d domain.Device
		var tagCSV string
		var preResolved sql.NullString
		if err := rows.Scan(&d.ID, &d.Hostname, &d.Address, &d.Port, &d.DriverType, &tagCSV, &preResolved); err != nil {
			return nil, fmt.Errorf("store: scan device: %w", err)
		}
		d.TagIDs = splitTags(tagCSV)
		if preResolved.Valid {
			d.PreResolvedCredentialID = &preResolved.String
		}
		if intersects(d.TagIDs, want) {
			result = append(result, d)
		}
	}
	return result, rows.Err()
}

func (s *SQLiteStore) GetCredential(ctx context.Context, credentialID string) (domain.Credential, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username, secret, priority, tag_ids, success_rate, last_used FROM credentials WHERE id = ?`, credentialID)
	var c domain.Credential
	var tagCSV string
	var lastUsed sql.NullInt64
	if err := row.Scan(&c.ID, &c.Username, &c.Secret, &c.Priority, &tagCSV, &c.SuccessRate, &lastUsed); err != nil {
		if err == sql.ErrNoRows {
			return domain.Credential{}, ErrNotFound
		}
		return domain.Credential{}, fmt.Errorf("store: get credential: %w", err)
	}
	c.TagIDs = splitTags(tagCSV)
	if lastUsed.Valid {
		t := time.UnixMilli(lastUsed.Int64).UTC()
		c.LastUsed = &t
	}
	return c, nil
}

func (s *SQLiteStore) ListCredentialsByTags(ctx context.Context, tagIDs []string) ([]domain.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, username, secret, priority, tag_ids, success_rate, last_used FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("store: list credentials: %w", err)
	}
	defer rows.Close()

	want := toSet(tagIDs)
	var result []domain.Credential
	for rows.Next() {
		var c domain.Credential
		var tagCSV string
		var lastUsed sql.NullInt64
		if err := rows.Scan(&c.ID, &c.Username, &c.Secret, &c.Priority, &tagCSV, &c.SuccessRate, &lastUsed); err != nil {
			return nil, fmt.Errorf("store: scan credential: %w", err)
		}
		c.TagIDs = splitTags(tagCSV)
		if lastUsed.Valid {
			t := time.UnixMilli(lastUsed.Int64).UTC()
			c.LastUsed = &t
		}
		if intersects(c.TagIDs, want) {
			result = append(result, c)
		}
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateCredentialStats(ctx context.Context, credentialID string, successRate float64, lastUsed time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE credentials SET success_rate = ?, last_used = ? WHERE id = ?`,
		successRate, lastUsed.UnixMilli(), credentialID)
	if err != nil {
		return fmt.Errorf("store: update credential stats: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, once_at, enabled, last_status, last_run_at FROM jobs WHERE id = ?`, jobID)
	return scanJob(row)
}

func (s *SQLiteStore) ListEnabledJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, once_at, enabled, last_status, last_run_at FROM jobs WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled jobs: %w", err)
	}
	defer rows.Close()

	var result []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobRunStatus, lastRun time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET last_status = ?, last_run_at = ? WHERE id = ?`, string(status), lastRun.UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("store: update job status: %w", err)
	}
	return requireRowsAffected(res)
}

func (s *SQLiteStore) CreateJobRun(ctx context.Context, run domain.JobRun) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO job_runs (id, job_id, start_time, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.JobID, run.StartTime.UnixMilli(), string(run.Status))
	if err != nil {
		return fmt.Errorf("store: create job run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompleteJobRun(ctx context.Context, jobRunID string, status domain.JobRunStatus, endTime time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE job_runs SET status = ?, end_time = ? WHERE id = ?`, string(status), endTime.UnixMilli(), jobRunID)
	if err != nil {
		return fmt.Errorf("store: complete job run: %w", err)
	}
	return requireRowsAffected(res)
}

// InsertDevice and InsertCredential are used by the (external, out of
// scope) device/credential management surface and by tests to seed
// fixtures; the engine itself never calls them (§3: devices and
// credentials are created externally).
func (s *SQLiteStore) InsertDevice(ctx context.Context, d domain.Device) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO devices (id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Hostname, d.Address, d.Port, d.DriverType, joinTags(d.TagIDs), d.PreResolvedCredentialID)
	if err != nil {
		return fmt.Errorf("store: insert device: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertCredential(ctx context.Context, c domain.Credential) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO credentials (id, username, secret, priority, tag_ids, success_rate) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Username, c.Secret, c.Priority, joinTags(c.TagIDs), c.SuccessRate)
	if err != nil {
		return fmt.Errorf("store: insert credential: %w", err)
	}
	return nil
}

func (s *SQLiteStore) InsertJob(ctx context.Context, j domain.Job) error {
	enabled := 0
	if j.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, enabled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, joinTags(j.TargetTagIDs), string(j.ScheduleKind), j.IntervalSecs, j.CronExpr, enabled)
	if err != nil {
		return fmt.Errorf("store: insert job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	var j domain.Job
	var targetTagCSV string
	var intervalSecs sql.NullInt64
	var cronExpr sql.NullString
	var onceAt sql.NullInt64
	var enabled int
	var lastStatus sql.NullString
	var lastRunAt sql.NullInt64

	if err := row.Scan(&j.ID, &j.Name, &targetTagCSV, &j.ScheduleKind, &intervalSecs, &cronExpr, &onceAt, &enabled, &lastStatus, &lastRunAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("store: scan job: %w", err)
	}

	j.TargetTagIDs = splitTags(targetTagCSV)
	j.Enabled = enabled != 0
	if intervalSecs.Valid {
		j.IntervalSecs = int(intervalSecs.Int64)
	}
	if cronExpr.Valid {
		j.CronExpr = cronExpr.String
	}
	if onceAt.Valid {
		t := time.UnixMilli(onceAt.Int64).UTC()
		j.OnceAt = &t
	}
	if lastStatus.Valid {
		j.LastStatus = domain.JobRunStatus(lastStatus.String)
	}
	if lastRunAt.Valid {
		t := time.UnixMilli(lastRunAt.Int64).UTC()
		j.LastRunAt = &t
	}
	return j, nil
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
