package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netraven/engine/internal/domain"
)

// These tests drive SQLiteStore's query and row-scan logic against a
// mocked driver instead of a real database file, so the expected SQL
// and NULL-handling can be pinned down independent of sqlite itself.

func newMockSQLiteStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newSQLiteStoreFromDB(db), mock
}

func TestSQLiteGetDeviceScansTagsAndCredential(t *testing.T) {
	st, mock := newMockSQLiteStore(t)
	cred := "cred-1"
	rows := sqlmock.NewRows([]string{"id", "hostname", "address", "port", "driver_type", "tag_ids", "pre_resolved_credential_id"}).
		AddRow("dev-1", "core-sw1", "10.0.0.1", 22, "cisco_ios", "edge,core", cred)
	mock.ExpectQuery("SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices WHERE id = ?").
		WithArgs("dev-1").
		WillReturnRows(rows)

	d, err := st.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"edge", "core"}, d.TagIDs)
	require.NotNil(t, d.PreResolvedCredentialID)
	assert.Equal(t, cred, *d.PreResolvedCredentialID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteGetDeviceNotFoundMapsToErrNotFound(t *testing.T) {
	st, mock := newMockSQLiteStore(t)
	mock.ExpectQuery("SELECT id, hostname, address, port, driver_type, tag_ids, pre_resolved_credential_id FROM devices WHERE id = ?").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := st.GetDevice(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteUpdateCredentialStatsNoRowsIsNotFound(t *testing.T) {
	st, mock := newMockSQLiteStore(t)
	mock.ExpectExec("UPDATE credentials SET success_rate = \\?, last_used = \\? WHERE id = \\?").
		WithArgs(0.5, sqlmock.AnyArg(), "cred-x").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := st.UpdateCredentialStats(context.Background(), "cred-x", 0.5, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteListEnabledJobsSkipsDisabledViaQuery(t *testing.T) {
	st, mock := newMockSQLiteStore(t)
	rows := sqlmock.NewRows([]string{"id", "name", "target_tag_ids", "schedule_kind", "interval_seconds", "cron_expr", "once_at", "enabled", "last_status", "last_run_at"}).
		AddRow("job-1", "backup-config", "core", "interval", 3600, nil, nil, 1, string(domain.JobRunCompletedSuccess), nil)
	mock.ExpectQuery("SELECT id, name, target_tag_ids, schedule_kind, interval_seconds, cron_expr, once_at, enabled, last_status, last_run_at FROM jobs WHERE enabled = 1").
		WillReturnRows(rows)

	jobs, err := st.ListEnabledJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-1", jobs[0].ID)
	assert.Equal(t, domain.JobRunCompletedSuccess, jobs[0].LastStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}
