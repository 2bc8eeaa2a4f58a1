package controlapi_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netraven/engine/internal/controlapi"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/scheduler"
	"github.com/netraven/engine/internal/store"
)

type stubScheduler struct {
	registerErr error
	enableErr   error
	disableErr  error
	runNowID    string
	runNowErr   error
	cancelErr   error
	schedules   []scheduler.Info
	registered  []domain.Job
}

func (s *stubScheduler) Register(job domain.Job) error {
	s.registered = append(s.registered, job)
	return s.registerErr
}
func (s *stubScheduler) Deregister(string)               {}
func (s *stubScheduler) Enable(string) error             { return s.enableErr }
func (s *stubScheduler) Disable(string) error            { return s.disableErr }
func (s *stubScheduler) RunNow(string) (string, error)   { return s.runNowID, s.runNowErr }
func (s *stubScheduler) CancelRun(string) error          { return s.cancelErr }
func (s *stubScheduler) ListSchedules() []scheduler.Info { return s.schedules }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRegisterLoadsJobFromStoreAndRegisters(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutJob(domain.Job{ID: "job-1", Name: "nightly", TargetTagIDs: []string{"core"}, ScheduleKind: domain.ScheduleInterval, IntervalSecs: 300, Enabled: true})
	sched := &stubScheduler{}
	srv := controlapi.NewServer(sched, st, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/jobs/job-1/register", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sched.registered, 1)
	assert.Equal(t, "job-1", sched.registered[0].ID)
}

func TestRegisterUnknownJobReturnsNotFound(t *testing.T) {
	st := store.NewMemoryStore()
	sched := &stubScheduler{}
	srv := controlapi.NewServer(sched, st, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/jobs/missing/register", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRegisterInvalidJobReturnsUnprocessable(t *testing.T) {
	st := store.NewMemoryStore()
	st.PutJob(domain.Job{ID: "bad-job"}) // missing Name, TargetTagIDs, ScheduleKind
	sched := &stubScheduler{}
	srv := controlapi.NewServer(sched, st, testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/jobs/bad-job/register", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Empty(t, sched.registered)
}

func TestRunNowReturnsJobRunID(t *testing.T) {
	sched := &stubScheduler{runNowID: "run-123"}
	srv := controlapi.NewServer(sched, store.NewMemoryStore(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/jobs/job-1/run-now", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestCancelRunUnknownReturnsNotFound(t *testing.T) {
	sched := &stubScheduler{cancelErr: assertError{}}
	srv := controlapi.NewServer(sched, store.NewMemoryStore(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/runs/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListSchedulesReturnsRows(t *testing.T) {
	sched := &stubScheduler{schedules: []scheduler.Info{
		{JobID: "job-1", NextFire: time.Now().Add(time.Minute), State: scheduler.StateActive},
	}}
	srv := controlapi.NewServer(sched, store.NewMemoryStore(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/schedules")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthzReportsOK(t *testing.T) {
	srv := controlapi.NewServer(&stubScheduler{}, store.NewMemoryStore(), testLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type assertError struct{}

func (assertError) Error() string { return "no such run" }
