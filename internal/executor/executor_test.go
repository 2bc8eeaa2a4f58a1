package executor_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netraven/engine/internal/breaker"
	"github.com/netraven/engine/internal/capability"
	"github.com/netraven/engine/internal/credential"
	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/driver"
	"github.com/netraven/engine/internal/executor"
	"github.com/netraven/engine/internal/gitrepo"
	"github.com/netraven/engine/internal/redact"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/internal/telemetry"
	"github.com/netraven/engine/pkg/metrics"
)

type fakeSession struct {
	output string
	err    error
}

func (s *fakeSession) Run(_ context.Context, _ string, _ time.Duration) (string, error) {
	return s.output, s.err
}
func (s *fakeSession) Close() error { return nil }

type fakeDriver struct {
	openErr   error
	session   *fakeSession
	authUsers map[string]bool // usernames that fail auth
	openCalls int
}

func (d *fakeDriver) Open(_ context.Context, _ string, _ int, cred driver.Credential, _ *regexp.Regexp, _ time.Duration) (driver.Session, error) {
	d.openCalls++
	if d.authUsers[cred.Username] {
		return nil, &driver.Failure{Kind: domain.ErrAuthFailure, Err: errors.New("authentication failed")}
	}
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.session, nil
}

func newTestExecutor(t *testing.T, drv driver.Driver) (*executor.Executor, *telemetry.MemorySink, *store.MemoryStore) {
	t.Helper()

	reg, err := capability.NewRegistry(16)
	require.NoError(t, err)

	repoPath := t.TempDir()
	repo, err := gitrepo.Open(repoPath)
	require.NoError(t, err)

	sink := telemetry.NewMemorySink()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewRegistry("test_executor_" + t.Name())

	resolver := credential.NewResolver(st, logger, m.Credential())
	breakers := breaker.NewManager(breaker.DefaultConfig(), m.Breaker())
	redactor := redact.NewRedactor(redact.DefaultConfig())

	exec := executor.New(drv, reg, breakers, repo, sink, resolver, redactor, logger, m.Executor(), time.Second, time.Second)
	return exec, sink, st
}

func TestExecutorSucceedsAndWritesTelemetryAndCommit(t *testing.T) {
	drv := &fakeDriver{session: &fakeSession{output: "hostname router1\nenable secret 5 abcd"}}
	exec, sink, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-1", Username: "admin", Secret: "s3cret", Priority: 1, TagIDs: []string{"core"}})

	candidates, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
	require.NoError(t, err)

	outcome := exec.Run(context.Background(), mustDevice(st, "dev-1"), candidates, "run-1")

	require.True(t, outcome.Success)
	assert.Equal(t, "cred-1", outcome.CredentialID)
	assert.NotEmpty(t, outcome.CommitID)

	page, err := sink.ListConnectionLogs(context.Background(), telemetry.ConnectionLogFilter{JobRunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotContains(t, page.Items[0].OutputExcerpt, "enable secret")

	got, err := st.GetCredential(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Greater(t, got.SuccessRate, 0.0)
}

func TestExecutorAdvancesToNextCredentialOnAuthFailure(t *testing.T) {
	drv := &fakeDriver{
		authUsers: map[string]bool{"bad-user": true},
		session:   &fakeSession{output: "hostname router1"},
	}
	exec, _, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-bad", Username: "bad-user", Secret: "wrong", Priority: 1, TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-good", Username: "good-user", Secret: "right", Priority: 2, TagIDs: []string{"core"}})

	candidates, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
	require.NoError(t, err)

	outcome := exec.Run(context.Background(), mustDevice(st, "dev-1"), candidates, "run-2")

	require.True(t, outcome.Success)
	assert.Equal(t, "cred-good", outcome.CredentialID)
	assert.Equal(t, 2, drv.openCalls)
}

func TestExecutorSkipsDeviceWithNoCandidates(t *testing.T) {
	drv := &fakeDriver{session: &fakeSession{output: "x"}}
	exec, _, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})

	candidates, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
	require.NoError(t, err)

	outcome := exec.Run(context.Background(), mustDevice(st, "dev-1"), candidates, "run-3")
	assert.True(t, outcome.Skipped)
	assert.False(t, outcome.Success)
}

func TestExecutorReturnsNoChangeOnIdenticalSecondCommit(t *testing.T) {
	drv := &fakeDriver{session: &fakeSession{output: "hostname router1"}}
	exec, _, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-1", Username: "admin", Secret: "s3cret", Priority: 1, TagIDs: []string{"core"}})

	resolve := func() *credential.Candidates {
		c, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
		require.NoError(t, err)
		return c
	}

	first := exec.Run(context.Background(), mustDevice(st, "dev-1"), resolve(), "run-4")
	require.True(t, first.Success)
	require.False(t, first.NoChange)

	second := exec.Run(context.Background(), mustDevice(st, "dev-1"), resolve(), "run-5")
	require.True(t, second.Success)
	assert.True(t, second.NoChange)
}

func TestExecutorClassifiesCommandPhaseTimeoutAsCommandTimeout(t *testing.T) {
	drv := &fakeDriver{session: &fakeSession{err: errors.New("timed out waiting for device prompt")}}
	exec, _, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-1", Username: "admin", Secret: "s3cret", Priority: 1, TagIDs: []string{"core"}})

	candidates, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
	require.NoError(t, err)

	outcome := exec.Run(context.Background(), mustDevice(st, "dev-1"), candidates, "run-6")
	require.False(t, outcome.Success)
	assert.Equal(t, domain.ErrCommandTimeout, outcome.ErrorKind)
}

func TestExecutorClassifiesConnectPhaseTimeoutAsConnectTimeout(t *testing.T) {
	drv := &fakeDriver{openErr: errors.New("dial tcp: i/o timeout")}
	exec, _, st := newTestExecutor(t, drv)

	st.PutDevice(domain.Device{ID: "dev-1", Hostname: "r1", Address: "10.0.0.1", Port: 22, DriverType: "cisco_ios", TagIDs: []string{"core"}})
	st.PutCredential(domain.Credential{ID: "cred-1", Username: "admin", Secret: "s3cret", Priority: 1, TagIDs: []string{"core"}})

	candidates, err := credential.NewResolver(st, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Resolve(context.Background(), "dev-1")
	require.NoError(t, err)

	outcome := exec.Run(context.Background(), mustDevice(st, "dev-1"), candidates, "run-7")
	require.False(t, outcome.Success)
	assert.Equal(t, domain.ErrConnectTimeout, outcome.ErrorKind)
}

func mustDevice(st *store.MemoryStore, id string) domain.Device {
	d, err := st.GetDevice(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return d
}
