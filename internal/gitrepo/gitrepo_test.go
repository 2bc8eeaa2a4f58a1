package gitrepo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCommitProducesNewCommitOnFirstWrite(t *testing.T) {
	repo, err := Open(t.TempDir())
	require.NoError(t, err)

	result, err := repo.Commit("dev-1", "hostname router1\n", CommitMetadata{
		DeviceID: "dev-1", JobRunID: "run-1", Time: time.Now(),
	})
	require.NoError(t, err)
	require.False(t, result.NoChange)
	require.NotEmpty(t, result.CommitID)
}

func TestCommitIsNoChangeOnIdenticalContent(t *testing.T) {
	repo, err := Open(t.TempDir())
	require.NoError(t, err)

	content := "hostname router1\n"
	_, err = repo.Commit("dev-1", content, CommitMetadata{DeviceID: "dev-1", JobRunID: "run-1", Time: time.Now()})
	require.NoError(t, err)

	second, err := repo.Commit("dev-1", content, CommitMetadata{DeviceID: "dev-1", JobRunID: "run-2", Time: time.Now()})
	require.NoError(t, err)
	require.True(t, second.NoChange)
}

func TestCommitOnChangedContentProducesNewCommit(t *testing.T) {
	repo, err := Open(t.TempDir())
	require.NoError(t, err)

	first, err := repo.Commit("dev-1", "version 1\n", CommitMetadata{DeviceID: "dev-1", JobRunID: "run-1", Time: time.Now()})
	require.NoError(t, err)

	second, err := repo.Commit("dev-1", "version 2\n", CommitMetadata{DeviceID: "dev-1", JobRunID: "run-2", Time: time.Now()})
	require.NoError(t, err)
	require.False(t, second.NoChange)
	require.NotEqual(t, first.CommitID, second.CommitID)
}

func TestDifferentDevicesCommitIndependently(t *testing.T) {
	repo, err := Open(t.TempDir())
	require.NoError(t, err)

	_, err = repo.Commit("dev-a", "config a\n", CommitMetadata{DeviceID: "dev-a", JobRunID: "run-1", Time: time.Now()})
	require.NoError(t, err)

	result, err := repo.Commit("dev-b", "config b\n", CommitMetadata{DeviceID: "dev-b", JobRunID: "run-1", Time: time.Now()})
	require.NoError(t, err)
	require.False(t, result.NoChange)
}

func TestCommitIsNoChangeAfterReopenWithExistingContent(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(dir)
	require.NoError(t, err)

	content := "hostname router1\n"
	first, err := repo.Commit("dev-1", content, CommitMetadata{DeviceID: "dev-1", JobRunID: "run-1", Time: time.Now()})
	require.NoError(t, err)
	require.False(t, first.NoChange)

	// Simulate a worker restart: a fresh Repository has no in-memory
	// record of dev-1's last hash, but the working-tree file from the
	// previous process is still on disk.
	reopened, err := Open(dir)
	require.NoError(t, err)

	second, err := reopened.Commit("dev-1", content, CommitMetadata{DeviceID: "dev-1", JobRunID: "run-2", Time: time.Now()})
	require.NoError(t, err)
	require.True(t, second.NoChange)

	third, err := reopened.Commit("dev-1", "hostname router2\n", CommitMetadata{DeviceID: "dev-1", JobRunID: "run-3", Time: time.Now()})
	require.NoError(t, err)
	require.False(t, third.NoChange)
	require.NotEqual(t, first.CommitID, third.CommitID)
}

func TestContentHashStableForIdenticalContent(t *testing.T) {
	require.Equal(t, ContentHash("abc"), ContentHash("abc"))
	require.NotEqual(t, ContentHash("abc"), ContentHash("abd"))
}
