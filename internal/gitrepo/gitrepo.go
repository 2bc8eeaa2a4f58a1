// Package gitrepo implements the Configuration Repository of §4.2: a
// content-addressed, git-backed store with one file per device, where a
// commit is only produced when a device's captured content changes.
package gitrepo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// NoChange is returned by Commit when the content hash matches the
// device's previous commit; no new commit is produced.
const NoChange = "NO_CHANGE"

// CommitMetadata is recorded in the commit message (§4.2, §6).
type CommitMetadata struct {
	DeviceID string
	JobRunID string
	Time     time.Time
}

// Result describes the outcome of a single Commit call.
type Result struct {
	CommitID    string // empty when NoChange
	ContentHash string
	NoChange    bool
}

// Repository is a single git-backed configuration store rooted at a
// working directory. Writes for different devices may proceed
// concurrently; writes for the same device are serialized by a
// per-device lock.
type Repository struct {
	path string
	repo *git.Repository

	mu          sync.Mutex
	deviceLocks map[string]*sync.Mutex
	lastHash    map[string]string
}

// Open opens or initializes a git repository at path.
func Open(path string) (*Repository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("gitrepo: create working dir: %w", err)
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		if err != git.ErrRepositoryNotExists {
			return nil, fmt.Errorf("gitrepo: open: %w", err)
		}
		repo, err = git.PlainInit(path, false)
		if err != nil {
			return nil, fmt.Errorf("gitrepo: init: %w", err)
		}
	}

	return &Repository{
		path:        path,
		repo:        repo,
		deviceLocks: make(map[string]*sync.Mutex),
		lastHash:    make(map[string]string),
	}, nil
}

func (r *Repository) lockFor(deviceID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.deviceLocks[deviceID]
	if !ok {
		l = &sync.Mutex{}
		r.deviceLocks[deviceID] = l
	}
	return l
}

// devicePath maps a device id to its single file under the repository
// root. Device ids are expected to be filesystem-safe identifiers
// (enforced upstream of the engine); this is not itself a sanitizer.
func (r *Repository) devicePath(deviceID string) string {
	return filepath.Join(r.path, deviceID+".cfg")
}

// ContentHash computes the stable content-address used to detect an
// unchanged capture (§3: "commit hashes are stable functions of raw
// configuration content").
func ContentHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Commit writes raw (the unredacted capture) for deviceID and produces a
// new commit unless its content hash matches the device's previous
// commit, in which case it returns a Result with NoChange set and no new
// commit is created.
func (r *Repository) Commit(deviceID, raw string, meta CommitMetadata) (Result, error) {
	lock := r.lockFor(deviceID)
	lock.Lock()
	defer lock.Unlock()

	hash := ContentHash(raw)

	r.mu.Lock()
	previous, seen := r.lastHash[deviceID]
	r.mu.Unlock()

	if !seen {
		// lastHash is only populated as Commit runs in this process; after
		// a restart it starts empty even though the device's file (and
		// its commit history) already exists on disk. Fall back to the
		// working-tree content so the first capture after a restart still
		// recognizes unchanged content instead of writing a duplicate
		// commit.
		if existing, err := os.ReadFile(r.devicePath(deviceID)); err == nil {
			previous = ContentHash(string(existing))
			seen = true
		} else if !os.IsNotExist(err) {
			return Result{}, fmt.Errorf("gitrepo: read existing device file: %w", err)
		}
	}

	if seen && previous == hash {
		r.mu.Lock()
		r.lastHash[deviceID] = hash
		r.mu.Unlock()
		return Result{ContentHash: hash, NoChange: true}, nil
	}

	path := r.devicePath(deviceID)
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		return Result{}, fmt.Errorf("gitrepo: write device file: %w", err)
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return Result{}, fmt.Errorf("gitrepo: worktree: %w", err)
	}

	relPath, err := filepath.Rel(r.path, path)
	if err != nil {
		return Result{}, fmt.Errorf("gitrepo: relative path: %w", err)
	}
	if _, err := wt.Add(relPath); err != nil {
		return Result{}, fmt.Errorf("gitrepo: add: %w", err)
	}

	message := fmt.Sprintf("device-id=%s, job-run-id=%s, timestamp=%s",
		meta.DeviceID, meta.JobRunID, meta.Time.UTC().Format(time.RFC3339))

	commitHash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "netraven-worker",
			Email: "netraven-worker@localhost",
			When:  meta.Time,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("gitrepo: commit: %w", err)
	}

	r.mu.Lock()
	r.lastHash[deviceID] = hash
	r.mu.Unlock()

	return Result{CommitID: commitHash.String(), ContentHash: hash}, nil
}

// LatestCommit returns the commit id of the most recent commit touching
// deviceID's file, used by the Executor to attribute a NO_CHANGE outcome
// to the prior commit (§4.5).
func (r *Repository) LatestCommit(deviceID string) (string, error) {
	ref, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("gitrepo: head: %w", err)
	}

	commitIter, err := r.repo.Log(&git.LogOptions{From: ref.Hash(), FileName: ptr(deviceID + ".cfg")})
	if err != nil {
		return "", fmt.Errorf("gitrepo: log: %w", err)
	}
	defer commitIter.Close()

	c, err := commitIter.Next()
	if err != nil {
		return "", fmt.Errorf("gitrepo: no commits for device %s: %w", deviceID, err)
	}
	return c.Hash.String(), nil
}

func ptr(s string) *string { return &s }
