package store

import (
	"context"
	"sync"
	"time"

	"github.com/netraven/engine/internal/domain"
)

// MemoryStore is an in-process Store used by tests across the engine
// (credential resolver, executor, runner, control API). Not durable.
type MemoryStore struct {
	mu          sync.RWMutex
	devices     map[string]domain.Device
	credentials map[string]domain.Credential
	jobs        map[string]domain.Job
	jobRuns     map[string]domain.JobRun
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:     make(map[string]domain.Device),
		credentials: make(map[string]domain.Credential),
		jobs:        make(map[string]domain.Job),
		jobRuns:     make(map[string]domain.JobRun),
	}
}

// PutDevice seeds a device for tests.
func (m *MemoryStore) PutDevice(d domain.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// PutCredential seeds a credential for tests.
func (m *MemoryStore) PutCredential(c domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[c.ID] = c
}

// PutJob seeds a job for tests.
func (m *MemoryStore) PutJob(j domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
}

func (m *MemoryStore) GetDevice(_ context.Context, deviceID string) (domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return domain.Device{}, ErrNotFound
	}
	return d, nil
}

func (m *MemoryStore) ListDevicesByTags(_ context.Context, tagIDs []string) ([]domain.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := toSet(tagIDs)
	var result []domain.Device
	for _, d := range m.devices {
		if intersects(d.TagIDs, want) {
			result = append(result, d)
		}
	}
	return result, nil
}

func (m *MemoryStore) GetCredential(_ context.Context, credentialID string) (domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[credentialID]
	if !ok {
		return domain.Credential{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListCredentialsByTags(_ context.Context, tagIDs []string) ([]domain.Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := toSet(tagIDs)
	var result []domain.Credential
	for _, c := range m.credentials {
		if intersects(c.TagIDs, want) {
			result = append(result, c)
		}
	}
	return result, nil
}

func (m *MemoryStore) UpdateCredentialStats(_ context.Context, credentialID string, successRate float64, lastUsed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[credentialID]
	if !ok {
		return ErrNotFound
	}
	c.SuccessRate = successRate
	c.LastUsed = &lastUsed
	m.credentials[credentialID] = c
	return nil
}

func (m *MemoryStore) GetJob(_ context.Context, jobID string) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.Job{}, ErrNotFound
	}
	return j, nil
}

func (m *MemoryStore) ListEnabledJobs(_ context.Context) ([]domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Job
	for _, j := range m.jobs {
		if j.Enabled {
			result = append(result, j)
		}
	}
	return result, nil
}

func (m *MemoryStore) UpdateJobStatus(_ context.Context, jobID string, status domain.JobRunStatus, lastRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	j.LastStatus = status
	j.LastRunAt = &lastRun
	m.jobs[jobID] = j
	return nil
}

func (m *MemoryStore) CreateJobRun(_ context.Context, run domain.JobRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobRuns[run.ID] = run
	return nil
}

func (m *MemoryStore) CompleteJobRun(_ context.Context, jobRunID string, status domain.JobRunStatus, endTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.jobRuns[jobRunID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.EndTime = &endTime
	m.jobRuns[jobRunID] = run
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func intersects(ids []string, set map[string]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}
