package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/netraven/engine/internal/domain"
)

// MemorySink is an in-process, non-durable Sink used in tests and as a
// degraded-mode fallback if the configured backend fails to initialize.
// It is not suitable for production use: data does not survive restart.
type MemorySink struct {
	mu             sync.RWMutex
	connectionLogs []domain.ConnectionLog
	jobLogs        []domain.JobLog
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) WriteConnectionLog(_ context.Context, log domain.ConnectionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	m.connectionLogs = append(m.connectionLogs, log)
	return nil
}

func (m *MemorySink) WriteJobLog(_ context.Context, log domain.JobLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	m.jobLogs = append(m.jobLogs, log)
	return nil
}

func (m *MemorySink) ListConnectionLogs(_ context.Context, filter ConnectionLogFilter) (Page[domain.ConnectionLog], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.ConnectionLog
	for _, l := range m.connectionLogs {
		if filter.JobRunID != "" && l.JobRunID != filter.JobRunID {
			continue
		}
		if filter.DeviceID != "" && l.DeviceID != filter.DeviceID {
			continue
		}
		if !filter.From.IsZero() && l.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && l.Timestamp.After(filter.To) {
			continue
		}
		matched = append(matched, l)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	return paginate(matched, filter.Cursor, filter.Limit)
}

func (m *MemorySink) ListJobLogs(_ context.Context, filter JobLogFilter) (Page[domain.JobLog], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []domain.JobLog
	for _, l := range m.jobLogs {
		if filter.JobRunID != "" && l.JobRunID != filter.JobRunID {
			continue
		}
		if filter.DeviceID != "" && l.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Level != "" && l.Level != filter.Level {
			continue
		}
		if !filter.From.IsZero() && l.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && l.Timestamp.After(filter.To) {
			continue
		}
		matched = append(matched, l)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	return paginate(matched, filter.Cursor, filter.Limit)
}

func (m *MemorySink) Close() error { return nil }

// paginate applies an offset-style cursor (the string form of the index
// to resume from) and a page size limit, producing the next cursor when
// more items remain. It is shared by both list methods via generics.
func paginate[T any](items []T, cursor string, limit int) (Page[T], error) {
	offset := 0
	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil {
			return Page[T]{}, fmt.Errorf("telemetry: invalid cursor %q: %w", cursor, err)
		}
		offset = parsed
	}
	if offset > len(items) {
		offset = len(items)
	}
	if limit <= 0 {
		limit = 100
	}

	end := offset + limit
	if end > len(items) {
		end = len(items)
	}

	page := Page[T]{Items: append([]T{}, items[offset:end]...)}
	if end < len(items) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
