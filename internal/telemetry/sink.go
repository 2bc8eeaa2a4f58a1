// Package telemetry implements the Telemetry Sink of §4.3: two
// append-only streams, connection logs and job logs, behind one
// interface with a postgres/sqlite/memory backend selected by
// deployment profile.
package telemetry

import (
	"context"
	"time"

	"github.com/netraven/engine/internal/domain"
)

// ConnectionLogFilter narrows a ListConnectionLogs query. Zero-value
// fields are unconstrained.
type ConnectionLogFilter struct {
	JobRunID string
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int
	// Cursor paginates stably by (timestamp, id); empty starts at the
	// beginning of the window.
	Cursor string
}

// JobLogFilter narrows a ListJobLogs query. Zero-value fields are
// unconstrained.
type JobLogFilter struct {
	JobRunID string
	DeviceID string
	Level    domain.LogLevel
	From     time.Time
	To       time.Time
	Limit    int
	Cursor   string
}

// Page wraps a result set with the cursor to request the next page, if
// any.
type Page[T any] struct {
	Items      []T
	NextCursor string
}

// Sink is the append-only telemetry contract. Writes are durable before
// the caller returns (§4.3); callers that cannot tolerate the write
// latency should batch at a higher layer, not bypass the sink.
type Sink interface {
	WriteConnectionLog(ctx context.Context, log domain.ConnectionLog) error
	WriteJobLog(ctx context.Context, log domain.JobLog) error

	ListConnectionLogs(ctx context.Context, filter ConnectionLogFilter) (Page[domain.ConnectionLog], error)
	ListJobLogs(ctx context.Context, filter JobLogFilter) (Page[domain.JobLog], error)

	Close() error
}
