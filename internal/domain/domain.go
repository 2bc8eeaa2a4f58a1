// Package domain holds the entities of §3 of the engine's data model:
// Device, Tag, Credential, Job, Job Run, Connection Log, Job Log, and
// Config Version.
package domain

import "time"

// DefaultTag is the distinguished tag every device must carry.
const DefaultTag = "default"

// Device is a managed network element. Devices are created and tagged
// externally; the engine reads them and never mutates them except to
// write back schedule-unrelated statistics on associated credentials.
type Device struct {
	ID         string   `json:"id" validate:"required"`
	Hostname   string   `json:"hostname" validate:"required"`
	Address    string   `json:"address" validate:"required"`
	Port       int      `json:"port" validate:"required,min=1,max=65535"`
	DriverType string   `json:"driver_type" validate:"required"`
	TagIDs     []string `json:"tag_ids" validate:"required,min=1"`

	// PreResolvedCredentialID, when set, pins the device to a single
	// credential and bypasses tag-intersection resolution entirely
	// (§4.4 edge policy).
	PreResolvedCredentialID *string `json:"pre_resolved_credential_id,omitempty"`
}

// HasTag reports whether the device carries the given tag id.
func (d Device) HasTag(tagID string) bool {
	for _, t := range d.TagIDs {
		if t == tagID {
			return true
		}
	}
	return false
}

// Tag groups devices and credentials for matching purposes (§4.4).
type Tag struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
	Type string `json:"type"`
}

// Credential is a set of login material scoped to a set of tags. Priority
// and identity are immutable once created; SuccessRate and LastUsed are
// updated by the engine after every connect attempt (§4.4).
type Credential struct {
	ID          string     `json:"id" validate:"required"`
	Username    string     `json:"username" validate:"required"`
	Secret      string     `json:"-" validate:"required"`
	Priority    int        `json:"priority"`
	TagIDs      []string   `json:"tag_ids" validate:"required,min=1"`
	SuccessRate float64    `json:"success_rate"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
}

// MatchesTags reports whether this credential's tag set intersects the
// device's tag set, per the §3 matching invariant.
func (c Credential) MatchesTags(deviceTagIDs []string) bool {
	want := make(map[string]struct{}, len(deviceTagIDs))
	for _, t := range deviceTagIDs {
		want[t] = struct{}{}
	}
	for _, t := range c.TagIDs {
		if _, ok := want[t]; ok {
			return true
		}
	}
	return false
}

// ScheduleKind is the closed set of schedule flavors a Job may declare (§4.8).
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
	ScheduleOnce     ScheduleKind = "once"
)

// Job is an authored unit of work: a target tag-set, a schedule, and the
// engine's record of its last outcome.
type Job struct {
	ID           string       `json:"id" validate:"required"`
	Name         string       `json:"name" validate:"required"`
	TargetTagIDs []string     `json:"target_tag_ids" validate:"required,min=1"`
	ScheduleKind ScheduleKind `json:"schedule_kind" validate:"required,oneof=interval cron once"`
	IntervalSecs int          `json:"interval_seconds,omitempty"`
	CronExpr     string       `json:"cron_expr,omitempty"`
	OnceAt       *time.Time   `json:"once_at,omitempty"`
	Enabled      bool         `json:"enabled"`
	LastStatus   JobRunStatus `json:"last_status,omitempty"`
	LastRunAt    *time.Time   `json:"last_run_at,omitempty"`
}

// JobRunStatus is the terminal status vocabulary of §4.7 step 6.
type JobRunStatus string

const (
	JobRunRunning            JobRunStatus = "RUNNING"
	JobRunCompletedSuccess   JobRunStatus = "COMPLETED_SUCCESS"
	JobRunCompletedFailure   JobRunStatus = "COMPLETED_FAILURE"
	JobRunCompletedPartial   JobRunStatus = "COMPLETED_PARTIAL_FAILURE"
	JobRunCompletedNoDevices JobRunStatus = "COMPLETED_NO_DEVICES"
	JobRunFailed             JobRunStatus = "FAILED"
	JobRunCancelled          JobRunStatus = "CANCELLED"
)

// JobRun is an immutable-once-complete record of one execution of a Job.
type JobRun struct {
	ID        string       `json:"id"`
	JobID     string       `json:"job_id" validate:"required"`
	StartTime time.Time    `json:"start_time"`
	EndTime   *time.Time   `json:"end_time,omitempty"`
	Status    JobRunStatus `json:"status"`
}

// ErrorKind is the closed, exhaustive device-failure taxonomy of §4.1.
// It is the only vocabulary the Dispatcher is allowed to inspect; the
// Executor and Driver never leak richer error detail past this boundary.
type ErrorKind string

const (
	ErrAuthFailure        ErrorKind = "AUTH_FAILURE"
	ErrConnectTimeout     ErrorKind = "CONNECT_TIMEOUT"
	ErrConnectRefused     ErrorKind = "CONNECT_REFUSED"
	ErrCommandTimeout     ErrorKind = "COMMAND_TIMEOUT"
	ErrCommandReject      ErrorKind = "COMMAND_REJECT"
	ErrDeviceBusy         ErrorKind = "DEVICE_BUSY"
	ErrPrivilegeRequired  ErrorKind = "PRIVILEGE_REQUIRED"
	ErrNetworkUnreachable ErrorKind = "NETWORK_UNREACHABLE"
	ErrRepositoryFailure  ErrorKind = "REPOSITORY_FAILURE"
	ErrCircuitOpen        ErrorKind = "CIRCUIT_OPEN"
	ErrCancelled          ErrorKind = "CANCELLED"
	ErrUnknown            ErrorKind = "UNKNOWN"
)

// retriable holds the §4.1 table's Retriable? column. CIRCUIT_OPEN and
// CANCELLED are engine-internal additions (§4.5, §5) layered onto the
// driver taxonomy; neither is retried by the Dispatcher.
var retriable = map[ErrorKind]bool{
	ErrAuthFailure:        false,
	ErrConnectTimeout:     true,
	ErrConnectRefused:     true,
	ErrCommandTimeout:     true,
	ErrCommandReject:      false,
	ErrDeviceBusy:         true,
	ErrPrivilegeRequired:  false,
	ErrNetworkUnreachable: true,
	ErrRepositoryFailure:  true,
	ErrCircuitOpen:        false,
	ErrCancelled:          false,
	ErrUnknown:            true,
}

// Retriable reports whether the Dispatcher's retry policy (§4.6) applies
// to this error kind. Unknown kinds are treated as non-retriable rather
// than panicking, since the taxonomy is meant to be closed.
func (k ErrorKind) Retriable() bool {
	return retriable[k]
}

// ConnectionLog is an append-only record of a single device session
// attempt's transport-level outcome (§3, §4.3).
type ConnectionLog struct {
	ID             string     `json:"id"`
	JobRunID       string     `json:"job_run_id" validate:"required"`
	DeviceID       string     `json:"device_id" validate:"required"`
	Timestamp      time.Time  `json:"timestamp"`
	OutputExcerpt  string     `json:"output_excerpt"`
	BytesCaptured  int        `json:"bytes_captured"`
	DurationMillis int64      `json:"duration_millis"`
	ErrorKind      *ErrorKind `json:"error_kind,omitempty"`
}

// LogLevel is the closed set of Job Log severities (§3).
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// JobLog is an append-only structured event emitted by the Runner,
// Dispatcher, or Executor over the course of a job run.
type JobLog struct {
	ID        string                 `json:"id"`
	JobRunID  string                 `json:"job_run_id" validate:"required"`
	DeviceID  string                 `json:"device_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Level     LogLevel               `json:"level" validate:"required,oneof=INFO WARN ERROR"`
	Message   string                 `json:"message" validate:"required"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// ConfigVersion identifies one committed snapshot of a device's running
// configuration, content-addressed by CommitHash (§4.2, §3).
type ConfigVersion struct {
	DeviceID    string    `json:"device_id" validate:"required"`
	CommitID    string    `json:"commit_id" validate:"required"`
	ContentHash string    `json:"content_hash" validate:"required"`
	Timestamp   time.Time `json:"timestamp"`
	JobRunID    string    `json:"job_run_id" validate:"required"`
}
