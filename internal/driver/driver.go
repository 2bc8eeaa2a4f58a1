// Package driver implements the Device Driver contract of §4.1: open a
// session against a device and run commands against it, returning a
// single text blob per command once the device prompt is observed.
package driver

import (
	"context"
	"regexp"
	"time"

	"github.com/netraven/engine/internal/domain"
)

// Credential is the login material a Driver needs to open a session.
// It mirrors the relevant subset of domain.Credential without importing
// the resolver's statistics fields into the driver's contract.
type Credential struct {
	Username string
	Secret   string
}

// Session is a scoped, single-device connection. Callers must Close it
// on every exit path, including context cancellation.
type Session interface {
	// Run executes command and returns the device's output once its
	// prompt is observed, or an error if commandTimeout elapses first.
	// The error is not classified; callers map it onto a
	// domain.ErrorKind.
	Run(ctx context.Context, command string, commandTimeout time.Duration) (string, error)

	// Close releases the underlying transport. Idempotent.
	Close() error
}

// Driver opens sessions against devices of a single transport family
// (SSH today; the interface does not assume it).
type Driver interface {
	// Open dials address:port and authenticates with cred. promptPattern
	// comes from the Capability Registry's per-driver-type profile and
	// tells the session where a command's output ends.
	Open(ctx context.Context, address string, port int, cred Credential, promptPattern *regexp.Regexp, connectTimeout time.Duration) (Session, error)
}

// Failure wraps a driver-level error with its classified kind so the
// Executor can propagate (outcome, kind, retriable) without inspecting
// driver internals (§7).
type Failure struct {
	Kind domain.ErrorKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

func (f *Failure) Unwrap() error {
	return f.Err
}
