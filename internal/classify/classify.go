// Package classify maps driver-level failures onto the closed error
// taxonomy of §4.1, at the boundary between the Device Driver and the
// Executor. The Dispatcher never sees anything richer than the
// resulting domain.ErrorKind.
package classify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/netraven/engine/internal/domain"
)

// Patterns is the per-driver-type error-pattern list supplied by the
// Capability Registry (§4.9). Each pattern is matched case-insensitively
// against command output or error text and classified to Kind.
type Patterns struct {
	Kind     domain.ErrorKind
	Contains []string
}

// Classify turns a raw error from a dial or session operation into a
// domain.ErrorKind, first checking well-known Go error types and then
// falling back to the driver-supplied text patterns before giving up
// with domain.ErrUnknown.
func Classify(err error, patterns []Patterns) domain.ErrorKind {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return domain.ErrCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrConnectTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return domain.ErrConnectRefused
		case errors.Is(opErr.Err, syscall.ENETUNREACH), errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return domain.ErrNetworkUnreachable
		case errors.Is(opErr.Err, syscall.ECONNRESET):
			return domain.ErrConnectRefused
		}
	}

	msg := strings.ToLower(err.Error())

	for _, p := range patterns {
		for _, substr := range p.Contains {
			if strings.Contains(msg, strings.ToLower(substr)) {
				return p.Kind
			}
		}
	}

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return domain.ErrConnectTimeout
	case strings.Contains(msg, "auth"), strings.Contains(msg, "permission denied"), strings.Contains(msg, "unable to authenticate"):
		return domain.ErrAuthFailure
	case strings.Contains(msg, "refused"):
		return domain.ErrConnectRefused
	case strings.Contains(msg, "unreachable"), strings.Contains(msg, "no route to host"):
		return domain.ErrNetworkUnreachable
	default:
		return domain.ErrUnknown
	}
}

// CommandPatterns classifies command-level (post-connect) failures,
// where a command timeout or device-busy signal is far more common than
// a network error.
func CommandPatterns(err error, patterns []Patterns) domain.ErrorKind {
	if err == nil {
		return ""
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrCommandTimeout
	}

	msg := strings.ToLower(err.Error())

	for _, p := range patterns {
		for _, substr := range p.Contains {
			if strings.Contains(msg, strings.ToLower(substr)) {
				return p.Kind
			}
		}
	}

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return domain.ErrCommandTimeout
	case strings.Contains(msg, "busy"), strings.Contains(msg, "locked"):
		return domain.ErrDeviceBusy
	case strings.Contains(msg, "invalid input"), strings.Contains(msg, "syntax error"), strings.Contains(msg, "unknown command"):
		return domain.ErrCommandReject
	case strings.Contains(msg, "privilege"), strings.Contains(msg, "enable"):
		return domain.ErrPrivilegeRequired
	default:
		return domain.ErrUnknown
	}
}
