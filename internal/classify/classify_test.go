package classify

import (
	"errors"
	"net"
	"syscall"
	"testing"

	"github.com/netraven/engine/internal/domain"
)

func TestClassifyNetworkErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.ErrorKind
	}{
		{"connection refused", &net.OpError{Err: syscall.ECONNREFUSED}, domain.ErrConnectRefused},
		{"network unreachable", &net.OpError{Err: syscall.ENETUNREACH}, domain.ErrNetworkUnreachable},
		{"host unreachable", &net.OpError{Err: syscall.EHOSTUNREACH}, domain.ErrNetworkUnreachable},
		{"auth message", errors.New("unable to authenticate, attempted methods"), domain.ErrAuthFailure},
		{"refused message", errors.New("dial tcp: connection refused"), domain.ErrConnectRefused},
		{"unknown message", errors.New("something went sideways"), domain.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err, nil); got != tt.expected {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassifyNilError(t *testing.T) {
	if got := Classify(nil, nil); got != "" {
		t.Errorf("Classify(nil) = %v, want empty", got)
	}
}

func TestClassifyDriverPatternsTakePriority(t *testing.T) {
	patterns := []Patterns{
		{Kind: domain.ErrDeviceBusy, Contains: []string{"config mode is locked"}},
	}
	err := errors.New("% config mode is locked by another user")

	if got := Classify(err, patterns); got != domain.ErrDeviceBusy {
		t.Errorf("Classify with patterns = %v, want %v", got, domain.ErrDeviceBusy)
	}
}

func TestCommandPatternsClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected domain.ErrorKind
	}{
		{"timeout", errors.New("timed out waiting for prompt"), domain.ErrCommandTimeout},
		{"busy", errors.New("device is busy processing another request"), domain.ErrDeviceBusy},
		{"syntax", errors.New("% invalid input detected"), domain.ErrCommandReject},
		{"privilege", errors.New("% privilege level too low, try enable"), domain.ErrPrivilegeRequired},
		{"unknown", errors.New("totally unexpected"), domain.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CommandPatterns(tt.err, nil); got != tt.expected {
				t.Errorf("CommandPatterns(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}
