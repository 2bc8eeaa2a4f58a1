package driver

import (
	"errors"
	"testing"

	"github.com/netraven/engine/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestStripEchoRemovesCommandAndPrompt(t *testing.T) {
	raw := "show version\r\nCisco IOS Software\r\nUptime: 3 days\r\nrouter1#"
	got := stripEcho("show version", raw)
	assert.Contains(t, got, "Cisco IOS Software")
	assert.Contains(t, got, "Uptime: 3 days")
	assert.NotContains(t, got, "router1#")
}

func TestFailureErrorAndUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	f := &Failure{Kind: domain.ErrConnectRefused, Err: inner}

	assert.Equal(t, "connection refused", f.Error())
	assert.ErrorIs(t, f, inner)
}

func TestFailureErrorWithNilInnerUsesKind(t *testing.T) {
	f := &Failure{Kind: domain.ErrUnknown}
	assert.Equal(t, "UNKNOWN", f.Error())
}
