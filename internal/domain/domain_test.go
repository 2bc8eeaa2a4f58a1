package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceHasTag(t *testing.T) {
	d := Device{TagIDs: []string{"default", "core-routers"}}
	assert.True(t, d.HasTag("default"))
	assert.True(t, d.HasTag("core-routers"))
	assert.False(t, d.HasTag("access-switches"))
}

func TestCredentialMatchesTags(t *testing.T) {
	c := Credential{TagIDs: []string{"core-routers", "datacenter-a"}}

	assert.True(t, c.MatchesTags([]string{"default", "core-routers"}))
	assert.False(t, c.MatchesTags([]string{"default", "access-switches"}))
	assert.False(t, c.MatchesTags(nil))
}

func TestErrorKindRetriable(t *testing.T) {
	tests := []struct {
		kind      ErrorKind
		retriable bool
	}{
		{ErrAuthFailure, false},
		{ErrConnectTimeout, true},
		{ErrConnectRefused, true},
		{ErrCommandTimeout, true},
		{ErrCommandReject, false},
		{ErrDeviceBusy, true},
		{ErrPrivilegeRequired, false},
		{ErrNetworkUnreachable, true},
		{ErrRepositoryFailure, true},
		{ErrCircuitOpen, false},
		{ErrCancelled, false},
		{ErrUnknown, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.retriable, tt.kind.Retriable())
		})
	}
}
