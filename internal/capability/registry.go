// Package capability implements the read-mostly driver-type table of
// §4.9: per-driver-type command sequences, timeouts, error patterns, and
// feature flags, plus an LRU cache of per-device runtime overrides
// recorded through RecordProbe. The Executor reads overrides via
// LookupForDevice but does not record any itself.
package capability

import (
	"regexp"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/netraven/engine/internal/classify"
)

// Features is the per-driver-type feature-flag bitmap referenced in §4.5.
type Features struct {
	RequiresEnable        bool
	SupportsPagingControl bool
	SupportsInventory     bool
}

// Profile is one driver-type's static capability entry.
type Profile struct {
	DriverType            string
	ShowRunningCommand    string
	PagingDisableCommands []string
	EnableModePrelude     []string
	CommandTimeouts       map[string]time.Duration
	ErrorPatterns         []classify.Patterns
	Features              Features
	PromptPattern         *regexp.Regexp
}

// TimeoutFor resolves the per-command timeout, falling back to a default
// when the command has no dedicated entry.
func (p Profile) TimeoutFor(command string, fallback time.Duration) time.Duration {
	if d, ok := p.CommandTimeouts[command]; ok {
		return d
	}
	return fallback
}

const genericDriverType = "generic"

// genericPatterns are the driver-agnostic error patterns. Every static
// profile, the generic fallback included, uses this list as is; no
// profile carries driver-specific patterns.
var genericPatterns = []classify.Patterns{
	{Kind: "AUTH_FAILURE", Contains: []string{"authentication failed", "permission denied", "access denied"}},
	{Kind: "COMMAND_REJECT", Contains: []string{"invalid input", "unknown command", "syntax error", "ambiguous command"}},
	{Kind: "DEVICE_BUSY", Contains: []string{"configuration is locked", "terminal locked", "resource busy"}},
	{Kind: "PRIVILEGE_REQUIRED", Contains: []string{"privilege", "need to be in enable mode"}},
}

var promptDefault = regexp.MustCompile(`[\$#>]\s*$`)

var staticProfiles = map[string]Profile{
	"cisco_ios": {
		DriverType:            "cisco_ios",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal length 0"},
		EnableModePrelude:     []string{"enable"},
		CommandTimeouts:       map[string]time.Duration{"show running-config": 60 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: true, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+[>#]\s*$`),
	},
	"cisco_xe": {
		DriverType:            "cisco_xe",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal length 0"},
		EnableModePrelude:     []string{"enable"},
		CommandTimeouts:       map[string]time.Duration{"show running-config": 90 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: true, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+[>#]\s*$`),
	},
	"cisco_xr": {
		DriverType:            "cisco_xr",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal length 0"},
		EnableModePrelude:     nil,
		CommandTimeouts:       map[string]time.Duration{"show running-config": 120 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: false, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+#\s*$`),
	},
	"cisco_nxos": {
		DriverType:            "cisco_nxos",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal length 0"},
		EnableModePrelude:     nil,
		CommandTimeouts:       map[string]time.Duration{"show running-config": 90 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: false, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+#\s*$`),
	},
	"cisco_asa": {
		DriverType:            "cisco_asa",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal pager 0"},
		EnableModePrelude:     []string{"enable"},
		CommandTimeouts:       map[string]time.Duration{"show running-config": 60 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: true, SupportsPagingControl: true, SupportsInventory: false},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+[>#]\s*$`),
	},
	"juniper_junos": {
		DriverType:            "juniper_junos",
		ShowRunningCommand:    "show configuration | display set",
		PagingDisableCommands: []string{"set cli screen-length 0"},
		EnableModePrelude:     nil,
		CommandTimeouts:       map[string]time.Duration{"show configuration | display set": 90 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: false, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-@]+[>#%]\s*$`),
	},
	"arista_eos": {
		DriverType:            "arista_eos",
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: []string{"terminal length 0"},
		EnableModePrelude:     []string{"enable"},
		CommandTimeouts:       map[string]time.Duration{"show running-config": 60 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: true, SupportsPagingControl: true, SupportsInventory: true},
		PromptPattern:         regexp.MustCompile(`[\w.\-]+[>#]\s*$`),
	},
	"paloalto_panos": {
		DriverType:            "paloalto_panos",
		ShowRunningCommand:    "show config running",
		PagingDisableCommands: []string{"set cli pager off"},
		EnableModePrelude:     nil,
		CommandTimeouts:       map[string]time.Duration{"show config running": 90 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: false, SupportsPagingControl: true, SupportsInventory: false},
		PromptPattern:         regexp.MustCompile(`[\w.\-@]+[>#]\s*$`),
	},
	"f5_tmsh": {
		DriverType:            "f5_tmsh",
		ShowRunningCommand:    "list",
		PagingDisableCommands: []string{"modify cli preference pager disabled"},
		EnableModePrelude:     nil,
		CommandTimeouts:       map[string]time.Duration{"list": 120 * time.Second},
		ErrorPatterns:         genericPatterns,
		Features:              Features{RequiresEnable: false, SupportsPagingControl: true, SupportsInventory: false},
		PromptPattern:         regexp.MustCompile(`[\w.\-()]+#\s*$`),
	},
	genericDriverType: {
		DriverType:            genericDriverType,
		ShowRunningCommand:    "show running-config",
		PagingDisableCommands: nil,
		EnableModePrelude:     nil,
		CommandTimeouts:       nil,
		ErrorPatterns:         genericPatterns,
		Features:              Features{},
		PromptPattern:         promptDefault,
	},
}

// Registry resolves driver-type capability profiles and caches per-device
// overrides stored with RecordProbe (§4.5). Lookups are O(1).
type Registry struct {
	static    map[string]Profile
	overrides *lru.Cache[string, Profile]
}

// NewRegistry builds a registry with the built-in static profiles and an
// LRU cache of the given size for per-device probe overrides.
func NewRegistry(overrideCacheSize int) (*Registry, error) {
	if overrideCacheSize <= 0 {
		overrideCacheSize = 1024
	}
	cache, err := lru.New[string, Profile](overrideCacheSize)
	if err != nil {
		return nil, err
	}
	return &Registry{static: staticProfiles, overrides: cache}, nil
}

// Lookup returns the static profile for a driver type, or the generic
// fallback plus false if the driver type is unrecognized.
func (r *Registry) Lookup(driverType string) (Profile, bool) {
	p, ok := r.static[driverType]
	if !ok {
		return r.static[genericDriverType], false
	}
	return p, true
}

// LookupForDevice returns the effective profile for a specific device:
// a probe-refined override if one has been recorded, else the static
// driver-type profile.
func (r *Registry) LookupForDevice(deviceID, driverType string) (Profile, bool) {
	if override, ok := r.overrides.Get(deviceID); ok {
		return override, true
	}
	return r.Lookup(driverType)
}

// RecordProbe stores a runtime-refined profile for a device, superseding
// the static entry on subsequent attempts for that device.
func (r *Registry) RecordProbe(deviceID string, refined Profile) {
	r.overrides.Add(deviceID, refined)
}

// IsKnownDriverType reports whether the driver type has a static entry.
func IsKnownDriverType(driverType string) bool {
	_, ok := staticProfiles[driverType]
	return ok
}
