// Package credential implements the Credential Resolver (§4.4):
// tag-intersection matching against a device's tag set, priority- and
// recency-ordered candidate yielding, and the EWMA success-rate update
// applied after every connect attempt.
package credential

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/netraven/engine/internal/domain"
	"github.com/netraven/engine/internal/store"
	"github.com/netraven/engine/pkg/metrics"
)

// successWeight is the recency weight applied on every statistics
// update: success_rate <- (1-successWeight)*success_rate + successWeight
// on success, success_rate <- (1-successWeight)*success_rate on failure.
const successWeight = 0.1

// Resolver produces ordered candidate credential lists for a device and
// folds connect-attempt outcomes back into each credential's EWMA
// success rate.
type Resolver struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.CredentialMetrics
}

// NewResolver builds a Resolver over a domain Store.
func NewResolver(st store.Store, logger *slog.Logger, m *metrics.CredentialMetrics) *Resolver {
	return &Resolver{store: st, logger: logger, metrics: m}
}

// Candidates is a lazily-consumed ordered credential list: the executor
// pulls one credential at a time via Next and stops as soon as an
// attempt succeeds. Resolve loads and sorts the full list up front;
// only its consumption is incremental.
type Candidates struct {
	items []domain.Credential
	pos   int
}

// NewCandidates builds a Candidates list directly, for callers (tests,
// dispatcher fakes) that already have an ordered credential slice.
func NewCandidates(items []domain.Credential) *Candidates {
	return &Candidates{items: items}
}

// Next returns the next candidate credential, or ok=false once the list
// is exhausted.
func (c *Candidates) Next() (domain.Credential, bool) {
	if c == nil || c.pos >= len(c.items) {
		return domain.Credential{}, false
	}
	cred := c.items[c.pos]
	c.pos++
	return cred, true
}

// Remaining reports how many unconsumed candidates are left.
func (c *Candidates) Remaining() int {
	if c == nil {
		return 0
	}
	return len(c.items) - c.pos
}

// Resolve implements the §4.4 algorithm: look up the device, honor a
// pre-resolved credential if present, else return all credentials whose
// tag set intersects the device's, ordered by ascending priority, ties
// broken by descending success rate then by credential id.
func (r *Resolver) Resolve(ctx context.Context, deviceID string) (*Candidates, error) {
	start := time.Now()
	outcome := "resolved"
	defer func() {
		if r.metrics != nil {
			r.metrics.ResolutionDurationSeconds.Observe(time.Since(start).Seconds())
			r.metrics.ResolutionsTotal.WithLabelValues(outcome).Inc()
		}
	}()

	device, err := r.store.GetDevice(ctx, deviceID)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("credential: resolve for device %s: %w", deviceID, err)
	}

	if device.PreResolvedCredentialID != nil {
		cred, err := r.store.GetCredential(ctx, *device.PreResolvedCredentialID)
		if err != nil {
			outcome = "error"
			return nil, fmt.Errorf("credential: pre-resolved credential %s: %w", *device.PreResolvedCredentialID, err)
		}
		return &Candidates{items: []domain.Credential{cred}}, nil
	}

	matches, err := r.store.ListCredentialsByTags(ctx, device.TagIDs)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("credential: list candidates for device %s: %w", deviceID, err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.ID < b.ID
	})

	if len(matches) == 0 {
		outcome = "exhausted"
		r.logger.Warn("no candidate credentials matched device tags", "device_id", deviceID, "tag_ids", device.TagIDs)
	}

	return &Candidates{items: matches}, nil
}

// RecordOutcome applies the EWMA statistics update of §4.4 after a
// connect attempt. Best-effort: failures here are logged, never
// propagated, since the primary job telemetry path must not block on
// credential bookkeeping.
func (r *Resolver) RecordOutcome(ctx context.Context, credentialID string, success bool, at time.Time) {
	cred, err := r.store.GetCredential(ctx, credentialID)
	if err != nil {
		r.logger.Warn("credential stats update: lookup failed", "credential_id", credentialID, "error", err)
		return
	}

	rate := cred.SuccessRate
	if success {
		rate = (1-successWeight)*rate + successWeight
	} else {
		rate = (1 - successWeight) * rate
	}

	if err := r.store.UpdateCredentialStats(ctx, credentialID, rate, at); err != nil {
		r.logger.Warn("credential stats update: write failed", "credential_id", credentialID, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.SuccessRate.WithLabelValues(credentialID).Set(rate)
	}
}
