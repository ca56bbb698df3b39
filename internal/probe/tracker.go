// Package probe runs background reachability checks against provider
// endpoints. Probe results are observational: they feed logs and the
// reachability gauge but never touch circuit breaker state, which is
// driven by real attempt outcomes only.
package probe

import (
	"sync"
	"time"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/utils"
)

// Tracker keeps the latest reachability status per provider.
// Uses mutex for thread-safe access.
type Tracker struct {
	mu                   sync.RWMutex
	reachable            map[string]bool
	failureCount         map[string]int
	lastStatusChangeTime map[string]time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		reachable:            make(map[string]bool),
		failureCount:         make(map[string]int),
		lastStatusChangeTime: make(map[string]time.Time),
	}
}

// RecordSuccess marks a provider endpoint as reachable and resets its
// failure counter. Returns true when this is a transition from
// unreachable.
func (t *Tracker) RecordSuccess(providerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasReachable, known := t.reachable[providerID]
	t.reachable[providerID] = true
	t.failureCount[providerID] = 0

	if known && !wasReachable {
		t.lastStatusChangeTime[providerID] = utils.NowUTC()
		return true
	}
	return false
}

// RecordFailure marks a provider endpoint as unreachable. Returns true
// when this is a transition from reachable.
func (t *Tracker) RecordFailure(providerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasReachable := t.reachable[providerID]
	t.reachable[providerID] = false
	t.failureCount[providerID]++

	if wasReachable {
		t.lastStatusChangeTime[providerID] = utils.NowUTC()
		return true
	}
	return false
}

// IsReachable reports the last probe result. Unknown providers are
// assumed reachable (fail-open).
func (t *Tracker) IsReachable(providerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	reachable, known := t.reachable[providerID]
	if !known {
		return true
	}
	return reachable
}

// FailureCount returns the consecutive probe failures for a provider.
func (t *Tracker) FailureCount(providerID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.failureCount[providerID]
}

// UnreachableIDs returns the providers currently failing probes.
func (t *Tracker) UnreachableIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0)
	for id, ok := range t.reachable {
		if !ok {
			out = append(out, id)
		}
	}
	return out
}
