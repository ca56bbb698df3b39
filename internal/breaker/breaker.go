// Package breaker implements the per-provider failure-isolation state
// machine. Each provider moves between CLOSED, OPEN and HALF_OPEN based on
// attempt outcomes; an OPEN provider is excluded from candidate lists until
// its cooldown elapses, after which a single half-open probe decides
// whether it recovers.
package breaker

import (
	"sync"
	"time"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/utils"
)

// Status is the circuit state of one provider.
type Status string

const (
	StatusClosed   Status = "closed"
	StatusOpen     Status = "open"
	StatusHalfOpen Status = "half_open"
)

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
	DefaultCooldownMax      = 600 * time.Second
)

// state is the mutable circuit record for one provider. All fields are
// guarded by mu; the lock is only ever held for the state transition,
// never across a network call.
type state struct {
	mu                  sync.Mutex
	status              Status
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
	trips               int // consecutive OPEN transitions without a recovery, drives backoff
}

// Breaker tracks circuit state for every registered provider.
type Breaker struct {
	mu     sync.RWMutex
	states map[string]*state

	failureThreshold int
	cooldown         time.Duration
	cooldownMax      time.Duration
}

// New creates a breaker. Zero values fall back to the defaults
// (threshold 5, cooldown 60s doubling up to 600s).
func New(failureThreshold int, cooldown, cooldownMax time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if cooldownMax <= 0 {
		cooldownMax = DefaultCooldownMax
	}

	return &Breaker{
		states:           make(map[string]*state),
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		cooldownMax:      cooldownMax,
	}
}

// Register creates the circuit record for a provider. Idempotent.
func (b *Breaker) Register(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.states[providerID]; !exists {
		b.states[providerID] = &state{status: StatusClosed}
	}
}

func (b *Breaker) get(providerID string) *state {
	b.mu.RLock()
	st := b.states[providerID]
	b.mu.RUnlock()
	if st != nil {
		return st
	}

	// Unknown providers are registered on first touch so callers don't
	// have to care about registration order.
	b.mu.Lock()
	defer b.mu.Unlock()
	if st = b.states[providerID]; st == nil {
		st = &state{status: StatusClosed}
		b.states[providerID] = st
	}
	return st
}

// cooldownFor returns the backed-off cooldown for the given trip count:
// cooldown * 2^(trips-1), capped at cooldownMax.
func (b *Breaker) cooldownFor(trips int) time.Duration {
	d := b.cooldown
	for i := 1; i < trips; i++ {
		d *= 2
		if d >= b.cooldownMax {
			return b.cooldownMax
		}
	}
	if d > b.cooldownMax {
		return b.cooldownMax
	}
	return d
}

// IsAvailable reports whether the provider may appear in a candidate list.
// Read-only: an OPEN provider whose cooldown has elapsed reads as available
// here, but the actual OPEN -> HALF_OPEN transition happens in
// TryAcquireHalfOpenSlot when an executor claims the probe.
func (b *Breaker) IsAvailable(providerID string) bool {
	st := b.get(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.status {
	case StatusClosed:
		return true
	case StatusOpen:
		return time.Since(st.openedAt) >= b.cooldownFor(st.trips)
	case StatusHalfOpen:
		return !st.probeInFlight
	}
	return false
}

// Status returns the provider's current circuit status.
func (b *Breaker) Status(providerID string) Status {
	st := b.get(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

// ConsecutiveFailures returns the provider's current failure streak.
func (b *Breaker) ConsecutiveFailures(providerID string) int {
	st := b.get(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.consecutiveFailures
}

// TryAcquireHalfOpenSlot atomically claims the single probe slot of a
// provider that is HALF_OPEN, or OPEN with an elapsed cooldown (in which
// case the circuit moves to HALF_OPEN here). Returns false when the
// provider is CLOSED (no probe needed), still cooling down, or another
// probe is already in flight.
func (b *Breaker) TryAcquireHalfOpenSlot(providerID string) bool {
	st := b.get(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch st.status {
	case StatusOpen:
		if time.Since(st.openedAt) < b.cooldownFor(st.trips) {
			return false
		}
		st.status = StatusHalfOpen
		st.probeInFlight = true
		return true

	case StatusHalfOpen:
		if st.probeInFlight {
			return false
		}
		st.probeInFlight = true
		return true
	}

	return false
}

// RecordOutcome applies one attempt outcome to the provider's circuit.
// Only the fallback executor calls this; probes that were skipped never
// record anything, which keeps the HALF_OPEN bookkeeping single-writer.
func (b *Breaker) RecordOutcome(providerID string, outcome transport.Outcome) {
	st := b.get(providerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	switch {
	case outcome == transport.OutcomeSuccess:
		st.status = StatusClosed
		st.consecutiveFailures = 0
		st.trips = 0
		st.probeInFlight = false

	case outcome == transport.OutcomeAuthError:
		// Bad credentials will not self-heal by retrying: open
		// immediately, skipping the failure-threshold grace period.
		b.trip(st)

	case !outcome.CountsTowardBreaker():
		// Rate limiting and malformed single responses are not provider
		// breakage. Release the probe slot if this was a probe so the
		// provider can be probed again.
		if st.status == StatusHalfOpen {
			st.probeInFlight = false
		}

	case st.status == StatusHalfOpen:
		// Probe failed: back to OPEN with a doubled cooldown.
		b.trip(st)

	default:
		st.consecutiveFailures++
		if st.consecutiveFailures >= b.failureThreshold {
			b.trip(st)
		}
	}
}

// trip moves the circuit to OPEN. Caller holds st.mu.
func (b *Breaker) trip(st *state) {
	st.status = StatusOpen
	st.openedAt = utils.NowUTC()
	st.probeInFlight = false
	st.trips++
}

// Snapshot returns the status of every registered provider.
func (b *Breaker) Snapshot() map[string]Status {
	b.mu.RLock()
	ids := make([]string, 0, len(b.states))
	for id := range b.states {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	out := make(map[string]Status, len(ids))
	for _, id := range ids {
		out[id] = b.Status(id)
	}
	return out
}
