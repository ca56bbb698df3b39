// Package ratelimit provides per-provider request rate limiting.
//
// Each provider gets a token bucket sized at its max_requests_per_minute,
// refilled continuously at capacity/60 permits per second. Running out of
// permits is expected behavior under load: callers skip the provider for
// the current request without recording a failure anywhere.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type tokenUsage struct {
	timestamp time.Time
	count     int
}

type providerLimiter struct {
	bucket *rate.Limiter

	mu     sync.Mutex
	tokens []tokenUsage // LLM tokens consumed, for the observability surface
}

// Limiter holds one token bucket per provider.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*providerLimiter
}

func New() *Limiter {
	return &Limiter{
		limiters: make(map[string]*providerLimiter),
	}
}

// Register creates the bucket for a provider with the given
// requests-per-minute capacity. Idempotent; re-registering replaces the
// bucket.
func (l *Limiter) Register(providerID string, requestsPerMinute int) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiters[providerID] = &providerLimiter{
		bucket: rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
	}
}

func (l *Limiter) get(providerID string) *providerLimiter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limiters[providerID]
}

// TryConsume atomically takes one permit if available. Unregistered
// providers are never allowed; registration is part of router startup.
func (l *Limiter) TryConsume(providerID string) bool {
	pl := l.get(providerID)
	if pl == nil {
		return false
	}
	return pl.bucket.Allow()
}

// ConsumeTokens records LLM token usage for a provider. This feeds the
// tokens-consumed-last-minute figure; it does not affect the permit
// bucket.
func (l *Limiter) ConsumeTokens(providerID string, tokenCount int) {
	pl := l.get(providerID)
	if pl == nil || tokenCount <= 0 {
		return
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	pl.tokens = append(pl.tokens, tokenUsage{timestamp: time.Now(), count: tokenCount})
}

// TokensLastMinute returns the LLM tokens consumed by a provider over the
// trailing minute.
func (l *Limiter) TokensLastMinute(providerID string) int {
	pl := l.get(providerID)
	if pl == nil {
		return 0
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	return cleanOldTokens(pl)
}

// cleanOldTokens drops usage entries older than one minute and returns the
// total of the remaining ones. Must be called with pl.mu held.
func cleanOldTokens(pl *providerLimiter) int {
	oneMinuteAgo := time.Now().Add(-time.Minute)

	valid := pl.tokens[:0]
	count := 0
	for _, tu := range pl.tokens {
		if tu.timestamp.After(oneMinuteAgo) {
			valid = append(valid, tu)
			count += tu.count
		}
	}
	pl.tokens = valid

	return count
}
