// Package ledger is the append-only usage record of every provider
// attempt. It keeps per-provider running totals, a bounded cache of
// recent route results keyed by request id, and optionally forwards
// every attempt to a durable sink.
package ledger

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

// AttemptRecord is one provider attempt, successful or not.
type AttemptRecord struct {
	RequestID        string
	ProviderID       string
	StartedAt        time.Time
	EndedAt          time.Time
	Outcome          transport.Outcome
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

func (r AttemptRecord) LatencyMs() int64 {
	return r.EndedAt.Sub(r.StartedAt).Milliseconds()
}

func (r AttemptRecord) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// RouteRecord is the outcome of one full Route call, including every
// attempt made on its behalf.
type RouteRecord struct {
	RequestID   string
	Strategy    string
	Success     bool
	ProviderID  string // winning provider, empty on exhaustion
	Attempts    []AttemptRecord
	CompletedAt time.Time
}

// ProviderTotals are the cumulative figures for one provider since
// startup.
type ProviderTotals struct {
	Attempts         int
	Successes        int
	PromptTokens     int
	CompletionTokens int
	Cost             float64
}

// Sink receives every appended attempt for durable storage. Append never
// blocks on the sink; implementations queue internally.
type Sink interface {
	Log(rec AttemptRecord)
}

// Ledger is safe for concurrent writers.
type Ledger struct {
	mu      sync.RWMutex
	records []AttemptRecord
	totals  map[string]*ProviderTotals

	recent *lru.Cache[string, RouteRecord]
	sink   Sink
}

// New creates a ledger. recentSize bounds the route-result cache; sink
// may be nil when durable storage is not configured.
func New(recentSize int, sink Sink) (*Ledger, error) {
	if recentSize <= 0 {
		recentSize = 1024
	}
	recent, err := lru.New[string, RouteRecord](recentSize)
	if err != nil {
		return nil, err
	}

	return &Ledger{
		totals: make(map[string]*ProviderTotals),
		recent: recent,
		sink:   sink,
	}, nil
}

// Append records one attempt. Never fails; durable-sink errors are the
// sink's problem, the in-memory record is the source of truth.
func (l *Ledger) Append(rec AttemptRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)

	t := l.totals[rec.ProviderID]
	if t == nil {
		t = &ProviderTotals{}
		l.totals[rec.ProviderID] = t
	}
	t.Attempts++
	if rec.Outcome == transport.OutcomeSuccess {
		t.Successes++
	}
	t.PromptTokens += rec.PromptTokens
	t.CompletionTokens += rec.CompletionTokens
	t.Cost += rec.Cost
	l.mu.Unlock()

	if l.sink != nil {
		l.sink.Log(rec)
	}
}

// RecordRoute caches a completed route result for retrieval by request
// id. The individual attempts are already in the ledger via Append.
func (l *Ledger) RecordRoute(rr RouteRecord) {
	l.recent.Add(rr.RequestID, rr)
}

// Route returns a recently completed route result by request id.
func (l *Ledger) Route(requestID string) (RouteRecord, bool) {
	return l.recent.Get(requestID)
}

// Totals returns the cumulative figures for one provider. Zero value for
// providers with no attempts.
func (l *Ledger) Totals(providerID string) ProviderTotals {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if t := l.totals[providerID]; t != nil {
		return *t
	}
	return ProviderTotals{}
}

// AllTotals returns a copy of every provider's totals.
func (l *Ledger) AllTotals() map[string]ProviderTotals {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]ProviderTotals, len(l.totals))
	for id, t := range l.totals {
		out[id] = *t
	}
	return out
}

// AttemptCount returns how many attempts the ledger holds.
func (l *Ledger) AttemptCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// AttemptsFor returns every recorded attempt for a provider, oldest
// first.
func (l *Ledger) AttemptsFor(providerID string) []AttemptRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []AttemptRecord
	for _, rec := range l.records {
		if rec.ProviderID == providerID {
			out = append(out, rec)
		}
	}
	return out
}
