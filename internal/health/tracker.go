// Package health maintains per-provider rolling attempt statistics used by
// the selection strategies: success rate, median latency and average cost
// over a bounded window of recent attempts.
package health

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindowSize bounds the rolling sample window per provider.
const DefaultWindowSize = 50

// Sample is one attempt observation.
type Sample struct {
	Timestamp time.Time
	Success   bool
	LatencyMs int64
	Tokens    int
	Cost      float64
}

// window is a bounded FIFO of samples for one provider.
type window struct {
	mu      sync.Mutex
	samples []Sample
	bound   int
}

func (w *window) add(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, s)
	if len(w.samples) > w.bound {
		// Evict oldest. Copy down rather than re-slice so the backing
		// array does not grow without bound.
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:w.bound]
	}
}

func (w *window) snapshot() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Tracker owns the rolling windows for all providers.
type Tracker struct {
	mu      sync.RWMutex
	windows map[string]*window
	bound   int
}

func NewTracker(windowSize int) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Tracker{
		windows: make(map[string]*window),
		bound:   windowSize,
	}
}

func (t *Tracker) get(providerID string) *window {
	t.mu.RLock()
	w := t.windows[providerID]
	t.mu.RUnlock()
	if w != nil {
		return w
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if w = t.windows[providerID]; w == nil {
		w = &window{bound: t.bound}
		t.windows[providerID] = w
	}
	return w
}

// Record appends a sample to the provider's window, evicting the oldest
// once the window is full.
func (t *Tracker) Record(providerID string, s Sample) {
	t.get(providerID).add(s)
}

// SuccessRate returns the fraction of recent attempts that succeeded.
// A provider with no samples yet reports 1.0 so untested providers are
// not penalized by the selection strategies.
func (t *Tracker) SuccessRate(providerID string) float64 {
	samples := t.get(providerID).snapshot()
	if len(samples) == 0 {
		return 1.0
	}

	ok := 0
	for _, s := range samples {
		if s.Success {
			ok++
		}
	}
	return float64(ok) / float64(len(samples))
}

// P50LatencyMs returns the median attempt latency. ok is false when the
// provider has no samples; callers substitute their optimistic default.
func (t *Tracker) P50LatencyMs(providerID string) (int64, bool) {
	samples := t.get(providerID).snapshot()
	if len(samples) == 0 {
		return 0, false
	}

	latencies := make([]int64, len(samples))
	for i, s := range samples {
		latencies[i] = s.LatencyMs
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	return latencies[len(latencies)/2], true
}

// AvgCostPerRequest returns the mean cost across the window, 0 with no
// samples.
func (t *Tracker) AvgCostPerRequest(providerID string) float64 {
	samples := t.get(providerID).snapshot()
	if len(samples) == 0 {
		return 0
	}

	total := 0.0
	for _, s := range samples {
		total += s.Cost
	}
	return total / float64(len(samples))
}

// SampleCount returns how many samples the provider's window holds.
func (t *Tracker) SampleCount(providerID string) int {
	return len(t.get(providerID).snapshot())
}
