// Package strategy orders candidate providers for a route request.
//
// Ordering is a pure function of the provider catalog and the current
// health statistics: no locks, no side effects. The router filters the
// result against breaker and rate-limiter state afterwards.
package strategy

import (
	"fmt"
	"sort"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
)

// Mode selects the ranking applied to candidate providers.
type Mode string

const (
	// QualityFirst ranks by declared_quality_score weighted by the
	// observed success rate, best first.
	QualityFirst Mode = "quality_first"

	// SpeedFirst ranks by observed p50 latency, fastest first.
	SpeedFirst Mode = "speed_first"

	// CostOptimized ranks by declared cost per 1k tokens, cheapest first.
	CostOptimized Mode = "cost_optimized"
)

// OptimisticLatencyMs stands in for the p50 of a provider with no samples
// yet, so unproven providers get a fair shot under speed_first without
// jumping the queue over providers measured faster.
const OptimisticLatencyMs int64 = 1000

// ParseMode validates a strategy name from config or a request body.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case QualityFirst, SpeedFirst, CostOptimized:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// Stats is the read-only view of health statistics the rankings need.
// Implemented by health.Tracker.
type Stats interface {
	SuccessRate(providerID string) float64
	P50LatencyMs(providerID string) (int64, bool)
}

// Order returns the candidates ranked for the given mode, excluding any
// ids in excluded. The input slice is not modified. Ties break on
// priority ascending, then id lexicographically, so ordering is fully
// deterministic.
func Order(mode Mode, candidates []registry.Provider, stats Stats, excluded []string) []registry.Provider {
	skip := make(map[string]bool, len(excluded))
	for _, id := range excluded {
		skip[id] = true
	}

	out := make([]registry.Provider, 0, len(candidates))
	for _, p := range candidates {
		if !skip[p.ID] {
			out = append(out, p)
		}
	}

	less := lessFunc(mode, stats)
	sort.SliceStable(out, func(i, j int) bool {
		if c := less(out[i], out[j]); c != 0 {
			return c < 0
		}
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// lessFunc returns a three-way comparison for the mode: negative when a
// ranks ahead of b, zero when the tie-break chain decides.
func lessFunc(mode Mode, stats Stats) func(a, b registry.Provider) int {
	switch mode {
	case SpeedFirst:
		return func(a, b registry.Provider) int {
			return compareInt64(effectiveP50(stats, a.ID), effectiveP50(stats, b.ID))
		}
	case CostOptimized:
		return func(a, b registry.Provider) int {
			return compareFloat(a.CostPer1KTokens, b.CostPer1KTokens)
		}
	default: // QualityFirst
		return func(a, b registry.Provider) int {
			// Higher effective quality ranks first.
			return compareFloat(effectiveQuality(stats, b), effectiveQuality(stats, a))
		}
	}
}

func effectiveQuality(stats Stats, p registry.Provider) float64 {
	return p.DeclaredQualityScore * stats.SuccessRate(p.ID)
}

func effectiveP50(stats Stats, id string) int64 {
	if p50, ok := stats.P50LatencyMs(id); ok {
		return p50
	}
	return OptimisticLatencyMs
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
