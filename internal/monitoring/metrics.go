package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RouteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_router_route_requests_total",
			Help: "Total number of route requests",
		},
		[]string{"strategy", "status"},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_router_attempts_total",
			Help: "Total number of provider attempts by outcome",
		},
		[]string{"provider", "outcome"},
	)

	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_router_attempt_duration_seconds",
			Help:    "Provider attempt duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_router_circuit_state",
			Help: "Circuit breaker state per provider (0 = closed, 1 = half_open, 2 = open)",
		},
		[]string{"provider"},
	)

	ProviderSuccessRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_router_provider_success_rate",
			Help: "Rolling success rate per provider",
		},
		[]string{"provider"},
	)

	ProviderTokensLastMinute = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_router_provider_tokens_last_minute",
			Help: "LLM tokens consumed per provider over the trailing minute",
		},
		[]string{"provider"},
	)

	ProviderReachable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_router_provider_reachable",
			Help: "Endpoint reachability per provider (1 = reachable, 0 = unreachable)",
		},
		[]string{"provider"},
	)

	SelectionSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_router_selection_skipped_total",
			Help: "Total number of times a provider was skipped during selection",
		},
		[]string{"provider", "reason"},
	)
)

type Metrics struct {
	enabled bool
}

func New(enabled bool) *Metrics {
	return &Metrics{
		enabled: enabled,
	}
}

func (m *Metrics) isEnabled() bool {
	return m.enabled
}

func (m *Metrics) RecordRoute(strategy, status string) {
	if !m.isEnabled() {
		return
	}
	RouteRequestsTotal.WithLabelValues(strategy, status).Inc()
}

func (m *Metrics) RecordAttempt(provider, outcome string, duration time.Duration) {
	if !m.isEnabled() {
		return
	}
	AttemptsTotal.WithLabelValues(provider, outcome).Inc()
	AttemptDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordSkip(provider, reason string) {
	if !m.isEnabled() {
		return
	}
	SelectionSkippedTotal.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) UpdateCircuitState(provider string, state int) {
	if !m.isEnabled() {
		return
	}
	CircuitState.WithLabelValues(provider).Set(float64(state))
}

func (m *Metrics) UpdateSuccessRate(provider string, rate float64) {
	if !m.isEnabled() {
		return
	}
	ProviderSuccessRate.WithLabelValues(provider).Set(rate)
}

func (m *Metrics) UpdateTokensLastMinute(provider string, tokens int) {
	if !m.isEnabled() {
		return
	}
	ProviderTokensLastMinute.WithLabelValues(provider).Set(float64(tokens))
}

func (m *Metrics) UpdateReachability(provider string, reachable bool) {
	if !m.isEnabled() {
		return
	}
	value := 0.0
	if reachable {
		value = 1.0
	}
	ProviderReachable.WithLabelValues(provider).Set(value)
}
