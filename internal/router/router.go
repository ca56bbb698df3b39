// Package router implements the fallback executor: one Route call walks
// the strategy-ordered provider list, attempting each candidate until
// one succeeds or the attempt budget, candidate list or caller deadline
// runs out.
package router

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/breaker"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/health"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ledger"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/monitoring"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ratelimit"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/strategy"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/utils"
)

const maxHopJitter = 50 * time.Millisecond

// Failure reasons reported on unsuccessful RouteResults.
const (
	ReasonExhausted        = "all_providers_exhausted"
	ReasonDeadlineExceeded = "deadline_exceeded"
)

// Options tunes the fallback executor.
type Options struct {
	DefaultStrategy     strategy.Mode
	MaxProviderAttempts int
	PerAttemptTimeout   time.Duration
}

// RouteRequest is one generation request entering the router.
type RouteRequest struct {
	Prompt            string
	System            string
	MaxTokens         int
	Strategy          strategy.Mode // empty means the configured default
	ExcludedProviders []string

	// Per-call overrides; zero falls back to the configured defaults.
	MaxProviderAttempts int
	PerAttemptTimeout   time.Duration
}

// RouteResult is the outcome of one Route call. Attempts holds every
// network attempt made, in order; skipped providers do not appear.
// TotalLatencyMs is wall-clock for the whole call, inter-hop jitter
// included; TotalCost sums the cost of every attempt, not just the
// winning one.
type RouteResult struct {
	RequestID      string
	Success        bool
	ProviderID     string
	Response       *transport.Response
	Attempts       []ledger.AttemptRecord
	TotalLatencyMs int64
	TotalCost      float64
	FailureReason  string
}

// ProviderHealth is the observability snapshot for one provider.
type ProviderHealth struct {
	Status                   breaker.Status `json:"status"`
	SuccessRate              float64        `json:"success_rate"`
	P50LatencyMs             int64          `json:"p50_latency_ms"`
	TokensConsumedLastMinute int            `json:"tokens_consumed_last_minute"`
}

// Router owns the per-request fallback loop and the shared state it
// consults: breaker, rate limiter, health tracker and ledger.
type Router struct {
	registry *registry.Registry
	invokers map[string]transport.Invoker
	breaker  *breaker.Breaker
	limiter  *ratelimit.Limiter
	health   *health.Tracker
	ledger   *ledger.Ledger
	metrics  *monitoring.Metrics
	logger   *slog.Logger
	opts     Options

	// hopJitter is replaceable so tests run without sleeping.
	hopJitter func() time.Duration
}

// New wires the router and registers every provider with the breaker and
// rate limiter.
func New(
	reg *registry.Registry,
	invokers map[string]transport.Invoker,
	brk *breaker.Breaker,
	limiter *ratelimit.Limiter,
	tracker *health.Tracker,
	ldgr *ledger.Ledger,
	metrics *monitoring.Metrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if opts.DefaultStrategy == "" {
		opts.DefaultStrategy = strategy.QualityFirst
	}
	if opts.MaxProviderAttempts <= 0 {
		opts.MaxProviderAttempts = 3
	}
	if opts.PerAttemptTimeout <= 0 {
		opts.PerAttemptTimeout = 30 * time.Second
	}

	for _, p := range reg.All() {
		brk.Register(p.ID)
		limiter.Register(p.ID, p.MaxRequestsPerMinute)
	}

	return &Router{
		registry: reg,
		invokers: invokers,
		breaker:  brk,
		limiter:  limiter,
		health:   tracker,
		ledger:   ldgr,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
		hopJitter: func() time.Duration {
			return time.Duration(rand.Int63n(int64(maxHopJitter)))
		},
	}
}

// Route runs the fallback loop. Providers are tried sequentially in
// strategy order; rate-limit and half-open skips cost nothing, only
// actual network attempts consume the attempt budget. Exhaustion is a
// normal unsuccessful result, never an error.
func (r *Router) Route(ctx context.Context, req RouteRequest) RouteResult {
	requestID := uuid.NewString()
	startedAt := utils.NowUTC()

	mode := req.Strategy
	if mode == "" {
		mode = r.opts.DefaultStrategy
	}
	maxAttempts := req.MaxProviderAttempts
	if maxAttempts <= 0 {
		maxAttempts = r.opts.MaxProviderAttempts
	}
	attemptTimeout := req.PerAttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = r.opts.PerAttemptTimeout
	}

	candidates := r.availableProviders()
	ordered := strategy.Order(mode, candidates, r.health, req.ExcludedProviders)

	r.logger.Debug("route started",
		"request_id", requestID,
		"strategy", mode,
		"candidates", len(ordered),
	)

	result := RouteResult{RequestID: requestID}
	attempts := 0

	for _, p := range ordered {
		if ctx.Err() != nil {
			result.FailureReason = ReasonDeadlineExceeded
			break
		}
		if attempts >= maxAttempts {
			break
		}

		// A registered provider without an invoker is a wiring bug, not
		// a reason to panic the routing path.
		inv, ok := r.invokers[p.ID]
		if !ok {
			r.metrics.RecordSkip(p.ID, "no_invoker")
			r.logger.Error("provider has no transport adapter, skipping",
				"request_id", requestID,
				"provider", p.ID,
			)
			continue
		}

		// Lazy permit check: only consume from the bucket when the
		// provider is actually next in line. Local exhaustion is a
		// free skip, recorded nowhere but the skip counter.
		if !r.limiter.TryConsume(p.ID) {
			r.metrics.RecordSkip(p.ID, "rate_limited")
			r.logger.Debug("provider skipped, rate limit exhausted",
				"request_id", requestID,
				"provider", p.ID,
			)
			continue
		}

		// A provider that is not CLOSED got here because its cooldown
		// elapsed. Exactly one caller wins the half-open probe slot;
		// everyone else skips without penalty.
		if r.breaker.Status(p.ID) != breaker.StatusClosed {
			if !r.breaker.TryAcquireHalfOpenSlot(p.ID) {
				r.metrics.RecordSkip(p.ID, "probe_in_flight")
				continue
			}
			r.logger.Info("half-open probe",
				"request_id", requestID,
				"provider", p.ID,
			)
		}

		if attempts > 0 {
			time.Sleep(r.hopJitter())
		}
		attempts++

		rec, resp := r.attempt(ctx, requestID, inv, p, req, attemptTimeout)
		result.Attempts = append(result.Attempts, rec)

		if rec.Outcome == transport.OutcomeSuccess {
			result.Success = true
			result.ProviderID = p.ID
			result.Response = resp
			break
		}

		r.logger.Warn("provider attempt failed",
			"request_id", requestID,
			"provider", p.ID,
			"outcome", rec.Outcome,
			"latency_ms", rec.LatencyMs(),
		)
	}

	if !result.Success && result.FailureReason == "" {
		result.FailureReason = ReasonExhausted
	}

	r.finishRoute(mode, startedAt, &result)
	return result
}

// attempt performs one provider invocation with the per-attempt timeout
// and records the classified outcome everywhere it matters.
func (r *Router) attempt(ctx context.Context, requestID string, inv transport.Invoker, p registry.Provider, req RouteRequest, timeout time.Duration) (ledger.AttemptRecord, *transport.Response) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startedAt := utils.NowUTC()
	resp, err := inv.Invoke(attemptCtx, transport.Request{
		Prompt:    req.Prompt,
		System:    req.System,
		MaxTokens: req.MaxTokens,
	})
	endedAt := utils.NowUTC()

	outcome := transport.Classify(err)

	rec := ledger.AttemptRecord{
		RequestID:  requestID,
		ProviderID: p.ID,
		StartedAt:  startedAt,
		EndedAt:    endedAt,
		Outcome:    outcome,
	}
	if resp != nil {
		rec.PromptTokens = resp.PromptTokens
		rec.CompletionTokens = resp.CompletionTokens
		rec.Cost = p.Cost(resp.TotalTokens())
	}

	r.ledger.Append(rec)
	r.health.Record(p.ID, health.Sample{
		Timestamp: endedAt,
		Success:   outcome == transport.OutcomeSuccess,
		LatencyMs: rec.LatencyMs(),
		Tokens:    rec.TotalTokens(),
		Cost:      rec.Cost,
	})
	r.breaker.RecordOutcome(p.ID, outcome)
	if rec.TotalTokens() > 0 {
		r.limiter.ConsumeTokens(p.ID, rec.TotalTokens())
	}
	r.metrics.RecordAttempt(p.ID, string(outcome), endedAt.Sub(startedAt))

	return rec, resp
}

func (r *Router) finishRoute(mode strategy.Mode, startedAt time.Time, result *RouteResult) {
	result.TotalLatencyMs = utils.NowUTC().Sub(startedAt).Milliseconds()
	for _, a := range result.Attempts {
		result.TotalCost += a.Cost
	}

	status := "success"
	if !result.Success {
		status = result.FailureReason
	}
	r.metrics.RecordRoute(string(mode), status)

	rr := ledger.RouteRecord{
		RequestID:   result.RequestID,
		Strategy:    string(mode),
		Success:     result.Success,
		ProviderID:  result.ProviderID,
		Attempts:    result.Attempts,
		CompletedAt: utils.NowUTC(),
	}
	r.ledger.RecordRoute(rr)

	if result.Success {
		r.logger.Info("route completed",
			"request_id", result.RequestID,
			"provider", result.ProviderID,
			"attempts", len(result.Attempts),
			"total_latency_ms", result.TotalLatencyMs,
		)
	} else {
		r.logger.Warn("route failed",
			"request_id", result.RequestID,
			"reason", result.FailureReason,
			"attempts", len(result.Attempts),
		)
	}
}

// availableProviders filters the catalog against breaker state. The
// breaker read is pure; half-open slot claiming happens later, at
// attempt time.
func (r *Router) availableProviders() []registry.Provider {
	all := r.registry.All()
	out := make([]registry.Provider, 0, len(all))
	for _, p := range all {
		if r.breaker.IsAvailable(p.ID) {
			out = append(out, p)
		} else {
			r.metrics.RecordSkip(p.ID, "circuit_open")
		}
	}
	return out
}

// ProviderHealth returns the observability snapshot for every provider.
// Unproven providers report the optimistic default latency, matching
// what the selection strategies assume about them.
func (r *Router) ProviderHealth() map[string]ProviderHealth {
	out := make(map[string]ProviderHealth, r.registry.Count())
	for _, p := range r.registry.All() {
		p50, ok := r.health.P50LatencyMs(p.ID)
		if !ok {
			p50 = strategy.OptimisticLatencyMs
		}
		out[p.ID] = ProviderHealth{
			Status:                   r.breaker.Status(p.ID),
			SuccessRate:              r.health.SuccessRate(p.ID),
			P50LatencyMs:             p50,
			TokensConsumedLastMinute: r.limiter.TokensLastMinute(p.ID),
		}
	}
	return out
}

// Registry exposes the provider catalog for the HTTP surface.
func (r *Router) Registry() *registry.Registry {
	return r.registry
}

// Ledger exposes the usage ledger for the HTTP surface.
func (r *Router) Ledger() *ledger.Ledger {
	return r.ledger
}
