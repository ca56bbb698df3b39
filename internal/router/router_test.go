package router

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/breaker"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/config"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/health"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ledger"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/monitoring"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ratelimit"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/strategy"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/testhelpers"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

// fakeInvoker counts calls and delegates to a configurable function.
type fakeInvoker struct {
	calls int64
	fn    func(ctx context.Context) (*transport.Response, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, _ transport.Request) (*transport.Response, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.fn(ctx)
}

func (f *fakeInvoker) callCount() int64 {
	return atomic.LoadInt64(&f.calls)
}

func succeeding() *fakeInvoker {
	return &fakeInvoker{fn: func(ctx context.Context) (*transport.Response, error) {
		return &transport.Response{Text: "ok", PromptTokens: 10, CompletionTokens: 5}, nil
	}}
}

func failingWith(err error) *fakeInvoker {
	return &fakeInvoker{fn: func(ctx context.Context) (*transport.Response, error) {
		return nil, err
	}}
}

type providerSpec struct {
	id      string
	cost    float64
	quality float64
	rpm     int
	invoker *fakeInvoker
}

type fixture struct {
	router   *Router
	breaker  *breaker.Breaker
	limiter  *ratelimit.Limiter
	health   *health.Tracker
	ledger   *ledger.Ledger
	invokers map[string]*fakeInvoker
}

func newFixture(t *testing.T, opts Options, specs ...providerSpec) *fixture {
	t.Helper()
	t.Setenv("ROUTER_TEST_KEY", "test-credential")

	entries := make([]config.ProviderConfig, 0, len(specs))
	invokers := make(map[string]transport.Invoker, len(specs))
	fakes := make(map[string]*fakeInvoker, len(specs))
	for _, s := range specs {
		rpm := s.rpm
		if rpm == 0 {
			rpm = 1000
		}
		entries = append(entries, config.ProviderConfig{
			ID:                   s.id,
			Type:                 config.ProviderTypeOpenAI,
			Endpoint:             "https://example.test",
			Model:                "test-model",
			CredentialEnvVar:     "ROUTER_TEST_KEY",
			CostPer1KTokens:      s.cost,
			DeclaredQualityScore: s.quality,
			MaxRequestsPerMinute: rpm,
			Enabled:              true,
		})
		invokers[s.id] = s.invoker
		fakes[s.id] = s.invoker
	}

	reg, err := registry.New(entries)
	require.NoError(t, err)

	brk := breaker.New(5, 50*time.Millisecond, time.Second)
	limiter := ratelimit.New()
	tracker := health.NewTracker(50)
	ldgr, err := ledger.New(64, nil)
	require.NoError(t, err)

	r := New(reg, invokers, brk, limiter, tracker, ldgr,
		monitoring.New(false), testhelpers.NewTestLogger(), opts)
	r.hopJitter = func() time.Duration { return 0 }

	return &fixture{
		router:   r,
		breaker:  brk,
		limiter:  limiter,
		health:   tracker,
		ledger:   ldgr,
		invokers: fakes,
	}
}

func TestRoute_FirstProviderSucceeds(t *testing.T) {
	fx := newFixture(t, Options{},
		providerSpec{id: "a", quality: 0.9, invoker: succeeding()},
		providerSpec{id: "b", quality: 0.5, invoker: succeeding()},
	)

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	assert.True(t, result.Success)
	assert.Equal(t, "a", result.ProviderID)
	assert.Equal(t, "ok", result.Response.Text)
	assert.Len(t, result.Attempts, 1)
	assert.NotEmpty(t, result.RequestID)
	assert.Equal(t, int64(0), fx.invokers["b"].callCount())
}

func TestRoute_CostOptimizedFallback(t *testing.T) {
	// Z is cheapest but times out, Y is next and succeeds, X stays idle.
	fx := newFixture(t, Options{DefaultStrategy: strategy.CostOptimized},
		providerSpec{id: "X", cost: 0.03, invoker: succeeding()},
		providerSpec{id: "Y", cost: 0.002, invoker: succeeding()},
		providerSpec{id: "Z", cost: 0.0001, invoker: failingWith(context.DeadlineExceeded)},
	)

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	require.True(t, result.Success)
	assert.Equal(t, "Y", result.ProviderID)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, "Z", result.Attempts[0].ProviderID)
	assert.Equal(t, transport.OutcomeTimeout, result.Attempts[0].Outcome)
	assert.Equal(t, "Y", result.Attempts[1].ProviderID)
	assert.Equal(t, int64(0), fx.invokers["X"].callCount())
}

func TestRoute_MaxAttemptsBound(t *testing.T) {
	serverErr := &transport.StatusError{Code: 500, Message: "boom"}
	fx := newFixture(t, Options{MaxProviderAttempts: 3},
		providerSpec{id: "p1", quality: 0.9, invoker: failingWith(serverErr)},
		providerSpec{id: "p2", quality: 0.8, invoker: failingWith(serverErr)},
		providerSpec{id: "p3", quality: 0.7, invoker: failingWith(serverErr)},
		providerSpec{id: "p4", quality: 0.6, invoker: failingWith(serverErr)},
		providerSpec{id: "p5", quality: 0.5, invoker: failingWith(serverErr)},
	)

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	assert.False(t, result.Success)
	assert.Equal(t, ReasonExhausted, result.FailureReason)
	assert.Len(t, result.Attempts, 3)
	assert.Equal(t, int64(0), fx.invokers["p4"].callCount())
	assert.Equal(t, int64(0), fx.invokers["p5"].callCount())
}

func TestRoute_PerRequestAttemptBudget(t *testing.T) {
	// Two concurrent requests carry their own budgets against the same
	// failing catalog; each gets exactly as many attempts as it asked for.
	serverErr := &transport.StatusError{Code: 500, Message: "boom"}
	fx := newFixture(t, Options{MaxProviderAttempts: 5},
		providerSpec{id: "p1", quality: 0.9, invoker: failingWith(serverErr)},
		providerSpec{id: "p2", quality: 0.8, invoker: failingWith(serverErr)},
		providerSpec{id: "p3", quality: 0.7, invoker: failingWith(serverErr)},
		providerSpec{id: "p4", quality: 0.6, invoker: failingWith(serverErr)},
	)

	results := make(chan int, 2)
	for _, budget := range []int{1, 3} {
		go func(budget int) {
			res := fx.router.Route(context.Background(), RouteRequest{
				Prompt:              "hi",
				MaxProviderAttempts: budget,
			})
			results <- len(res.Attempts)
		}(budget)
	}

	got := map[int]bool{<-results: true, <-results: true}
	assert.True(t, got[1], "budget-1 request made one attempt")
	assert.True(t, got[3], "budget-3 request made three attempts")
}

func TestRoute_PerRequestAttemptTimeout(t *testing.T) {
	slow := &fakeInvoker{fn: func(ctx context.Context) (*transport.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	fx := newFixture(t, Options{MaxProviderAttempts: 1, PerAttemptTimeout: time.Hour},
		providerSpec{id: "a", invoker: slow},
	)

	start := time.Now()
	result := fx.router.Route(context.Background(), RouteRequest{
		Prompt:            "hi",
		PerAttemptTimeout: 20 * time.Millisecond,
	})

	assert.False(t, result.Success)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, transport.OutcomeTimeout, result.Attempts[0].Outcome)
	assert.Less(t, time.Since(start), time.Second, "request timeout overrides the configured one")
}

func TestRoute_ResultTotals(t *testing.T) {
	serverErr := &transport.StatusError{Code: 500, Message: "boom"}
	fx := newFixture(t, Options{},
		providerSpec{id: "a", quality: 0.9, cost: 0.002, invoker: failingWith(serverErr)},
		providerSpec{id: "b", quality: 0.5, cost: 0.002, invoker: succeeding()},
	)

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	require.True(t, result.Success)
	require.Len(t, result.Attempts, 2)
	assert.GreaterOrEqual(t, result.TotalLatencyMs, int64(0))
	// The failed attempt returned no usage, so the total is the winning
	// attempt's cost alone.
	assert.InDelta(t, 15.0/1000.0*0.002, result.TotalCost, 1e-9)
}

func TestRoute_MissingInvokerSkipped(t *testing.T) {
	fx := newFixture(t, Options{},
		providerSpec{id: "a", quality: 0.9, invoker: succeeding()},
		providerSpec{id: "b", quality: 0.5, invoker: succeeding()},
	)
	delete(fx.router.invokers, "a")

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	require.True(t, result.Success)
	assert.Equal(t, "b", result.ProviderID)
	assert.Len(t, result.Attempts, 1)
}

func TestRoute_AllBreakersOpen_NoNetworkCall(t *testing.T) {
	fx := newFixture(t, Options{},
		providerSpec{id: "a", invoker: succeeding()},
		providerSpec{id: "b", invoker: succeeding()},
	)

	for _, id := range []string{"a", "b"} {
		fx.breaker.RecordOutcome(id, transport.OutcomeAuthError)
	}

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	assert.False(t, result.Success)
	assert.Equal(t, ReasonExhausted, result.FailureReason)
	assert.Empty(t, result.Attempts)
	assert.Equal(t, int64(0), fx.invokers["a"].callCount())
	assert.Equal(t, int64(0), fx.invokers["b"].callCount())
}

func TestRoute_RateLimitSkipCostsNothing(t *testing.T) {
	// "a" ranks first but has a drained bucket; the skip must not count
	// against the attempt budget or appear in the attempt list.
	fx := newFixture(t, Options{MaxProviderAttempts: 1},
		providerSpec{id: "a", quality: 0.9, rpm: 1, invoker: succeeding()},
		providerSpec{id: "b", quality: 0.5, invoker: succeeding()},
	)

	for fx.limiter.TryConsume("a") {
	}

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	require.True(t, result.Success)
	assert.Equal(t, "b", result.ProviderID)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, int64(0), fx.invokers["a"].callCount())
}

func TestRoute_ExcludedProviders(t *testing.T) {
	fx := newFixture(t, Options{},
		providerSpec{id: "a", quality: 0.9, invoker: succeeding()},
		providerSpec{id: "b", quality: 0.5, invoker: succeeding()},
	)

	result := fx.router.Route(context.Background(), RouteRequest{
		Prompt:            "hi",
		ExcludedProviders: []string{"a"},
	})

	require.True(t, result.Success)
	assert.Equal(t, "b", result.ProviderID)
	assert.Equal(t, int64(0), fx.invokers["a"].callCount())
}

func TestRoute_CallerDeadlineStopsLoop(t *testing.T) {
	slow := &fakeInvoker{fn: func(ctx context.Context) (*transport.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	fx := newFixture(t, Options{},
		providerSpec{id: "a", quality: 0.9, invoker: slow},
		providerSpec{id: "b", quality: 0.5, invoker: succeeding()},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result := fx.router.Route(ctx, RouteRequest{Prompt: "hi"})

	assert.False(t, result.Success)
	assert.Equal(t, ReasonDeadlineExceeded, result.FailureReason)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, transport.OutcomeTimeout, result.Attempts[0].Outcome)
	assert.Equal(t, int64(0), fx.invokers["b"].callCount(), "no provider tried after the deadline")
}

func TestRoute_HalfOpenSingleProbe(t *testing.T) {
	release := make(chan struct{})
	blocking := &fakeInvoker{fn: func(ctx context.Context) (*transport.Response, error) {
		<-release
		return &transport.Response{Text: "ok", PromptTokens: 1, CompletionTokens: 1}, nil
	}}
	fx := newFixture(t, Options{}, providerSpec{id: "a", invoker: blocking})

	// Trip the breaker, then wait out the cooldown.
	fx.breaker.RecordOutcome("a", transport.OutcomeAuthError)
	time.Sleep(60 * time.Millisecond)

	const callers = 8
	results := make(chan RouteResult, callers)
	for i := 0; i < callers; i++ {
		go func() {
			results <- fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})
		}()
	}

	// While the probe is held in flight, every other caller must skip
	// the provider and exhaust.
	for i := 0; i < callers-1; i++ {
		res := <-results
		assert.False(t, res.Success)
		assert.Equal(t, ReasonExhausted, res.FailureReason)
		assert.Empty(t, res.Attempts)
	}

	close(release)
	winner := <-results
	assert.True(t, winner.Success)
	assert.Equal(t, "a", winner.ProviderID)

	assert.Equal(t, int64(1), blocking.callCount(), "exactly one caller probes the half-open provider")
	assert.Equal(t, breaker.StatusClosed, fx.breaker.Status("a"), "successful probe closes the circuit")
}

func TestRoute_SuccessUpdatesLedgerAndHealth(t *testing.T) {
	fx := newFixture(t, Options{}, providerSpec{id: "a", cost: 0.002, invoker: succeeding()})

	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})
	require.True(t, result.Success)

	totals := fx.ledger.Totals("a")
	assert.Equal(t, 1, totals.Attempts)
	assert.Equal(t, 1, totals.Successes)
	assert.Equal(t, 10, totals.PromptTokens)
	assert.Equal(t, 5, totals.CompletionTokens)
	assert.InDelta(t, 15.0/1000.0*0.002, totals.Cost, 1e-9)

	assert.Equal(t, 1.0, fx.health.SuccessRate("a"))
	assert.Equal(t, 15, fx.limiter.TokensLastMinute("a"))

	rr, ok := fx.ledger.Route(result.RequestID)
	require.True(t, ok)
	assert.True(t, rr.Success)
	assert.Equal(t, "a", rr.ProviderID)
}

func TestRoute_FailureStreakOpensBreaker(t *testing.T) {
	serverErr := &transport.StatusError{Code: 503, Message: "down"}
	fx := newFixture(t, Options{MaxProviderAttempts: 1},
		providerSpec{id: "a", invoker: failingWith(serverErr)},
	)

	for i := 0; i < 5; i++ {
		fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})
	}

	assert.Equal(t, breaker.StatusOpen, fx.breaker.Status("a"))

	// With the only provider open, the next route makes no network call.
	before := fx.invokers["a"].callCount()
	result := fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})
	assert.False(t, result.Success)
	assert.Equal(t, before, fx.invokers["a"].callCount())
}

func TestProviderHealth(t *testing.T) {
	fx := newFixture(t, Options{},
		providerSpec{id: "a", invoker: succeeding()},
		providerSpec{id: "b", invoker: succeeding()},
	)

	fx.router.Route(context.Background(), RouteRequest{Prompt: "hi"})

	snap := fx.router.ProviderHealth()
	require.Contains(t, snap, "a")
	require.Contains(t, snap, "b")

	assert.Equal(t, breaker.StatusClosed, snap["a"].Status)
	assert.Equal(t, 1.0, snap["a"].SuccessRate)
	assert.Equal(t, 15, snap["a"].TokensConsumedLastMinute)

	// "b" has never been tried and reports the optimistic default.
	assert.Equal(t, 1.0, snap["b"].SuccessRate)
	assert.Equal(t, strategy.OptimisticLatencyMs, snap["b"].P50LatencyMs)
	assert.Equal(t, 0, snap["b"].TokensConsumedLastMinute)
}
