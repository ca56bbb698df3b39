package router

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/ledger"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/strategy"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

// routeRequestBody is the JSON shape of POST /v1/route. The attempt
// budget and timeout are optional per-request overrides of the
// configured defaults.
type routeRequestBody struct {
	Prompt              string   `json:"prompt"`
	System              string   `json:"system,omitempty"`
	MaxTokens           int      `json:"max_tokens,omitempty"`
	Strategy            string   `json:"strategy,omitempty"`
	ExcludedProviders   []string `json:"excluded_providers,omitempty"`
	MaxProviderAttempts int      `json:"max_provider_attempts,omitempty"`
	PerAttemptTimeoutMs int64    `json:"per_attempt_timeout_ms,omitempty"`
}

type attemptBody struct {
	ProviderID string            `json:"provider_id"`
	Outcome    transport.Outcome `json:"outcome"`
	LatencyMs  int64             `json:"latency_ms"`
	Tokens     int               `json:"tokens,omitempty"`
	Cost       float64           `json:"cost,omitempty"`
}

type routeResponseBody struct {
	RequestID      string        `json:"request_id"`
	Success        bool          `json:"success"`
	ProviderID     string        `json:"provider_id,omitempty"`
	Text           string        `json:"text,omitempty"`
	PromptTokens   int           `json:"prompt_tokens,omitempty"`
	OutputTokens   int           `json:"completion_tokens,omitempty"`
	Attempts       []attemptBody `json:"attempts"`
	TotalLatencyMs int64         `json:"total_latency_ms"`
	TotalCost      float64       `json:"total_cost"`
	FailureReason  string        `json:"failure_reason,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler is the HTTP surface over the router: routing, the provider
// observability snapshot and the health check.
type Handler struct {
	router     *Router
	healthPath string
	logger     *slog.Logger
	mux        *http.ServeMux
}

func NewHandler(r *Router, healthPath string, logger *slog.Logger) *Handler {
	h := &Handler{
		router:     r,
		healthPath: healthPath,
		logger:     logger,
		mux:        http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/route", h.handleRoute)
	h.mux.HandleFunc("GET /v1/providers", h.handleProviders)
	h.mux.HandleFunc("GET "+healthPath, h.handleHealth)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleRoute(w http.ResponseWriter, r *http.Request) {
	var body routeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Debug("route request rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body"})
		return
	}
	if body.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "prompt is required"})
		return
	}

	var mode strategy.Mode
	if body.Strategy != "" {
		parsed, err := strategy.ParseMode(body.Strategy)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		mode = parsed
	}

	result := h.router.Route(r.Context(), RouteRequest{
		Prompt:              body.Prompt,
		System:              body.System,
		MaxTokens:           body.MaxTokens,
		Strategy:            mode,
		ExcludedProviders:   body.ExcludedProviders,
		MaxProviderAttempts: body.MaxProviderAttempts,
		PerAttemptTimeout:   time.Duration(body.PerAttemptTimeoutMs) * time.Millisecond,
	})

	resp := routeResponseBody{
		RequestID:      result.RequestID,
		Success:        result.Success,
		ProviderID:     result.ProviderID,
		Attempts:       toAttemptBodies(result.Attempts),
		TotalLatencyMs: result.TotalLatencyMs,
		TotalCost:      result.TotalCost,
		FailureReason:  result.FailureReason,
	}
	if result.Response != nil {
		resp.Text = result.Response.Text
		resp.PromptTokens = result.Response.PromptTokens
		resp.OutputTokens = result.Response.CompletionTokens
	}

	status := http.StatusOK
	if !result.Success {
		// Exhaustion maps to 503: the request was fine, no backend
		// could serve it right now.
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleProviders(w http.ResponseWriter, r *http.Request) {
	type providerBody struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Type        string `json:"type"`
		Model       string `json:"model"`
		Priority    int    `json:"priority"`
		ProviderHealth
		Totals ledger.ProviderTotals `json:"totals"`
	}

	healthSnap := h.router.ProviderHealth()
	out := make([]providerBody, 0, h.router.Registry().Count())
	for _, p := range h.router.Registry().All() {
		out = append(out, providerBody{
			ID:             p.ID,
			DisplayName:    p.DisplayName,
			Type:           string(p.Type),
			Model:          p.Model,
			Priority:       p.Priority,
			ProviderHealth: healthSnap[p.ID],
			Totals:         h.router.Ledger().Totals(p.ID),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toAttemptBodies(attempts []ledger.AttemptRecord) []attemptBody {
	out := make([]attemptBody, len(attempts))
	for i, a := range attempts {
		out[i] = attemptBody{
			ProviderID: a.ProviderID,
			Outcome:    a.Outcome,
			LatencyMs:  a.LatencyMs(),
			Tokens:     a.TotalTokens(),
			Cost:       a.Cost,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
