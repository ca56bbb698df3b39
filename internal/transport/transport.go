// Package transport defines the boundary between the router core and the
// concrete provider backends. The core depends only on the Invoker
// interface and the Outcome taxonomy; one adapter package per provider
// implements Invoker on top of its SDK.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Outcome classifies the result of a single provider attempt. The fallback
// executor branches on this value instead of matching error types, so the
// classification happens exactly once, at the transport boundary.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeTimeout         Outcome = "timeout"
	OutcomeAuthError       Outcome = "auth_error"
	OutcomeServerError     Outcome = "server_error"
	OutcomeNetworkError    Outcome = "network_error"
	OutcomeInvalidResponse Outcome = "invalid_response"
)

// Request is the provider-agnostic generation payload.
type Request struct {
	Prompt    string
	System    string
	MaxTokens int
}

// Response is the provider-agnostic generation result.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// TotalTokens returns prompt plus completion tokens.
func (r *Response) TotalTokens() int {
	return r.PromptTokens + r.CompletionTokens
}

// Invoker is the single capability the router core needs from a backend.
// Implementations must honor ctx cancellation and deadlines, and should
// return errors that Classify can map onto the Outcome taxonomy: wrap HTTP
// status failures in *StatusError and response-shape problems in
// ErrInvalidResponse.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// ErrInvalidResponse marks a provider reply that arrived but could not be
// used (no choices, empty text, unparseable body).
var ErrInvalidResponse = errors.New("provider returned an unusable response")

// StatusError is the normalized form of an HTTP-level provider failure.
// Adapters translate their SDK error types into this so classification
// does not need to know about any SDK.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Code, e.Message)
}

// Classify maps an attempt error onto the Outcome taxonomy.
// nil means success.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if errors.Is(err, ErrInvalidResponse) {
		return OutcomeInvalidResponse
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return OutcomeTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusUnauthorized || statusErr.Code == http.StatusForbidden:
			return OutcomeAuthError
		case statusErr.Code == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case statusErr.Code == http.StatusRequestTimeout:
			return OutcomeTimeout
		case statusErr.Code >= 500:
			return OutcomeServerError
		default:
			// Remaining 4xx codes mean the provider rejected this request
			// for reasons retrying elsewhere may fix (bad model name,
			// oversized payload); treat as an unusable response rather
			// than provider breakage.
			return OutcomeInvalidResponse
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	return OutcomeNetworkError
}

// CountsTowardBreaker reports whether an outcome should advance the circuit
// breaker's failure count. Rate limiting is expected behavior under load,
// not breakage, and an invalid response for one request says little about
// the provider as a whole.
func (o Outcome) CountsTowardBreaker() bool {
	switch o {
	case OutcomeTimeout, OutcomeServerError, OutcomeNetworkError, OutcomeAuthError:
		return true
	default:
		return false
	}
}
