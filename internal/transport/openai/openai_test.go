package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/config"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

func testProvider(endpoint string) registry.Provider {
	return registry.Provider{
		ID:         "test-openai",
		Type:       config.ProviderTypeOpenAI,
		Endpoint:   endpoint,
		Model:      "gpt-4o-mini",
		Credential: "test-key",
	}
}

func TestInvoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "hello there"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`))
	}))
	defer server.Close()

	a := New(testProvider(server.URL))
	resp, err := a.Invoke(context.Background(), transport.Request{
		Prompt:    "say hello",
		System:    "be brief",
		MaxTokens: 64,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 4, resp.CompletionTokens)
	assert.Equal(t, 16, resp.TotalTokens())
}

func TestInvoke_StatusErrorsClassify(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		outcome transport.Outcome
	}{
		{"unauthorized", http.StatusUnauthorized, transport.OutcomeAuthError},
		{"rate limited", http.StatusTooManyRequests, transport.OutcomeRateLimited},
		{"server error", http.StatusInternalServerError, transport.OutcomeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope", "type": "api_error"}}`))
			}))
			defer server.Close()

			a := New(testProvider(server.URL))
			_, err := a.Invoke(context.Background(), transport.Request{Prompt: "hi"})
			require.Error(t, err)

			assert.Equal(t, tt.outcome, transport.Classify(err))
		})
	}
}

func TestInvoke_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "chatcmpl-1", "object": "chat.completion", "choices": [], "usage": {}}`))
	}))
	defer server.Close()

	a := New(testProvider(server.URL))
	_, err := a.Invoke(context.Background(), transport.Request{Prompt: "hi"})
	require.Error(t, err)

	assert.Equal(t, transport.OutcomeInvalidResponse, transport.Classify(err))
}

func TestInvoke_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(testProvider(server.URL))
	_, err := a.Invoke(ctx, transport.Request{Prompt: "hi"})
	require.Error(t, err)

	assert.Equal(t, transport.OutcomeTimeout, transport.Classify(err))
}
