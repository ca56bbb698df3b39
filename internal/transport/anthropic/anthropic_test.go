package anthropic

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
		ID:         "test-anthropic",
		Type:       config.ProviderTypeAnthropic,
		Endpoint:   endpoint,
		Model:      "claude-sonnet-4-20250514",
		Credential: "test-key",
	}
}

func TestInvoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": "hello from claude"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 5}
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

	assert.Equal(t, "hello from claude", resp.Text)
	assert.Equal(t, 9, resp.PromptTokens)
	assert.Equal(t, 5, resp.CompletionTokens)
}

func TestInvoke_AuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type": "error", "error": {"type": "authentication_error", "message": "invalid key"}}`))
	}))
	defer server.Close()

	a := New(testProvider(server.URL))
	_, err := a.Invoke(context.Background(), transport.Request{Prompt: "hi"})
	require.Error(t, err)

	assert.Equal(t, transport.OutcomeAuthError, transport.Classify(err))
}

func TestInvoke_NoTextContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 3, "output_tokens": 0}
		}`))
	}))
	defer server.Close()

	a := New(testProvider(server.URL))
	_, err := a.Invoke(context.Background(), transport.Request{Prompt: "hi"})
	require.Error(t, err)

	assert.Equal(t, transport.OutcomeInvalidResponse, transport.Classify(err))
}
