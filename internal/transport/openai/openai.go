// Package openai adapts OpenAI and OpenAI-compatible chat completion
// endpoints to the transport.Invoker interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/httputil"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

// Adapter calls one OpenAI-compatible provider. The endpoint comes from
// provider config, so the same adapter serves api.openai.com and any
// compatible gateway.
type Adapter struct {
	client *goopenai.Client
	model  string
}

func New(p registry.Provider) *Adapter {
	cfg := goopenai.DefaultConfig(p.Credential)
	cfg.BaseURL = p.Endpoint
	cfg.HTTPClient = httputil.NewClient(nil)

	return &Adapter{
		client: goopenai.NewClientWithConfig(cfg),
		model:  p.Model,
	}
}

func (a *Adapter) Invoke(ctx context.Context, req transport.Request) (*transport.Response, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := a.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, normalizeError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in completion", transport.ErrInvalidResponse)
	}

	return &transport.Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// normalizeError translates SDK error types into *transport.StatusError
// where an HTTP status is known; other errors pass through for net-level
// classification.
func normalizeError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code == 0 {
			code = http.StatusInternalServerError
		}
		return &transport.StatusError{Code: code, Message: apiErr.Message}
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &transport.StatusError{Code: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}

	return err
}
