// Package anthropic adapts the Anthropic Messages API to the
// transport.Invoker interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

const defaultMaxTokens = 1024

type Adapter struct {
	client *anthropicsdk.Client
	model  string
}

func New(p registry.Provider) *Adapter {
	// Retries are the router's job. SDK-internal retries would hide
	// rate limiting from the breaker and stretch attempt timeouts.
	opts := []option.RequestOption{
		option.WithAPIKey(p.Credential),
		option.WithMaxRetries(0),
	}
	if p.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(p.Endpoint))
	}

	client := anthropicsdk.NewClient(opts...)
	return &Adapter{
		client: &client,
		model:  p.Model,
	}
}

func (a *Adapter) Invoke(ctx context.Context, req transport.Request) (*transport.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(a.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{
			{Text: req.System},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, normalizeError(err)
	}

	text := collectText(resp)
	if text == "" {
		return nil, fmt.Errorf("%w: no text content in message", transport.ErrInvalidResponse)
	}

	return &transport.Response{
		Text:             text,
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func collectText(msg *anthropicsdk.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

func normalizeError(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return &transport.StatusError{Code: apiErr.StatusCode, Message: apiErr.Error()}
	}
	return err
}
