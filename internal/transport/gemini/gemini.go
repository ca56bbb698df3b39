// Package gemini adapts the Gemini API to the transport.Invoker
// interface. The credential may be an API key (Gemini API backend) or a
// service account JSON key (Vertex backend with project and location
// from provider config).
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/registry"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/transport"
)

type Adapter struct {
	client *genai.Client
	model  string
}

func New(ctx context.Context, p registry.Provider) (*Adapter, error) {
	cfg := &genai.ClientConfig{}

	if isServiceAccountJSON(p.Credential) {
		if p.Project == "" || p.Location == "" {
			return nil, fmt.Errorf("provider %s: project and location are required with service account credentials", p.ID)
		}

		httpClient, err := serviceAccountHTTPClient(ctx, p.Credential)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.ID, err)
		}

		cfg.Backend = genai.BackendVertexAI
		cfg.Project = p.Project
		cfg.Location = p.Location
		cfg.HTTPClient = httpClient
	} else {
		cfg.Backend = genai.BackendGeminiAPI
		cfg.APIKey = p.Credential
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("provider %s: create gemini client: %w", p.ID, err)
	}

	return &Adapter{client: client, model: p.Model}, nil
}

func (a *Adapter) Invoke(ctx context.Context, req transport.Request) (*transport.Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, normalizeError(err)
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("%w: no text in candidates", transport.ErrInvalidResponse)
	}

	out := &transport.Response{Text: text}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func normalizeError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &transport.StatusError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return err
}
