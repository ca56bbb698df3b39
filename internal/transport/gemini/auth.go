package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// isServiceAccountJSON reports whether a credential holds a GCP service
// account key instead of a plain API key.
func isServiceAccountJSON(credential string) bool {
	trimmed := strings.TrimSpace(credential)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}

	var sa struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal([]byte(trimmed), &sa); err != nil {
		return false
	}
	return sa.Type == "service_account"
}

// serviceAccountHTTPClient builds an HTTP client whose requests carry
// OAuth2 tokens minted from the service account key. The oauth2 transport
// refreshes tokens before expiry on its own.
func serviceAccountHTTPClient(ctx context.Context, credentialJSON string) (*http.Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(credentialJSON), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}

	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, fmt.Errorf("obtain initial token: %w", err)
	}

	return oauth2.NewClient(ctx, creds.TokenSource), nil
}
