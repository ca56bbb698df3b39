// Package registry holds the immutable catalog of configured providers.
package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/config"
)

// Provider is the immutable description of one configured backend.
// Built once at startup from config; identified by ID everywhere else.
type Provider struct {
	ID                   string
	DisplayName          string
	Type                 config.ProviderType
	Endpoint             string
	Model                string
	Credential           string // resolved from the credential env var, never logged raw
	Priority             int
	CostPer1KTokens      float64
	DeclaredQualityScore float64
	MaxRequestsPerMinute int
	Project              string
	Location             string
}

// Registry is a read-only provider catalog. Safe for concurrent use
// without locking because it is never mutated after New.
type Registry struct {
	providers []Provider
	byID      map[string]int
}

// New builds a registry from the enabled provider entries, resolving each
// credential_env_var against the process environment. A missing or empty
// env var is a startup error: a provider without a credential can only
// produce auth failures at runtime.
func New(entries []config.ProviderConfig) (*Registry, error) {
	providers := make([]Provider, 0, len(entries))
	byID := make(map[string]int, len(entries))

	for _, e := range entries {
		if !e.Enabled {
			continue
		}

		credential := os.Getenv(e.CredentialEnvVar)
		if credential == "" {
			return nil, fmt.Errorf("provider %s: environment variable %s is not set", e.ID, e.CredentialEnvVar)
		}

		displayName := e.DisplayName
		if displayName == "" {
			displayName = e.ID
		}

		byID[e.ID] = len(providers)
		providers = append(providers, Provider{
			ID:                   e.ID,
			DisplayName:          displayName,
			Type:                 e.Type,
			Endpoint:             e.Endpoint,
			Model:                e.Model,
			Credential:           credential,
			Priority:             e.Priority,
			CostPer1KTokens:      e.CostPer1KTokens,
			DeclaredQualityScore: e.DeclaredQualityScore,
			MaxRequestsPerMinute: e.MaxRequestsPerMinute,
			Project:              e.Project,
			Location:             e.Location,
		})
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no enabled providers")
	}

	return &Registry{providers: providers, byID: byID}, nil
}

// Get returns the provider with the given id.
func (r *Registry) Get(id string) (Provider, bool) {
	idx, ok := r.byID[id]
	if !ok {
		return Provider{}, false
	}
	return r.providers[idx], true
}

// All returns every registered provider, sorted by id for deterministic
// iteration.
func (r *Registry) All() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns every registered provider id, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	return len(r.providers)
}

// Cost returns the cost of a call that consumed the given token count,
// using the provider's declared per-1k-token price.
func (p Provider) Cost(tokens int) float64 {
	return float64(tokens) / 1000.0 * p.CostPer1KTokens
}
