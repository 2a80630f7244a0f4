// Package judge defines the judge provider interface and its two built-in
// implementations: a pure heuristic and an LLM-backed provider with a
// deterministic stub fallback.
package judge

import (
	"context"
	"fmt"

	"github.com/tracehub-ai/tracehub/internal/model"
)

// Verdict is one provider's recommendation for a decision context.
type Verdict struct {
	Action     model.Action   `json:"action"`
	ReasonCode string         `json:"reason_code"`
	Confidence float64        `json:"confidence"`
	Signals    map[string]any `json:"signals"`
	Rationale  *string        `json:"rationale,omitempty"`
	Model      *string        `json:"model,omitempty"`
}

// Provider produces a Verdict from a decision context map. Implementations
// must be safe for concurrent use.
type Provider interface {
	Name() string
	Judge(ctx context.Context, decisionCtx map[string]any) (Verdict, error)
}

// ProviderError marks a judge invocation failure (network, timeout, or a
// response violating the schema). The pipeline treats it as fatal unless
// the heuristic already short-circuited.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("judge: provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Registry holds providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the named provider, or an error when it is not registered.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("judge: unknown provider %q", name)
	}
	return p, nil
}
