// Package llmrouter dispatches completions to a provider by model name.
package llmrouter

import (
	"context"
	"strings"

	"github.com/Strob0t/OpsForge/internal/port/llm"
)

// Router sends claude-* models to the Anthropic client and everything else
// to the default (LiteLLM) client.
type Router struct {
	defaultModel string
	fallback     llm.Completer
	claude       llm.Completer
}

// New creates a Router. claude may be nil, in which case all models go to fallback.
func New(defaultModel string, fallback, claude llm.Completer) *Router {
	return &Router{defaultModel: defaultModel, fallback: fallback, claude: claude}
}

// Complete routes req by its model, or the default model when unset.
func (r *Router) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	if req.Model == "" {
		req.Model = r.defaultModel
	}
	if r.claude != nil && strings.HasPrefix(req.Model, "claude") {
		return r.claude.Complete(ctx, req)
	}
	return r.fallback.Complete(ctx, req)
}
