package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/deployment"
	"github.com/Strob0t/OpsForge/internal/domain/intent"
	"github.com/Strob0t/OpsForge/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// Deployments is the part of the lifecycle controller served directly.
type Deployments interface {
	Status(ctx context.Context, name, namespace string) (deployment.Snapshot, error)
	Scale(ctx context.Context, name, namespace string, replicas int32) (deployment.ScaleResult, error)
	List(ctx context.Context, namespace string) ([]deployment.Snapshot, error)
}

// Tasks runs agent tasks.
type Tasks interface {
	Dispatch(ctx context.Context, kind agenttask.Kind, input json.RawMessage, parentID string) (*agenttask.Task, error)
	Submit(ctx context.Context, kind agenttask.Kind, input json.RawMessage, parentID string) (*agenttask.Task, error)
	Get(ctx context.Context, id string) (*agenttask.Task, error)
	Confirm(ctx context.Context, id, token string) (*agenttask.Task, error)
	Abort(ctx context.Context, id string) (*agenttask.Task, error)
}

// Intents classifies free text.
type Intents interface {
	Route(ctx context.Context, message, topic string) (intent.Result, error)
}

// Requests routes free text and acts on it.
type Requests interface {
	Handle(ctx context.Context, message, topic string) (service.RequestResult, error)
}

// Handlers holds the HTTP handlers of the OpsForge API.
type Handlers struct {
	deployments Deployments
	tasks       Tasks
	intents     Intents
	requests    Requests
	events      Events

	// Ready reports dependency health for /health. Nil means always ready.
	Ready func(ctx context.Context) error

	production bool
}

// NewHandlers creates Handlers. production hides server error details.
func NewHandlers(deployments Deployments, tasks Tasks, intents Intents, requests Requests, production bool) *Handlers {
	return &Handlers{
		deployments: deployments,
		tasks:       tasks,
		intents:     intents,
		requests:    requests,
		production:  production,
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "timestamp": timestamp()})
}

// confirmationFields exposes the token of a freshly suspended task. Task
// snapshots never carry it, so this is the only place a caller learns it.
type confirmationFields struct {
	ConfirmationToken string     `json:"confirmation_token,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

func confirmationOf(t *agenttask.Task) confirmationFields {
	if t == nil || t.State != agenttask.StateSuspended || t.Confirmation == nil {
		return confirmationFields{}
	}
	exp := t.ExpiresAt()
	return confirmationFields{ConfirmationToken: t.Confirmation.Value, ExpiresAt: &exp}
}
