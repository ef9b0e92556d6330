package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/middleware"
)

// RouteOptions configures the optional parts of the API surface.
type RouteOptions struct {
	// GitHubWebhookSecret enables POST /api/v1/webhooks/github.
	GitHubWebhookSecret string
	// WebSocket serves GET /ws when set.
	WebSocket http.HandlerFunc
	// Idempotency wraps the mutating /api/v1 routes when set.
	Idempotency func(http.Handler) http.Handler
}

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers, opts RouteOptions) {
	r.Get("/health", h.Health)
	if opts.WebSocket != nil {
		r.Get("/ws", opts.WebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if opts.GitHubWebhookSecret != "" {
			r.With(middleware.WebhookHMAC(opts.GitHubWebhookSecret, middleware.HeaderGitHubSignature)).
				Post("/webhooks/github", h.GitHubWebhook)
		}

		r.Group(func(r chi.Router) {
			if opts.Idempotency != nil {
				r.Use(opts.Idempotency)
			}

			// Deployment lifecycle
			r.Post("/deploy", h.Deploy)
			r.Post("/rollback", h.Rollback)
			r.Get("/deployments", h.ListDeployments)
			r.Get("/deployments/{namespace}/{name}/status", h.DeploymentStatus)
			r.Post("/deployments/{namespace}/{name}/scale", h.ScaleDeployment)

			// Agent workflows
			r.Post("/code-review", h.RunWorkflow(agenttask.KindCodeReview))
			r.Post("/test-writer", h.RunWorkflow(agenttask.KindTestWriter))
			r.Post("/monitor", h.RunWorkflow(agenttask.KindMonitor))
			r.Post("/security/scan", h.RunWorkflow(agenttask.KindSecurity))
			r.Post("/cost/analyze", h.RunWorkflow(agenttask.KindCost))
			r.Post("/incident", h.RunWorkflow(agenttask.KindIncident))

			// Tasks
			r.Get("/tasks/{id}", h.GetTask)
			r.Post("/tasks/{id}/abort", h.AbortTask)
			r.Post("/tasks/{id}/confirm", h.ConfirmTask)
			r.Get("/tasks/{id}/events", h.TaskEvents)

			// Audit trail
			r.Get("/events", h.ListEvents)

			// Conversational entry
			r.Post("/intent", h.RouteIntent)
			r.Post("/requests", h.HandleRequest)
		})
	})
}
