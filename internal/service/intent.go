package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	ofotel "github.com/Strob0t/OpsForge/internal/adapter/otel"
	"github.com/Strob0t/OpsForge/internal/domain"
	"github.com/Strob0t/OpsForge/internal/domain/event"
	"github.com/Strob0t/OpsForge/internal/domain/intent"
	"github.com/Strob0t/OpsForge/internal/port/eventlog"
	"github.com/Strob0t/OpsForge/internal/port/llm"
)

const maxMessageLen = 4000

// IntentRouter maps a free-text request to an intent with entities and a
// confidence. Results below the threshold are flagged for clarification.
type IntentRouter struct {
	llm       llm.Completer
	model     string
	threshold float64
	events    eventlog.Log
	metrics   *ofotel.Metrics
}

// NewIntentRouter creates an IntentRouter. threshold <= 0 uses intent.DefaultThreshold.
func NewIntentRouter(c llm.Completer, model string, threshold float64, events eventlog.Log) *IntentRouter {
	if threshold <= 0 {
		threshold = intent.DefaultThreshold
	}
	return &IntentRouter{llm: c, model: model, threshold: threshold, events: events}
}

// SetMetrics attaches otel instruments.
func (r *IntentRouter) SetMetrics(m *ofotel.Metrics) { r.metrics = m }

// Threshold returns the clarification threshold.
func (r *IntentRouter) Threshold() float64 { return r.threshold }

// Route classifies message. Malformed model output is not an error; it
// yields the unknown intent with confidence 0.1. A failed model call is.
func (r *IntentRouter) Route(ctx context.Context, message, topic string) (intent.Result, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return intent.Result{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if len(message) > maxMessageLen {
		return intent.Result{}, fmt.Errorf("%w: message exceeds %d bytes", domain.ErrValidation, maxMessageLen)
	}
	if topic == "" {
		topic = "devops"
	}

	prompt, err := render("intent", struct{ Message, Context string }{message, topic})
	if err != nil {
		return intent.Result{}, err
	}
	resp, err := r.llm.Complete(ctx, llm.Request{Prompt: prompt, Model: r.model, Temperature: 0.2})
	r.metrics.LLMCall(ctx, resp.Model, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens), err)
	if err != nil {
		return intent.Result{}, fmt.Errorf("route intent: %w", err)
	}

	res := intent.Parse(resp.Content, r.threshold)
	if res.Intent == intent.Unknown {
		slog.WarnContext(ctx, "intent model returned unusable output", "model", resp.Model)
	}
	r.metrics.IntentRouted(ctx, res.Intent, res.NeedsClarification)
	appendEvent(ctx, r.events, &event.Event{
		Type:    event.TypeIntentRouted,
		Level:   event.LevelInfo,
		Message: fmt.Sprintf("routed to %s (%.2f)", res.Intent, res.Confidence),
	}, res)
	return res, nil
}
