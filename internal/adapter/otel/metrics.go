package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "opsforge"

// Metrics holds all OpsForge metric instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	TasksStarted  metric.Int64Counter
	TasksFinished metric.Int64Counter
	TaskDuration  metric.Float64Histogram
	Mutations     metric.Int64Counter
	LLMCalls      metric.Int64Counter
	LLMTokens     metric.Int64Counter
	Confirmations metric.Int64Counter
	IntentsRouted metric.Int64Counter
}

// NewMetrics creates all instruments on the global meter provider.
func NewMetrics() (*Metrics, error) { return NewMetricsWith(otel.GetMeterProvider()) }

// NewMetricsWith creates all instruments on mp.
func NewMetricsWith(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.TasksStarted, err = meter.Int64Counter("opsforge.tasks.started",
		metric.WithDescription("Agent tasks started")); err != nil {
		return nil, err
	}
	if m.TasksFinished, err = meter.Int64Counter("opsforge.tasks.finished",
		metric.WithDescription("Agent tasks reaching a terminal or suspended state")); err != nil {
		return nil, err
	}
	if m.TaskDuration, err = meter.Float64Histogram("opsforge.task.duration_seconds",
		metric.WithDescription("Agent task run time in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.Mutations, err = meter.Int64Counter("opsforge.deployment.mutations",
		metric.WithDescription("Deployment mutations by operation and outcome")); err != nil {
		return nil, err
	}
	if m.LLMCalls, err = meter.Int64Counter("opsforge.llm.calls",
		metric.WithDescription("Language model completions")); err != nil {
		return nil, err
	}
	if m.LLMTokens, err = meter.Int64Counter("opsforge.llm.tokens",
		metric.WithDescription("Language model tokens by direction")); err != nil {
		return nil, err
	}
	if m.Confirmations, err = meter.Int64Counter("opsforge.confirmations",
		metric.WithDescription("Confirmation outcomes: confirmed, mismatch, expired")); err != nil {
		return nil, err
	}
	if m.IntentsRouted, err = meter.Int64Counter("opsforge.intents.routed",
		metric.WithDescription("Routed intents by resolved intent")); err != nil {
		return nil, err
	}
	return m, nil
}

// TaskStarted records a task entering running.
func (m *Metrics) TaskStarted(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.TasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// TaskFinished records the task's outcome and run time.
func (m *Metrics) TaskFinished(ctx context.Context, kind, state string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind), attribute.String("state", state))
	m.TasksFinished.Add(ctx, 1, attrs)
	m.TaskDuration.Record(ctx, d.Seconds(), attrs)
}

// Mutation records a deployment mutation outcome ("ok", "unchanged", "error").
func (m *Metrics) Mutation(ctx context.Context, op, outcome string) {
	if m == nil {
		return
	}
	m.Mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome)))
}

// LLMCall records one completion and its token usage.
func (m *Metrics) LLMCall(ctx context.Context, model string, in, out int64, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model), attribute.String("outcome", outcome)))
	m.LLMTokens.Add(ctx, in, metric.WithAttributes(attribute.String("model", model), attribute.String("direction", "input")))
	m.LLMTokens.Add(ctx, out, metric.WithAttributes(attribute.String("model", model), attribute.String("direction", "output")))
}

// Confirmation records a confirmation outcome.
func (m *Metrics) Confirmation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// IntentRouted records a routed intent.
func (m *Metrics) IntentRouted(ctx context.Context, intent string, clarification bool) {
	if m == nil {
		return
	}
	m.IntentsRouted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("intent", intent), attribute.Bool("needs_clarification", clarification)))
}
