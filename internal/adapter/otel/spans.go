package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "opsforge"

// StartTaskSpan starts a span for one pipeline run of an agent task.
func StartTaskSpan(ctx context.Context, taskID, kind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task."+kind,
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.kind", kind),
		),
	)
}

// StartStepSpan starts a span for a workflow step within a task.
func StartStepSpan(ctx context.Context, step, stepKind string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "step."+step,
		trace.WithAttributes(attribute.String("step.kind", stepKind)),
	)
}

// StartMutationSpan starts a span for a deployment mutation.
func StartMutationSpan(ctx context.Context, op, deploymentID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "deployment."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("deployment.id", deploymentID)),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
