package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "percept"

// StartRequestSpan starts the root span for one classification request.
func StartRequestSpan(ctx context.Context, requestID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "classify",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
		),
	)
}

// StartPhaseSpan starts a span for one state machine phase within an iteration.
func StartPhaseSpan(ctx context.Context, phase string, iteration int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "phase."+phase,
		trace.WithAttributes(
			attribute.String("phase", phase),
			attribute.Int("iteration", iteration),
		),
	)
}

// StartDispatchSpan starts a span for one worker dispatch.
func StartDispatchSpan(ctx context.Context, workerID, domain string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("worker.id", workerID),
			attribute.String("worker.domain", domain),
		),
	)
}
