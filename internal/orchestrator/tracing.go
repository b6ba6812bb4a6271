package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the package-wide otel tracer, matching the teacher's
// internal/executor/tracing.go span-per-phase shape (startXSpan/endXSpan
// pairs around each unit of work) but against the standard otel API
// directly rather than the teacher's agentkit telemetry.GetTracer()
// wrapper, which this module doesn't depend on.
var tracer = otel.Tracer("github.com/stormlightlabs/grid/internal/orchestrator")

// startTurnSpan starts a span for one ProcessMessage call.
func startTurnSpan(ctx context.Context, userMessage string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "orchestrator.turn")
	span.SetAttributes(attribute.Int("turn.message_len", len(userMessage)))
	return ctx, span
}

// endTurnSpan ends the turn span with its outcome.
func endTurnSpan(span trace.Span, iterations int, err error) {
	span.SetAttributes(attribute.Int("turn.iterations", iterations))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startIterationSpan starts a span for one stream/dispatch iteration
// within a turn.
func startIterationSpan(ctx context.Context, n int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "orchestrator.iteration")
	span.SetAttributes(attribute.Int("iteration.index", n))
	return ctx, span
}
