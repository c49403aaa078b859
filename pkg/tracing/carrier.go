package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// InjectTraceContext writes the span context of ctx into attrs, which may be
// nil. Queue backends copy the result into message headers or attributes.
func InjectTraceContext(ctx context.Context, attrs map[string]string) map[string]string {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(attrs))
	return attrs
}

func ExtractTraceContext(ctx context.Context, attrs map[string]string) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(attrs))
}

// StartSpanFromMessage continues the trace carried by a queue message, if
// any, and starts operationName under it.
func StartSpanFromMessage(ctx context.Context, operationName string, attrs map[string]string) (context.Context, trace.Span) {
	return StartSpan(ExtractTraceContext(ctx, attrs), operationName)
}
