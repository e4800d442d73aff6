package hooks

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook opens one OpenTelemetry client span per query
type TracingHook struct {
	tracer trace.Tracer
}

// NewTracingHook creates a tracing hook on the given tracer
func NewTracingHook(tracer trace.Tracer) *TracingHook {
	return &TracingHook{tracer: tracer}
}

type spanCtxKey struct{}

// BeforeQuery implements QueryHook. The span is stored under a private
// context key so that AfterQuery never ends an ambient span from the
// caller's context.
func (h *TracingHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	if h.tracer == nil {
		return ctx
	}

	op := OperationType(event.Query)
	ctx, span := h.tracer.Start(ctx, "db."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.operation", op),
			attribute.String("db.statement", event.Statement()),
		),
	)
	return context.WithValue(ctx, spanCtxKey{}, span)
}

// AfterQuery implements QueryHook
func (h *TracingHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	span, ok := ctx.Value(spanCtxKey{}).(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	if event.Err != nil {
		span.RecordError(event.Err)
		span.SetStatus(codes.Error, event.Err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
