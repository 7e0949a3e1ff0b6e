package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/stash"

// Tracer provides OpenTelemetry tracing for Stash.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Stash tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerWithProvider creates a Stash tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartSpan starts a span for one store operation in region.
func (t *Tracer) StartSpan(ctx context.Context, op, region string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("stash.region", region))
	return t.tracer.Start(ctx, "stash."+op, trace.WithAttributes(attrs...))
}

// EndSpan ends span, recording err if the operation failed.
func (t *Tracer) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
