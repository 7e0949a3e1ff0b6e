package observability_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/xraph/stash/observability"
)

func setupTestTracer() (*tracetest.SpanRecorder, *observability.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, observability.NewTracerWithProvider(tp)
}

func TestTracer_SpanNameAndRegion(t *testing.T) {
	sr, tr := setupTestTracer()

	_, span := tr.StartSpan(context.Background(), "add_message", "FOO",
		attribute.String("stash.message_id", "abc"))
	tr.EndSpan(span, nil)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "stash.add_message" {
		t.Errorf("expected span name %q, got %q", "stash.add_message", spans[0].Name())
	}

	found := false
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "stash.region" && kv.Value.AsString() == "FOO" {
			found = true
		}
	}
	if !found {
		t.Error("expected stash.region attribute")
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("expected non-error status")
	}
}

func TestTracer_RecordsError(t *testing.T) {
	sr, tr := setupTestTracer()

	_, span := tr.StartSpan(context.Background(), "get_message", "DEFAULT")
	tr.EndSpan(span, errors.New("backend down"))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[0].Status().Code)
	}
	if spans[0].Status().Description != "backend down" {
		t.Errorf("unexpected status description %q", spans[0].Status().Description)
	}
}
