package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func attr(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "twirc"})
	if err != nil {
		t.Fatalf("InitTracing() error: %v", err)
	}
	shutdown()
}

func TestApplySpanOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		outcome string
		err     error
		status  codes.Code
		events  int
	}{
		{"applied", "", nil, codes.Ok, 0},
		{"not found", "not_found", errors.New("no such message"), codes.Unset, 1},
		{"duplicate", "duplicate", errors.New("already stored"), codes.Unset, 1},
		{"backend error", "error", errors.New("disk full"), codes.Error, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recordSpans(t)
			_, span := StartApplySpan(context.Background(), "delete", "3f0c2a4e-9a51-4f3f-8d7b-5d0c1b2e0a01")
			EndApplySpan(span, tt.outcome, tt.err)

			ended := rec.Ended()
			if len(ended) != 1 {
				t.Fatalf("ended spans = %d, want 1", len(ended))
			}
			s := ended[0]
			if s.Name() != "store.apply delete" {
				t.Errorf("span name = %q", s.Name())
			}
			if got := attr(s.Attributes(), "twirc.event.key"); got != "3f0c2a4e-9a51-4f3f-8d7b-5d0c1b2e0a01" {
				t.Errorf("event key = %q", got)
			}
			if s.Status().Code != tt.status {
				t.Errorf("status = %v, want %v", s.Status().Code, tt.status)
			}
			if len(s.Events()) != tt.events {
				t.Errorf("events = %d, want %d", len(s.Events()), tt.events)
			}
		})
	}
}

func TestStartSpanCarriesCorrelation(t *testing.T) {
	rec := recordSpans(t)
	ctx := WithCorrelation(context.Background(), "req-42")
	_, span := StartSpan(ctx, "http-server", "GET /healthz")
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	if got := attr(ended[0].Attributes(), "correlation_id"); got != "req-42" {
		t.Errorf("correlation_id = %q, want req-42", got)
	}
}
