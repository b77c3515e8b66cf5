package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	if cfg.ServiceName != "impactgraph" {
		t.Fatalf("expected service name 'impactgraph', got %s", cfg.ServiceName)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestInitTracing_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tp, err := InitTracing(ctx, &TracingConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp.Tracer() == nil {
		t.Fatal("expected non-nil tracer")
	}
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestInitTracing_NilConfig(t *testing.T) {
	tp, err := InitTracing(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatal("expected non-nil tracer provider")
	}
}

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return rec
}

func TestPipelineSpans_Recorded(t *testing.T) {
	rec := withRecorder(t)
	ctx := context.Background()

	ctx, assemble := StartAssembleSpan(ctx)
	_, fetch := StartFetchSpan(ctx, "problems")
	RecordFetchResult(fetch, 12)
	fetch.End()
	RecordAssembleResult(assemble, 40, 55, 2)
	assemble.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Name() != "fetch.problems" {
		t.Fatalf("unexpected span name %s", ended[0].Name())
	}
	if ended[0].Parent().SpanID() != ended[1].SpanContext().SpanID() {
		t.Fatal("fetch span should be a child of the assemble span")
	}
}

func TestRecordApplyResult_FailureSetsStatus(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartApplySpan(context.Background(), "memory")
	RecordApplyResult(span, 2, 1, 1)
	span.End()

	if got := rec.Ended()[0].Status().Code; got != codes.Error {
		t.Fatalf("expected error status, got %v", got)
	}
}

func TestRecordError(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartProposeSpan(context.Background(), "fill")
	RecordError(span, nil)
	RecordError(span, errors.New("source down"))
	span.End()

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", s.Status().Code)
	}
	if len(s.Events()) != 1 {
		t.Fatalf("expected one error event, got %d", len(s.Events()))
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		if got := samplerFor(tt.rate).Description(); got != tt.want {
			t.Errorf("samplerFor(%v) = %s, want %s", tt.rate, got, tt.want)
		}
	}
}

func TestTracerProvider_Shutdown_NilProvider(t *testing.T) {
	tp := &TracerProvider{}
	if err := tp.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error for nil provider, got: %v", err)
	}
}
