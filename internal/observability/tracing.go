// Package observability provides OpenTelemetry tracing and a small
// Prometheus-text metrics registry for the impact graph pipeline.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/efebarandurmaz/impactgraph"

// TracingConfig configures span export. An empty OTLPEndpoint disables
// export and leaves the global no-op provider in place.
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SampleRate     float64
}

func DefaultTracingConfig() *TracingConfig {
	return &TracingConfig{
		ServiceName:    "impactgraph",
		ServiceVersion: "0.1.0",
		Environment:    "development",
		SampleRate:     1.0,
	}
}

// TracerProvider wraps the SDK provider so callers can shut it down.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing installs a global tracer provider exporting over OTLP gRPC.
func InitTracing(ctx context.Context, cfg *TracingConfig) (*TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultTracingConfig()
	}
	if cfg.OTLPEndpoint == "" {
		return &TracerProvider{tracer: otel.Tracer(TracerName)}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SampleRate)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracerProvider{provider: provider, tracer: provider.Tracer(TracerName)}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.provider != nil {
		return tp.provider.Shutdown(ctx)
	}
	return nil
}

func (tp *TracerProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// Span kinds recorded on every pipeline span.
const (
	SpanKindFetch    = "fetch"
	SpanKindAssemble = "assemble"
	SpanKindPropose  = "propose"
	SpanKindApply    = "apply"
	SpanKindSync     = "sync"
)

func startSpan(ctx context.Context, name, kind string, sk trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("impactgraph.span.kind", kind))
	return otel.Tracer(TracerName).Start(ctx, name,
		trace.WithSpanKind(sk),
		trace.WithAttributes(attrs...),
	)
}

// StartFetchSpan starts a client span around pulling one table.
func StartFetchSpan(ctx context.Context, table string) (context.Context, trace.Span) {
	return startSpan(ctx, fmt.Sprintf("fetch.%s", table), SpanKindFetch, trace.SpanKindClient,
		attribute.String("fetch.table", table))
}

func RecordFetchResult(span trace.Span, records int) {
	span.SetAttributes(attribute.Int("fetch.records", records))
}

// StartAssembleSpan starts a span around one full graph assembly.
func StartAssembleSpan(ctx context.Context) (context.Context, trace.Span) {
	return startSpan(ctx, "graph.assemble", SpanKindAssemble, trace.SpanKindInternal)
}

// RecordAssembleResult records node and warning totals for an assembly.
func RecordAssembleResult(span trace.Span, nodes, edges, warnings int) {
	span.SetAttributes(
		attribute.Int("assemble.nodes", nodes),
		attribute.Int("assemble.edges", edges),
		attribute.Int("assemble.warnings", warnings),
	)
}

func StartProposeSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	return startSpan(ctx, "links.propose", SpanKindPropose, trace.SpanKindInternal,
		attribute.String("propose.mode", mode))
}

func RecordProposeResult(span trace.Span, problems, changed int) {
	span.SetAttributes(
		attribute.Int("propose.problems", problems),
		attribute.Int("propose.changed", changed),
	)
}

func StartApplySpan(ctx context.Context, writer string) (context.Context, trace.Span) {
	return startSpan(ctx, "links.apply", SpanKindApply, trace.SpanKindClient,
		attribute.String("apply.writer", writer))
}

// RecordApplyResult marks the span failed when any write failed.
func RecordApplyResult(span trace.Span, written, skipped, failed int) {
	span.SetAttributes(
		attribute.Int("apply.written", written),
		attribute.Int("apply.skipped", skipped),
		attribute.Int("apply.failed", failed),
	)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d writes failed", failed))
	}
}

// StartSyncSpan starts a span around mirroring the graph to a backend.
func StartSyncSpan(ctx context.Context, backend string) (context.Context, trace.Span) {
	return startSpan(ctx, fmt.Sprintf("sync.%s", backend), SpanKindSync, trace.SpanKindClient,
		attribute.String("sync.backend", backend))
}

func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
