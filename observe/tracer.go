package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// PipelineMeta identifies a pipeline run for telemetry purposes.
type PipelineMeta struct {
	Name  string // Pipeline name (required)
	Mount string // URL prefix the pipeline is mounted on (optional)
	Store string // Store region backing the pipeline (optional)
}

// SpanName returns the deterministic span name for this pipeline.
// Format: pipeline.process.<name>
func (m PipelineMeta) SpanName() string {
	return "pipeline.process." + m.Name
}

func (m PipelineMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("pipeline.name", m.Name)}
	if m.Mount != "" {
		attrs = append(attrs, attribute.String("pipeline.mount", m.Mount))
	}
	if m.Store != "" {
		attrs = append(attrs, attribute.String("pipeline.store", m.Store))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with pipeline span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a pipeline run.
	StartSpan(ctx context.Context, meta PipelineMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording the cache outcome and any error.
	EndSpan(span trace.Span, report Report, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new internal span with pipeline attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta PipelineMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(meta.attributes()...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the outcome and error status.
func (t *tracerImpl) EndSpan(span trace.Span, report Report, err error) {
	span.SetAttributes(
		attribute.String("cache.outcome", report.Outcome),
		attribute.Bool("cache.stored", report.Stored),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NewNoopTracer creates a tracer that records nothing.
func NewNoopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta PipelineMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ Report, _ error) {
	span.End()
}
