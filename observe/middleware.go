package observe

import (
	"context"
	"time"
)

// ProcessFunc runs one pipeline and reports its cache outcome.
type ProcessFunc func(ctx context.Context, meta PipelineMeta) (Report, error)

// Middleware wraps pipeline runs with tracing, metrics, latency and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe ProcessFunc.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	latency *LatencyTracker
}

// NewMiddleware creates a new Middleware. A nil latency tracker disables
// quantile tracking.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger, latency *LatencyTracker) *Middleware {
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  OrNop(logger),
		latency: latency,
	}
}

// Wrap wraps a ProcessFunc with telemetry.
func (m *Middleware) Wrap(fn ProcessFunc) ProcessFunc {
	return func(ctx context.Context, meta PipelineMeta) (Report, error) {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		report, err := fn(ctx, meta)
		if err != nil && report.Outcome == "" {
			report.Outcome = OutcomeError
		}

		duration := time.Since(start)
		m.tracer.EndSpan(span, report, err)
		m.metrics.RecordRequest(ctx, meta, report, duration, err)
		if m.latency != nil {
			m.latency.Record(meta.Name+"/"+report.Outcome, duration)
		}

		logger := m.logger.WithPipeline(meta)
		fields := []Field{
			{Key: "duration_ms", Value: float64(duration.Microseconds()) / 1000.0},
			{Key: "cache.outcome", Value: report.Outcome},
			{Key: "cache.stored", Value: report.Stored},
		}
		switch {
		case err != nil && report.Outcome == OutcomeNotFound:
			logger.Info(ctx, "resource not found", append(fields, Err(err))...)
		case err != nil:
			logger.Error(ctx, "pipeline failed", append(fields, Err(err))...)
		default:
			logger.Debug(ctx, "pipeline completed", fields...)
		}

		return report, err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer, latency *LatencyTracker) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger(), latency), nil
}
