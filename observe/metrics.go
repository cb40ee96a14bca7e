package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache outcomes reported by a pipeline run.
const (
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeUncacheable = "uncacheable"
	OutcomeNotModified = "not_modified"
	OutcomeNotFound    = "not_found"
	OutcomeError       = "error"
)

// Report summarizes one pipeline run for telemetry.
type Report struct {
	// Outcome is one of the Outcome* constants.
	Outcome string

	// Stored is true when the run committed a new store entry.
	Stored bool
}

// Metrics records pipeline cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRequest records one pipeline run.
	RecordRequest(ctx context.Context, meta PipelineMeta, report Report, duration time.Duration, err error)
}

type metricsImpl struct {
	total    metric.Int64Counter
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	stores   metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.total, "pipeline.requests.total", "Total number of pipeline runs", "{request}"},
		{&m.hits, "pipeline.cache.hits", "Pipeline runs served from the store", "{request}"},
		{&m.misses, "pipeline.cache.misses", "Pipeline runs that regenerated output", "{request}"},
		{&m.stores, "pipeline.cache.stores", "Store entries committed", "{entry}"},
		{&m.errors, "pipeline.errors", "Pipeline runs that failed", "{error}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, err
		}
	}

	m.duration, err = meter.Float64Histogram(
		"pipeline.duration_ms",
		metric.WithDescription("Pipeline run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRequest records metrics for a pipeline run.
func (m *metricsImpl) RecordRequest(ctx context.Context, meta PipelineMeta, report Report, duration time.Duration, err error) {
	attrs := append(meta.attributes(), attribute.String("cache.outcome", report.Outcome))
	opt := metric.WithAttributes(attrs...)

	m.total.Add(ctx, 1, opt)

	switch report.Outcome {
	case OutcomeHit, OutcomeNotModified:
		m.hits.Add(ctx, 1, opt)
	case OutcomeMiss, OutcomeUncacheable:
		m.misses.Add(ctx, 1, opt)
	}
	if report.Stored {
		m.stores.Add(ctx, 1, opt)
	}
	if err != nil && report.Outcome != OutcomeNotFound {
		m.errors.Add(ctx, 1, opt)
	}

	m.duration.Record(ctx, float64(duration.Microseconds())/1000.0, opt)
}

type noopMetrics struct{}

// NewNoopMetrics returns Metrics that record nothing.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordRequest(context.Context, PipelineMeta, Report, time.Duration, error) {}
