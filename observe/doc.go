// Package observe provides observability primitives for pipeline processing.
//
// It bundles a structured JSON logger, OpenTelemetry tracing and metrics for
// cache outcomes, and DDSketch-backed latency quantiles. It performs no
// pipeline work itself: the server wraps each pipeline run with Middleware,
// and lower layers (store, readers, evaluator) only take a Logger.
package observe
