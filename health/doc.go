// Package health reports whether the cache server can do its work.
//
// A Checker reports a Status: Healthy, Degraded, or Unhealthy. Probes wrap
// anything with a Probe(ctx) error method, such as the entry store or a
// database handle, and BreakerChecker turns an open circuit in front of a
// remote source into a degraded result.
//
// Aggregator runs its checkers concurrently under one deadline:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewProbeChecker("store", fsStore))
//	agg.Register(health.NewProbeChecker("database", health.ProbeFunc(db.PingContext)))
//	agg.Register(health.NewBreakerChecker("s3", exec.CircuitBreaker()))
//
//	health.RegisterHandlers(mux, agg)
//
// RegisterHandlers mounts /healthz (liveness), /readyz (readiness) and
// /health (JSON detail).
package health
