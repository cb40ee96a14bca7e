// Package server assembles a running pipecache HTTP service from a
// config.Config.
//
// New opens the configured stores and databases, builds the source
// resolvers and pipeline components, and binds every mount to an
// evaluator. The resulting handler serves:
//
//   - each mount path, through its pipeline;
//   - /healthz, /readyz and /health from a health.Aggregator;
//   - the prometheus registry on the configured metrics path;
//   - the admin API under its prefix when enabled, behind auth.
//
// Run serves until its context is cancelled and then shuts down
// gracefully. Close releases everything New opened.
package server
