// Package admin serves the administrative HTTP API of the cache server:
// listing stores and their keys, inspecting and evicting entries, clearing
// a store, and reading per-pipeline latency quantiles.
//
// The handler does no authentication itself; mount it behind
// auth.Middleware.
package admin
