// Package source resolves the URIs named in pipeline steps to readable
// upstream resources.
//
// A Resolver turns a URI into a Source carrying the metadata the cache
// needs before any content is read: modification time, length and MIME
// type. FileResolver serves a directory tree, S3Resolver serves objects
// from S3-compatible storage, and Registry dispatches on the URI scheme.
// Resilient wraps any resolver with timeouts, retries and a circuit
// breaker. A missing resource is always reported as ErrNotFound.
package source
