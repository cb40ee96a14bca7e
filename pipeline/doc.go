// Package pipeline decides whether a pipeline's output may be replayed
// from a store.
//
// A Component is a configured, immutable value. Setup binds it to one
// request and returns a Stage carrying the output behaviour plus a
// Contract: either no contract at all, a provisional NotCacheable marker
// (an active byte range, for example), or a key and validity token.
//
// The Evaluator walks the stages of one request. It answers conditional
// requests from last-modified instants first, then composes the stage keys
// and tokens, consults the store and either replays the stored payload or
// regenerates it. A regenerated payload is committed only after it was
// produced completely and written to the client; a failing stage or a
// client that went away leaves the store untouched.
package pipeline
