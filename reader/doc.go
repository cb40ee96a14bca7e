// Package reader provides the cacheable pipeline producers.
//
// ResourceReader streams a resolved source, answers byte-range requests
// and keys its output on the resolved source URI. ImageReader scales and
// re-encodes images on top of it. DatabaseReader serves a blob column of
// one table row, with a validity that is only fetched when the evaluator
// needs it.
//
// Every reader is configured once and is safe for concurrent use; Setup
// binds it to one request and returns a pipeline.Stage.
package reader
