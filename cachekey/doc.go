// Package cachekey builds deterministic keys for pipeline output.
//
// Each cacheable component contributes a Key naming every input that can
// change its output. The pipeline composes the per-stage keys in order:
//
//	k := cachekey.New("resource").
//	    String("src", uri).
//	    Bool("ranges", true).
//	    Build()
//	full := cachekey.Compose(generatorKey, transformerKey, serializerKey)
//
// Composition is length-prefixed, so no choice of field values can make two
// different stage lists render to the same text. The NotCacheable key
// poisons any composition it takes part in.
package cachekey
