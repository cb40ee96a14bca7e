// Package validity provides freshness witnesses for cached pipeline output.
//
// A Token is recorded next to every stored entry. When the same request
// arrives again the pipeline builds a fresh token and asks Evaluate whether
// the stored one still holds:
//
//	switch validity.Evaluate(stored, fresh) {
//	case validity.Valid:
//	    // replay the stored payload
//	case validity.Invalid:
//	    // regenerate
//	case validity.Unknown:
//	    // resolve deferred tokens and ask again
//	}
//
// Five kinds exist: Never (always stale), Always (never stale), TimeStamp
// (valid while the source's modification instant is unchanged), Composite
// (one child per pipeline stage) and Deferred (the source has to be asked,
// which may be expensive). Deferred tokens are never persisted; call
// Resolve before handing a token to Marshal.
package validity
