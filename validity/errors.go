package validity

import "errors"

var (
	// ErrNotPersistable is returned when marshaling a token that still
	// contains a deferred child.
	ErrNotPersistable = errors.New("validity: deferred token cannot be persisted")

	// ErrUnknownKind is returned when unmarshaling an unrecognized kind.
	ErrUnknownKind = errors.New("validity: unknown token kind")

	// ErrUnresolved is returned when a deferred token resolves to another
	// deferred token.
	ErrUnresolved = errors.New("validity: deferred token did not resolve")
)
