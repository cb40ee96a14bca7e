package cachekey

import "errors"

var (
	// ErrEmptyKey is returned when a key is empty.
	ErrEmptyKey = errors.New("cachekey: key is empty")

	// ErrKeyTooLong is returned when a key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("cachekey: key exceeds maximum length")

	// ErrInvalidKey is returned when a key contains line breaks.
	ErrInvalidKey = errors.New("cachekey: key contains invalid characters")
)
