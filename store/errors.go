package store

import "errors"

var (
	// ErrStartup is returned when the store directory cannot be created or
	// written.
	ErrStartup = errors.New("store: directory is not usable")

	// ErrLocked is returned when another process holds the region lock.
	ErrLocked = errors.New("store: directory is locked by another process")

	// ErrInvalidEncoding is returned by DecodeKey for malformed paths.
	ErrInvalidEncoding = errors.New("store: invalid key encoding")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
)
