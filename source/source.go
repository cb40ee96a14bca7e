package source

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when the resource does not exist.
	ErrNotFound = errors.New("source: resource not found")

	// ErrUnsupportedScheme is returned when no resolver handles a URI.
	ErrUnsupportedScheme = errors.New("source: unsupported scheme")

	// ErrInvalidURI is returned for URIs that cannot be parsed.
	ErrInvalidURI = errors.New("source: invalid uri")
)

// Source is a resolved upstream resource.
//
// Contract:
//   - Metadata methods never block.
//   - Open may be called more than once; each call returns a fresh reader.
type Source interface {
	// URI is the canonical, fully resolved location.
	URI() string

	// MimeType is the content type, or "" when unknown.
	MimeType() string

	// LastModified is the modification instant; the zero time means unknown.
	LastModified() time.Time

	// ContentLength is the size in bytes, or -1 when unknown.
	ContentLength() int64

	// Open returns the content.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Resolver maps URIs to sources.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (Source, error)

	// Release is called once the pipeline no longer needs src.
	Release(src Source)
}
