package auth

import (
	"context"
	"net/http"
)

// Authenticator validates the credentials carried by a request.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Authenticate should honor cancellation/deadlines.
//   - Errors: credential failures wrap ErrMissingCredentials,
//     ErrInvalidCredentials, ErrTokenExpired or ErrTokenMalformed. Any
//     other error is internal.
type Authenticator interface {
	// Name returns a unique identifier for this authenticator.
	Name() string

	// Supports reports whether r carries credentials of this kind.
	Supports(r *http.Request) bool

	// Authenticate validates the credentials and returns the identity.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)
}

// Chain tries authenticators in order and answers with the first one that
// supports the request.
type Chain []Authenticator

// Name returns "chain".
func (c Chain) Name() string { return "chain" }

// Supports reports whether any authenticator supports r.
func (c Chain) Supports(r *http.Request) bool {
	for _, a := range c {
		if a.Supports(r) {
			return true
		}
	}
	return false
}

// Authenticate delegates to the first authenticator that supports r.
func (c Chain) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	for _, a := range c {
		if a.Supports(r) {
			return a.Authenticate(ctx, r)
		}
	}
	return nil, ErrMissingCredentials
}

var _ Authenticator = Chain(nil)
