package auth

import (
	"errors"
	"net/http"

	"github.com/jonwraymond/pipecache/observe"
)

// Middleware authenticates requests and checks roles before calling the
// wrapped handler.
type Middleware struct {
	authn  Authenticator
	logger observe.Logger
}

// NewMiddleware creates a middleware over authn.
func NewMiddleware(authn Authenticator, logger observe.Logger) *Middleware {
	return &Middleware{authn: authn, logger: observe.OrNop(logger)}
}

// Require admits requests whose identity holds one of roles. Credential
// failures answer 401, a missing role 403. The identity is attached to the
// request context.
func (m *Middleware) Require(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			id, err := m.authn.Authenticate(ctx, r)
			if err != nil {
				if isCredentialError(err) {
					m.logger.Info(ctx, "admin request rejected",
						observe.F("path", r.URL.Path), observe.Err(err))
					w.Header().Set("WWW-Authenticate", `Bearer realm="pipecache"`)
					http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
					return
				}
				m.logger.Error(ctx, "authentication failed", observe.F("authenticator", m.authn.Name()), observe.Err(err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !id.HasAnyRole(roles...) {
				m.logger.Info(ctx, "admin request forbidden",
					observe.F("path", r.URL.Path), observe.F("principal", id.Principal), observe.Err(ErrForbidden))
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
		})
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenMalformed)
}
