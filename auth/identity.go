package auth

import (
	"slices"
	"time"
)

// AuthMethod indicates how authentication was performed.
type AuthMethod string

const (
	AuthMethodJWT    AuthMethod = "jwt"
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Identity represents an authenticated principal.
type Identity struct {
	// Principal is the unique identifier (e.g., user ID, key owner).
	Principal string

	Roles  []string
	Method AuthMethod

	// Claims contains the raw token claims or key metadata.
	Claims map[string]any

	// ExpiresAt is when this identity expires. Zero means never.
	ExpiresAt time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasAnyRole reports whether the identity holds one of roles. An empty
// list is satisfied by any identity.
func (id *Identity) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	return slices.ContainsFunc(roles, id.HasRole)
}

// IsExpired checks if the identity has expired at now.
func (id *Identity) IsExpired(now time.Time) bool {
	return !id.ExpiresAt.IsZero() && now.After(id.ExpiresAt)
}
