package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Secret is the HMAC signing key.
	Secret string `yaml:"secret"`

	// Issuer is the expected iss claim. Empty accepts any issuer.
	Issuer string `yaml:"issuer"`

	// Audience is the expected aud claim. Empty accepts any audience.
	Audience string `yaml:"audience"`

	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string `yaml:"header_name"`

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string `yaml:"token_prefix"`

	// PrincipalClaim is the claim containing the principal.
	// Default: "sub"
	PrincipalClaim string `yaml:"principal_claim"`

	// RolesClaim is the claim containing roles, as a list or a
	// space-separated string.
	// Default: "roles"
	RolesClaim string `yaml:"roles_claim"`

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration `yaml:"leeway"`
}

// JWTAuthenticator validates HMAC-signed JWT bearer tokens.
type JWTAuthenticator struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config JWTConfig) (*JWTAuthenticator, error) {
	if config.Secret == "" {
		return nil, errors.New("auth: jwt secret is empty")
	}
	if config.HeaderName == "" {
		config.HeaderName = "Authorization"
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = "Bearer "
	}
	if config.PrincipalClaim == "" {
		config.PrincipalClaim = "sub"
	}
	if config.RolesClaim == "" {
		config.RolesClaim = "roles"
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &JWTAuthenticator{config: config, parser: jwt.NewParser(opts...)}, nil
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string { return "jwt" }

// Supports returns true if the request carries a bearer token.
func (a *JWTAuthenticator) Supports(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get(a.config.HeaderName), a.config.TokenPrefix)
}

// Authenticate validates the token and builds the identity from its claims.
func (a *JWTAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	header := r.Header.Get(a.config.HeaderName)
	raw, ok := strings.CutPrefix(header, a.config.TokenPrefix)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, ErrMissingCredentials
	}

	claims := jwt.MapClaims{}
	_, err := a.parser.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return []byte(a.config.Secret), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenMalformed
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return a.identity(claims), nil
}

func (a *JWTAuthenticator) identity(claims jwt.MapClaims) *Identity {
	id := &Identity{
		Method: AuthMethodJWT,
		Claims: make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		id.Claims[k] = v
	}
	id.Principal, _ = claims[a.config.PrincipalClaim].(string)

	switch roles := claims[a.config.RolesClaim].(type) {
	case []any:
		for _, r := range roles {
			if s, ok := r.(string); ok {
				id.Roles = append(id.Roles, s)
			}
		}
	case string:
		id.Roles = strings.Fields(roles)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id
}

var _ Authenticator = (*JWTAuthenticator)(nil)
