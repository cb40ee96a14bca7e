package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// APIKey is one entry of the static key table.
type APIKey struct {
	// ID names the key in logs.
	ID string `yaml:"id"`

	// Hash is the hex SHA-256 of the key. See HashAPIKey.
	Hash string `yaml:"hash"`

	Principal string   `yaml:"principal"`
	Roles     []string `yaml:"roles"`

	// ExpiresAt is when this key expires. Zero means never.
	ExpiresAt time.Time `yaml:"expires_at"`
}

// APIKeyConfig configures the API key authenticator.
type APIKeyConfig struct {
	// HeaderName is the header containing the API key.
	// Default: "X-API-Key"
	HeaderName string `yaml:"header_name"`

	Keys []APIKey `yaml:"keys"`
}

// APIKeyAuthenticator validates keys against a fixed table of hashes.
type APIKeyAuthenticator struct {
	header string
	keys   []APIKey
	now    func() time.Time
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(config APIKeyConfig) *APIKeyAuthenticator {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	keys := make([]APIKey, len(config.Keys))
	for i, k := range config.Keys {
		k.Hash = strings.ToLower(strings.TrimSpace(k.Hash))
		keys[i] = k
	}
	return &APIKeyAuthenticator{header: config.HeaderName, keys: keys, now: time.Now}
}

// Name returns "api_key".
func (a *APIKeyAuthenticator) Name() string { return "api_key" }

// Supports returns true if the request contains an API key header.
func (a *APIKeyAuthenticator) Supports(r *http.Request) bool {
	return r.Header.Get(a.header) != ""
}

// Authenticate looks the key up by hash. Every entry is compared so the
// time taken does not depend on which one matches.
func (a *APIKeyAuthenticator) Authenticate(_ context.Context, r *http.Request) (*Identity, error) {
	key := strings.TrimSpace(r.Header.Get(a.header))
	if key == "" {
		return nil, ErrMissingCredentials
	}
	hash := HashAPIKey(key)

	var match *APIKey
	for i := range a.keys {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(a.keys[i].Hash)) == 1 {
			match = &a.keys[i]
		}
	}
	if match == nil {
		return nil, ErrInvalidCredentials
	}
	if !match.ExpiresAt.IsZero() && a.now().After(match.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return &Identity{
		Principal: match.Principal,
		Roles:     match.Roles,
		Method:    AuthMethodAPIKey,
		ExpiresAt: match.ExpiresAt,
		Claims:    map[string]any{"key_id": match.ID},
	}, nil
}

// HashAPIKey hashes an API key using SHA-256 for storage.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

var _ Authenticator = (*APIKeyAuthenticator)(nil)
