package auth

import (
	"context"
	"testing"
	"time"
)

func TestIdentity_Roles(t *testing.T) {
	id := &Identity{Principal: "alice", Roles: []string{"viewer"}}
	if !id.HasRole("viewer") || id.HasRole("cache-admin") {
		t.Error("HasRole mismatch")
	}
	if !id.HasAnyRole() || !id.HasAnyRole("cache-admin", "viewer") || id.HasAnyRole("cache-admin") {
		t.Error("HasAnyRole mismatch")
	}
}

func TestIdentity_IsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if (&Identity{}).IsExpired(now) {
		t.Error("zero expiry expired")
	}
	if !(&Identity{ExpiresAt: now.Add(-time.Second)}).IsExpired(now) {
		t.Error("past expiry not expired")
	}
	if (&Identity{ExpiresAt: now.Add(time.Second)}).IsExpired(now) {
		t.Error("future expiry expired")
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if IdentityFromContext(ctx) != nil || PrincipalFromContext(ctx) != "" {
		t.Fatal("empty context carries an identity")
	}
	id := &Identity{Principal: "alice"}
	ctx = WithIdentity(ctx, id)
	if IdentityFromContext(ctx) != id || PrincipalFromContext(ctx) != "alice" {
		t.Error("identity not retrieved")
	}
}
