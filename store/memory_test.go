package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryUserUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.CreateUser(ctx, &User{Username: "gkama", Email: "gkama@test.com", PasswordHash: "h"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if _, err := m.CreateUser(ctx, &User{Username: "GKAMA", Email: "other@test.com", PasswordHash: "h"}); !errors.Is(err, ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestMemoryUserLookupExcludesDeleted(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateUser(ctx, &User{Username: "gkama", Email: "gkama@test.com", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	m.mu.Lock()
	m.users[created.ID].Deleted = true
	m.mu.Unlock()

	if _, err := m.GetUserByUsername(ctx, "gkama"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted user must not resolve, got %v", err)
	}
	if _, err := m.GetUserByID(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted user must not resolve by id, got %v", err)
	}
}

func TestMemoryClientAPIKeyLookup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateClient(ctx, &Client{
		Name:            "Reporting Client",
		Slug:            "reporting-client",
		Enabled:         true,
		PrimaryAPIKey:   "primary-key",
		SecondaryAPIKey: "secondary-key",
	})
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}

	for _, key := range []string{"primary-key", "secondary-key"} {
		got, err := m.GetClientByAPIKey(ctx, key)
		if err != nil {
			t.Fatalf("GetClientByAPIKey(%q) failed: %v", key, err)
		}
		if got.ID != created.ID {
			t.Fatalf("expected client %d, got %d", created.ID, got.ID)
		}
	}

	if _, err := m.GetClientByAPIKey(ctx, "unknown-key"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryClientSlugUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.CreateClient(ctx, &Client{Name: "A", Slug: "dupe"}); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	if _, err := m.CreateClient(ctx, &Client{Name: "B", Slug: "Dupe"}); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}
}

func TestMemoryEnsureRoleIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.EnsureRole(ctx, RoleClient)
	if err != nil {
		t.Fatalf("EnsureRole failed: %v", err)
	}
	second, err := m.EnsureRole(ctx, RoleClient)
	if err != nil {
		t.Fatalf("EnsureRole failed: %v", err)
	}

	if first.ID != second.ID || first.PublicKey != second.PublicKey {
		t.Fatalf("EnsureRole must return the same row: %+v vs %+v", first, second)
	}
}

func TestMemoryRefreshTokenLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	created, err := m.CreateRefreshToken(ctx, &RefreshToken{
		Token:    "opaque-token",
		ClientID: 7,
		Expires:  now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}
	if !created.Active(now) {
		t.Fatal("fresh token must be active")
	}

	revoked, err := m.RevokeRefreshToken(ctx, 7, 0, "opaque-token", now)
	if err != nil {
		t.Fatalf("RevokeRefreshToken failed: %v", err)
	}
	if revoked.Revoked == nil {
		t.Fatal("revoked timestamp must be set")
	}
	if revoked.Active(now) {
		t.Fatal("revoked token must not be active")
	}

	// Double revoke: the active-row lookup excludes already-revoked rows.
	if _, err := m.RevokeRefreshToken(ctx, 7, 0, "opaque-token", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double revoke must be ErrNotFound, got %v", err)
	}
}

func TestMemoryRevokeWrongOwner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()

	if _, err := m.CreateRefreshToken(ctx, &RefreshToken{
		Token:    "opaque-token",
		ClientID: 7,
		Expires:  now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateRefreshToken failed: %v", err)
	}

	if _, err := m.RevokeRefreshToken(ctx, 8, 0, "opaque-token", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong owner must be ErrNotFound, got %v", err)
	}
}

func TestRefreshTokenActiveWindow(t *testing.T) {
	now := time.Now().UTC()
	token := RefreshToken{Expires: now.Add(time.Minute)}

	if !token.Active(now) {
		t.Fatal("unexpired, unrevoked token must be active")
	}
	if token.Active(now.Add(2 * time.Minute)) {
		t.Fatal("expired token must not be active")
	}

	revoked := now
	token.Revoked = &revoked
	if token.Active(now) {
		t.Fatal("revoked token must not be active")
	}
}
