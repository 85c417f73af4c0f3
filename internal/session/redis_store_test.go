package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"mosaic/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	st, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return st, s
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_123", Email: "avery@example.com", DisplayName: "Avery"}

	if err := st.SaveRefreshSession(ctx, "token-hash", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	got, err := st.LookupRefreshSession(ctx, "token-hash")
	if err != nil {
		t.Fatalf("LookupRefreshSession failed: %v", err)
	}
	if got.ID != user.ID || got.Email != user.Email || got.DisplayName != user.DisplayName {
		t.Errorf("expected %+v, got %+v", user, got)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_456", Email: "kai@example.com"}

	if err := st.SaveRefreshSession(ctx, "expired-token", user, time.Now().Add(time.Millisecond)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}

	s.FastForward(2 * time.Millisecond)

	if _, err := st.LookupRefreshSession(ctx, "expired-token"); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	if _, err := st.LookupRefreshSession(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	ctx := context.Background()
	user := store.User{ID: "usr_789", Email: "sam@example.com"}

	if err := st.SaveRefreshSession(ctx, "token-to-revoke", user, time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession failed: %v", err)
	}
	if err := st.RevokeRefreshSession(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("RevokeRefreshSession failed: %v", err)
	}
	if _, err := st.LookupRefreshSession(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked token, got nil")
	}
}

func TestRejectsAlreadyExpiredSession(t *testing.T) {
	st, s := setupTestRedis(t)
	defer st.Close()
	defer s.Close()

	user := store.User{ID: "usr_1", Email: "a@example.com"}
	if err := st.SaveRefreshSession(context.Background(), "stale", user, time.Now().Add(-time.Minute)); err == nil {
		t.Error("expected error saving an already-expired session, got nil")
	}
}
