package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestSession(id, userID string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		SessionID:   id,
		UserID:      userID,
		LoginType:   LoginTypeEmail,
		RefreshHash: digest(1),
		CreatedAt:   now,
		LastSeenAt:  now,
		ExpiresAt:   now.Add(ttl),
	}
}

func digest(b byte) [32]byte {
	var d [32]byte
	for i := range d {
		d[i] = b
	}
	return d
}

func TestMemStoreCreateGet(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	sess := newTestSession("s1", "u1", time.Hour)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" {
		t.Errorf("user = %q, want u1", got.UserID)
	}

	// Mutating the returned session must not leak back into the store.
	got.UserID = "mutated"
	again, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.UserID != "u1" {
		t.Error("store returned an aliased session")
	}
}

func TestMemStoreMissingAndExpiredAreIndistinguishable(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("expired", "u1", -time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, missingErr := store.Get(ctx, "never-existed")
	_, expiredErr := store.Get(ctx, "expired")

	if !errors.Is(missingErr, ErrNotFound) {
		t.Fatalf("missing: %v, want ErrNotFound", missingErr)
	}
	if !errors.Is(expiredErr, ErrNotFound) {
		t.Fatalf("expired: %v, want ErrNotFound", expiredErr)
	}

	_, missingTouch := store.TouchLastSeen(ctx, "never-existed")
	_, expiredTouch := store.TouchLastSeen(ctx, "expired")
	if !errors.Is(missingTouch, ErrNotFound) || !errors.Is(expiredTouch, ErrNotFound) {
		t.Fatalf("touch errors differ: %v vs %v", missingTouch, expiredTouch)
	}
}

func TestMemStoreRotateSwapsDigest(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "u1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	rotated, err := store.RotateRefreshHash(ctx, "s1", digest(1), digest(2), time.Time{})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if rotated.RefreshHash != digest(2) {
		t.Fatal("digest not swapped")
	}

	// Second rotation with the new digest keeps working.
	if _, err := store.RotateRefreshHash(ctx, "s1", digest(2), digest(3), time.Time{}); err != nil {
		t.Fatalf("second rotate: %v", err)
	}
}

func TestMemStoreRotateReplayDestroysSession(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "u1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.RotateRefreshHash(ctx, "s1", digest(1), digest(2), time.Time{}); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	// Presenting the superseded digest is a replay: chain invalidation.
	_, err := store.RotateRefreshHash(ctx, "s1", digest(1), digest(9), time.Time{})
	if !errors.Is(err, ErrRefreshHashMismatch) {
		t.Fatalf("replay rotate = %v, want ErrRefreshHashMismatch", err)
	}

	// The current digest must be dead too.
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session survived replay: %v", err)
	}
}

func TestMemStoreRotateSingleWinner(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "u1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		next := digest(byte(10 + i))
		go func() {
			defer wg.Done()
			_, err := store.RotateRefreshHash(ctx, "s1", digest(1), next, time.Time{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		if !errors.Is(err, ErrRefreshHashMismatch) && !errors.Is(err, ErrNotFound) {
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one rotation winner, got %d", wins)
	}
}

func TestMemStoreRotateExpiryPolicy(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	sess := newTestSession("s1", "u1", time.Hour)
	originalExpiry := sess.ExpiresAt
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Zero extendTo preserves expiry (fixed policy).
	rotated, err := store.RotateRefreshHash(ctx, "s1", digest(1), digest(2), time.Time{})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !rotated.ExpiresAt.Equal(originalExpiry) {
		t.Fatalf("fixed policy moved expiry: %v -> %v", originalExpiry, rotated.ExpiresAt)
	}

	// Non-zero extendTo moves it (sliding policy).
	extended := time.Now().Add(48 * time.Hour)
	rotated, err = store.RotateRefreshHash(ctx, "s1", digest(2), digest(3), extended)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !rotated.ExpiresAt.Equal(extended) {
		t.Fatalf("sliding policy expiry = %v, want %v", rotated.ExpiresAt, extended)
	}
}

func TestMemStoreInvalidateIsIdempotent(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("s1", "u1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if err := store.Invalidate(ctx, "s1"); err != nil {
		t.Fatalf("second invalidate: %v", err)
	}
	if err := store.Invalidate(ctx, "never-existed"); err != nil {
		t.Fatalf("invalidate absent: %v", err)
	}
}

func TestMemStorePerUserOperations(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := store.Create(ctx, newTestSession(id, "alice", time.Hour)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.Create(ctx, newTestSession("b1", "bob", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}

	ids, err := store.SessionIDsForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("alice sessions = %d, want 3", len(ids))
	}

	removed, err := store.InvalidateAllForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("removed = %d, want 3", removed)
	}

	if _, err := store.Get(ctx, "b1"); err != nil {
		t.Fatalf("bob's session must survive: %v", err)
	}
}

func TestMemStoreDeleteExpired(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("live", "u1", time.Hour)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newTestSession("dead", "u1", -time.Minute)); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("len = %d, want 1", store.Len())
	}
}
