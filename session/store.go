package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned uniformly for absent, expired, and invalidated
// sessions so callers cannot distinguish "never existed" from "expired".
var ErrNotFound = errors.New("session not found")

// ErrRefreshHashMismatch is returned when a rotation presents a refresh
// digest that does not match the session's currently-valid one; the
// signature of a replayed (already-rotated) token.
var ErrRefreshHashMismatch = errors.New("refresh hash mismatch")

// ErrStoreUnavailable is an exported constant or variable used by the authentication engine.
var ErrStoreUnavailable = errors.New("session store unavailable")

// Store is the durable mapping from session identifier to session metadata.
// Implementations must be safe for concurrent use; RotateRefreshHash must
// be a single atomic compare-and-swap, never a read-then-write race.
type Store interface {
	// Create persists a new session row.
	Create(ctx context.Context, sess *Session) error

	// Get returns a live session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// TouchLastSeen updates LastSeenAt and returns current metadata in one
	// step. Concurrent touches are last-write-wins; LastSeenAt is advisory.
	TouchLastSeen(ctx context.Context, sessionID string) (*Session, error)

	// Invalidate destroys a session. Deleting an absent session is not an
	// error (idempotent).
	Invalidate(ctx context.Context, sessionID string) error

	// InvalidateAllForUser destroys every session owned by a user and
	// reports how many were removed.
	InvalidateAllForUser(ctx context.Context, userID string) (int, error)

	// SessionIDsForUser lists the live session IDs owned by a user.
	SessionIDsForUser(ctx context.Context, userID string) ([]string, error)

	// RotateRefreshHash atomically replaces the session's refresh digest
	// when provided matches the stored one. On a mismatch against a live
	// session the whole session is destroyed (refresh-chain invalidation)
	// and ErrRefreshHashMismatch is returned. A non-zero extendTo moves the
	// session expiry (sliding policy); zero preserves it (fixed policy).
	RotateRefreshHash(ctx context.Context, sessionID string, provided, next [32]byte, extendTo time.Time) (*Session, error)

	// DeleteExpired removes expired rows and reports how many.
	DeleteExpired(ctx context.Context) (int, error)

	// Ping round-trips the backing store for health checks.
	Ping(ctx context.Context) error
}
