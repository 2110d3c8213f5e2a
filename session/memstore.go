package session

import (
	"context"
	"sync"
	"time"
)

// MemStore is the in-process [Store]. It backs redis-less development
// deployments (where the health endpoint reports the database as
// not_configured) and serves as the test double for engine and flow tests.
// Semantics mirror [PGStore], including the rotate compare-and-swap.
type MemStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string]*Session)}
}

// Create persists a new session.
func (m *MemStore) Create(_ context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.SessionID] = sess.clone()
	return nil
}

// Get returns a live session or [ErrNotFound].
func (m *MemStore) Get(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// TouchLastSeen updates LastSeenAt and returns current metadata.
func (m *MemStore) TouchLastSeen(_ context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	sess.LastSeenAt = time.Now()
	return sess.clone(), nil
}

// Invalidate destroys a session. Idempotent.
func (m *MemStore) Invalidate(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// InvalidateAllForUser destroys every session owned by a user.
func (m *MemStore) InvalidateAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, sess := range m.sessions {
		if sess.UserID == userID {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// SessionIDsForUser lists live session IDs owned by a user.
func (m *MemStore) SessionIDsForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var ids []string
	for id, sess := range m.sessions {
		if sess.UserID == userID && sess.ExpiresAt.After(now) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// RotateRefreshHash performs the rotation compare-and-swap under the store
// lock: exactly one concurrent caller can observe the provided digest.
func (m *MemStore) RotateRefreshHash(_ context.Context, sessionID string, provided, next [32]byte, extendTo time.Time) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}

	if sess.RefreshHash != provided {
		// replay: kill the chain so the stolen successor stops working
		delete(m.sessions, sessionID)
		return nil, ErrRefreshHashMismatch
	}

	sess.RefreshHash = next
	sess.LastSeenAt = time.Now()
	if !extendTo.IsZero() {
		sess.ExpiresAt = extendTo
	}
	return sess.clone(), nil
}

// DeleteExpired removes expired sessions.
func (m *MemStore) DeleteExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range m.sessions {
		if !sess.ExpiresAt.After(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds: the store lives in-process.
func (m *MemStore) Ping(context.Context) error { return nil }

// Len reports the number of stored sessions, expired included. Test helper.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemStore) live(sessionID string) (*Session, bool) {
	sess, ok := m.sessions[sessionID]
	if !ok || !sess.ExpiresAt.After(time.Now()) {
		return nil, false
	}
	return sess, true
}
