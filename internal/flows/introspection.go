package flows

import (
	"context"
	"errors"
	"time"

	"github.com/tripcents/authcore/session"
)

type IntrospectionSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	TouchLastSeen(ctx context.Context, sessionID string) (*session.Session, error)
	SessionIDsForUser(ctx context.Context, userID string) ([]string, error)
	Ping(ctx context.Context) error
}

// IntrospectionDeps captures session lookup and health dependencies.
type IntrospectionDeps struct {
	SessionStore       IntrospectionSessionStore
	NotFound           error
	EngineNotReadyErr  error
	SessionNotFoundErr error
}

// RunSessionInfo returns the live session and bumps its last-seen stamp.
// Expired and missing sessions are indistinguishable to the caller.
func RunSessionInfo(ctx context.Context, sessionID string, deps IntrospectionDeps) (*session.Session, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if sessionID == "" {
		return nil, deps.SessionNotFoundErr
	}

	sess, err := deps.SessionStore.TouchLastSeen(ctx, sessionID)
	if err != nil {
		if errors.Is(err, deps.NotFound) {
			return nil, deps.SessionNotFoundErr
		}
		return nil, err
	}
	return sess, nil
}

// RunListSessions returns the live sessions for a user, read-only.
func RunListSessions(ctx context.Context, userID string, deps IntrospectionDeps) ([]*session.Session, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}

	ids, err := deps.SessionStore.SessionIDsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := deps.SessionStore.Get(ctx, id)
		if err != nil {
			if errors.Is(err, deps.NotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// RunHealth pings the backing store and reports reachability with latency.
func RunHealth(ctx context.Context, deps IntrospectionDeps) (bool, time.Duration) {
	if deps.SessionStore == nil {
		return false, 0
	}
	start := time.Now()
	err := deps.SessionStore.Ping(ctx)
	return err == nil, time.Since(start)
}
