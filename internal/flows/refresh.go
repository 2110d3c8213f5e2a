package flows

import (
	"context"
	"errors"
	"time"

	"github.com/tripcents/authcore/jwt"
	"github.com/tripcents/authcore/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureRateLimited
	RefreshFailureSessionNotFound
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureUserLookup
	RefreshFailureIssue
)

// RefreshResult carries either the reissued token pair or failure metadata.
type RefreshResult struct {
	Failure          RefreshFailureKind
	Err              error
	UserID           string
	SessionID        string
	Session          *session.Session
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type RefreshSessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Session, error)
	RotateRefreshHash(
		ctx context.Context,
		sessionID string,
		provided, next [32]byte,
		extendTo time.Time,
	) (*session.Session, error)
}

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess     int
	RefreshFailure     int
	RefreshRateLimited int
	ReplayDetected     int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	ParseRefresh    func(string) (*jwt.RefreshClaims, error)
	HashToken       func(string) [32]byte
	NewRefreshToken func(userID, sessionID string, notAfter time.Time) (string, time.Time, error)
	NewAccessToken  func(userID, sessionID, email, name string) (string, time.Time, error)
	GetUserByID     func(ctx context.Context, userID string) (UserRecord, error)

	CheckRate func(ctx context.Context, sessionID string) error

	SlidingExpiration bool
	RefreshTTL        func() time.Duration
	Now               func() time.Time

	SessionStore RefreshSessionStore

	// Store sentinels matched with errors.Is for result classification.
	NotFound     error
	HashMismatch error

	MetricInc func(int)
	Warn      func(string, ...any)
	Metrics   RefreshMetrics
}

// RunRefresh executes one rotation: the presented token is verified, the
// stored hash is swapped for the next token's hash in a single conditional
// write, and a fresh pair is issued. Concurrent presentations of the same
// token race on that write; exactly one wins.
//
// A hash mismatch on a live session means the presented token was already
// rotated away. The store destroys the session on that path, so the whole
// chain dies with the replay.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}

	claims, err := deps.ParseRefresh(refreshToken)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	sessionID := claims.SID
	userID := claims.Subject

	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, sessionID); err != nil {
			deps.MetricInc(deps.Metrics.RefreshRateLimited)
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, SessionID: sessionID, UserID: userID}
		}
	}

	// Under the fixed policy the next token must not outlive the session.
	// The pre-read is safe because a fixed-policy expiry never moves; the
	// conditional rotation below still decides the race.
	var notAfter, extendTo time.Time
	if deps.SlidingExpiration {
		notAfter = deps.Now().Add(deps.RefreshTTL())
		extendTo = notAfter
	} else {
		sess, err := deps.SessionStore.Get(ctx, sessionID)
		if err != nil {
			deps.MetricInc(deps.Metrics.RefreshFailure)
			if errors.Is(err, deps.NotFound) {
				return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID, UserID: userID}
			}
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SessionID: sessionID, UserID: userID}
		}
		notAfter = sess.ExpiresAt
	}

	nextToken, nextExp, err := deps.NewRefreshToken(userID, sessionID, notAfter)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, UserID: userID}
	}

	sess, err := deps.SessionStore.RotateRefreshHash(
		ctx,
		sessionID,
		deps.HashToken(refreshToken),
		deps.HashToken(nextToken),
		extendTo,
	)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		switch {
		case errors.Is(err, deps.HashMismatch):
			deps.MetricInc(deps.Metrics.ReplayDetected)
			deps.Warn("authcore: refresh token replay detected, session destroyed", "session_id", sessionID)
			return RefreshResult{Failure: RefreshFailureReuse, Err: err, SessionID: sessionID, UserID: userID}
		case errors.Is(err, deps.NotFound):
			return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err, SessionID: sessionID, UserID: userID}
		default:
			return RefreshResult{Failure: RefreshFailureStore, Err: err, SessionID: sessionID, UserID: userID}
		}
	}

	user, err := deps.GetUserByID(ctx, sess.UserID)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureUserLookup, Err: err, SessionID: sessionID, UserID: sess.UserID, Session: sess}
	}

	access, accessExp, err := deps.NewAccessToken(user.UserID, sessionID, user.Email, user.Name)
	if err != nil {
		deps.MetricInc(deps.Metrics.RefreshFailure)
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, SessionID: sessionID, UserID: user.UserID, Session: sess}
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	return RefreshResult{
		Failure:          RefreshFailureNone,
		UserID:           user.UserID,
		SessionID:        sessionID,
		Session:          sess,
		AccessToken:      access,
		RefreshToken:     nextToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: nextExp,
	}
}
