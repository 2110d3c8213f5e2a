package flows

import (
	"context"

	"github.com/tripcents/authcore/jwt"
)

type LogoutSessionStore interface {
	Invalidate(ctx context.Context, sessionID string) error
	InvalidateAllForUser(ctx context.Context, userID string) (int, error)
}

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	ParseAccess  func(string) (*jwt.AccessClaims, error)
	SessionStore LogoutSessionStore
	MetricInc    func(int)
	MetricID     int
}

type LogoutByAccessResult struct {
	SessionID string
	Err       error
}

// RunLogout destroys a single session. Missing sessions are not an error;
// logout is idempotent.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) error {
	err := deps.SessionStore.Invalidate(ctx, sessionID)
	if err == nil && deps.MetricInc != nil {
		deps.MetricInc(deps.MetricID)
	}
	return err
}

// RunLogoutAll destroys every live session for the user and reports how
// many were removed.
func RunLogoutAll(ctx context.Context, userID string, deps LogoutDeps) (int, error) {
	removed, err := deps.SessionStore.InvalidateAllForUser(ctx, userID)
	if err == nil && deps.MetricInc != nil {
		for i := 0; i < removed; i++ {
			deps.MetricInc(deps.MetricID)
		}
	}
	return removed, err
}

// RunLogoutByAccessToken resolves the session from a bearer access token
// and destroys it.
func RunLogoutByAccessToken(ctx context.Context, tokenStr string, deps LogoutDeps) LogoutByAccessResult {
	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		return LogoutByAccessResult{Err: err}
	}
	return LogoutByAccessResult{
		SessionID: claims.SID,
		Err:       RunLogout(ctx, claims.SID, deps),
	}
}
