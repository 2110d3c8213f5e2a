package flows

import (
	"context"
	"errors"
	"time"

	"github.com/tripcents/authcore/session"
)

// LoginFailureKind classifies login/signup flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureBadCredentials
	LoginFailureUserExists
	LoginFailureUserStore
	LoginFailureSessionSave
	LoginFailureIssue
)

// LoginResult carries either the issued token pair or failure metadata.
type LoginResult struct {
	Failure          LoginFailureKind
	Err              error
	UserID           string
	SessionID        string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

type LoginSessionStore interface {
	Create(ctx context.Context, sess *session.Session) error
}

// LoginMetrics carries metric IDs needed by login/signup flows.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginRateLimited int
	SignupSuccess    int
	SignupFailure    int
	SessionCreated   int
}

// LoginErrors carries host-level sentinel errors used by login/signup flows.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	UserNotFound       error
	UserExists         error
	RateLimited        error
}

// LoginDeps captures login, signup and external-login dependencies.
type LoginDeps struct {
	Authenticate    func(ctx context.Context, email, password string) (UserRecord, error)
	CreateUser      func(ctx context.Context, email, password, name string) (UserRecord, error)
	ResolveExternal func(ctx context.Context, provider, subject, email, name string) (UserRecord, error)

	ClientIPFromContext func(context.Context) string
	CheckRate           func(ctx context.Context, identifier, ip string) error

	NewSessionID    func() (string, error)
	NewRefreshToken func(userID, sessionID string, notAfter time.Time) (string, time.Time, error)
	NewAccessToken  func(userID, sessionID, email, name string) (string, time.Time, error)
	HashToken       func(string) [32]byte
	Now             func() time.Time

	SessionStore LoginSessionStore

	MetricInc func(int)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Errors  LoginErrors
}

func applyLoginDefaults(deps *LoginDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
}

// RunLogin verifies credentials against the user provider and issues a
// session-backed token pair. Unknown users and wrong passwords produce the
// same failure so callers cannot probe which accounts exist.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	applyLoginDefaults(&deps)
	if deps.Authenticate == nil || deps.SessionStore == nil ||
		deps.NewSessionID == nil || deps.NewRefreshToken == nil ||
		deps.NewAccessToken == nil || deps.HashToken == nil {
		return LoginResult{Failure: LoginFailureUserStore, Err: deps.Errors.EngineNotReady}
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, email, ip); err != nil {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	if password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return LoginResult{Failure: LoginFailureBadCredentials, Err: deps.Errors.InvalidCredentials}
	}

	user, err := deps.Authenticate(ctx, email, password)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		if errors.Is(err, deps.Errors.InvalidCredentials) || errors.Is(err, deps.Errors.UserNotFound) {
			// Uniform failure: do not leak whether the account exists.
			return LoginResult{Failure: LoginFailureBadCredentials, Err: deps.Errors.InvalidCredentials}
		}
		return LoginResult{Failure: LoginFailureUserStore, Err: err}
	}
	password = ""

	res := runIssueSessionTokens(ctx, user, session.LoginTypeEmail, deps)
	if res.Failure == LoginFailureNone {
		deps.MetricInc(deps.Metrics.LoginSuccess)
	} else {
		deps.MetricInc(deps.Metrics.LoginFailure)
	}
	return res
}

// RunSignup creates the account and immediately issues a first session, so
// a successful signup response carries a usable token pair.
func RunSignup(ctx context.Context, email, password, name string, deps LoginDeps) LoginResult {
	applyLoginDefaults(&deps)
	if deps.CreateUser == nil || deps.SessionStore == nil ||
		deps.NewSessionID == nil || deps.NewRefreshToken == nil ||
		deps.NewAccessToken == nil || deps.HashToken == nil {
		return LoginResult{Failure: LoginFailureUserStore, Err: deps.Errors.EngineNotReady}
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckRate != nil {
		if err := deps.CheckRate(ctx, email, ip); err != nil {
			deps.MetricInc(deps.Metrics.LoginRateLimited)
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	user, err := deps.CreateUser(ctx, email, password, name)
	if err != nil {
		deps.MetricInc(deps.Metrics.SignupFailure)
		if errors.Is(err, deps.Errors.UserExists) {
			return LoginResult{Failure: LoginFailureUserExists, Err: err}
		}
		return LoginResult{Failure: LoginFailureUserStore, Err: err}
	}
	password = ""

	res := runIssueSessionTokens(ctx, user, session.LoginTypeSignup, deps)
	if res.Failure == LoginFailureNone {
		deps.MetricInc(deps.Metrics.SignupSuccess)
	} else {
		deps.MetricInc(deps.Metrics.SignupFailure)
	}
	return res
}

// RunLoginExternal resolves an identity asserted by an external provider
// (OAuth) to a local user and issues a session-backed token pair.
func RunLoginExternal(ctx context.Context, provider, subject, email, name string, deps LoginDeps) LoginResult {
	applyLoginDefaults(&deps)
	if deps.ResolveExternal == nil || deps.SessionStore == nil ||
		deps.NewSessionID == nil || deps.NewRefreshToken == nil ||
		deps.NewAccessToken == nil || deps.HashToken == nil {
		return LoginResult{Failure: LoginFailureUserStore, Err: deps.Errors.EngineNotReady}
	}

	user, err := deps.ResolveExternal(ctx, provider, subject, email, name)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		return LoginResult{Failure: LoginFailureUserStore, Err: err}
	}

	res := runIssueSessionTokens(ctx, user, session.LoginTypeOAuth, deps)
	if res.Failure == LoginFailureNone {
		deps.MetricInc(deps.Metrics.LoginSuccess)
	} else {
		deps.MetricInc(deps.Metrics.LoginFailure)
	}
	return res
}

// runIssueSessionTokens mints the pair and persists the session row. The
// session lifetime always equals the refresh token lifetime, so the access
// expiry is strictly earlier than both.
func runIssueSessionTokens(ctx context.Context, user UserRecord, lt session.LoginType, deps LoginDeps) LoginResult {
	sessionID, err := deps.NewSessionID()
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID}
	}

	refreshTok, refreshExp, err := deps.NewRefreshToken(user.UserID, sessionID, time.Time{})
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID, SessionID: sessionID}
	}
	accessTok, accessExp, err := deps.NewAccessToken(user.UserID, sessionID, user.Email, user.Name)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: user.UserID, SessionID: sessionID}
	}

	now := deps.Now()
	sess := &session.Session{
		SessionID:   sessionID,
		UserID:      user.UserID,
		LoginType:   lt,
		RefreshHash: deps.HashToken(refreshTok),
		CreatedAt:   now,
		LastSeenAt:  now,
		ExpiresAt:   refreshExp,
	}
	if err := deps.SessionStore.Create(ctx, sess); err != nil {
		return LoginResult{Failure: LoginFailureSessionSave, Err: err, UserID: user.UserID, SessionID: sessionID}
	}
	deps.MetricInc(deps.Metrics.SessionCreated)

	return LoginResult{
		Failure:          LoginFailureNone,
		UserID:           user.UserID,
		SessionID:        sessionID,
		AccessToken:      accessTok,
		RefreshToken:     refreshTok,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}
}
