package authcore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tripcents/authcore/internal"
	"github.com/tripcents/authcore/internal/flows"
	"github.com/tripcents/authcore/internal/rate"
	"github.com/tripcents/authcore/jwt"
	"github.com/tripcents/authcore/pgpool"
	"github.com/tripcents/authcore/session"
)

// Engine defines a public type used by authcore APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	log          zerolog.Logger
	sessionStore session.Store
	pool         *pgpool.Pool
	limiter      rate.Limiter
	jwtManager   *jwt.Manager
	metrics      *Metrics
	userProvider UserProvider
	sweeper      *session.Sweeper
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.sweeper != nil {
		e.sweeper.Stop()
	}
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// PoolStats reports connection pool gauges, zero without a pool.
func (e *Engine) PoolStats() pgpool.Stats {
	if e == nil || e.pool == nil {
		return pgpool.Stats{}
	}
	return e.pool.Stats()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	result := flows.RunLogin(ctx, email, password, e.loginDeps())
	return e.mapLoginResult(result)
}

// Signup describes the signup operation and its observable behavior.
//
// Signup may return an error when input validation, dependency calls, or security checks fail.
// Signup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Signup(ctx context.Context, input CreateUserInput) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	result := flows.RunSignup(ctx, input.Email, input.Password, input.Name, e.loginDeps())
	return e.mapLoginResult(result)
}

// LoginExternal describes the loginexternal operation and its observable behavior.
//
// LoginExternal may return an error when input validation, dependency calls, or security checks fail.
// LoginExternal does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginExternal(ctx context.Context, identity ExternalIdentity) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	result := flows.RunLoginExternal(ctx, identity.Provider, identity.Subject, identity.Email, identity.Name, e.loginDeps())
	return e.mapLoginResult(result)
}

// Refresh describes the refresh operation and its observable behavior.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.jwtManager == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricRefreshLatency, time.Since(start))
		}()
	}

	result := flows.RunRefresh(ctx, refreshToken, e.refreshDeps())
	switch result.Failure {
	case flows.RefreshFailureNone:
		return &TokenPair{
			AccessToken:      result.AccessToken,
			RefreshToken:     result.RefreshToken,
			AccessExpiresAt:  result.AccessExpiresAt,
			RefreshExpiresAt: result.RefreshExpiresAt,
			SessionID:        result.SessionID,
			UserID:           result.UserID,
		}, nil
	case flows.RefreshFailureDecode:
		return nil, mapTokenError(result.Err)
	case flows.RefreshFailureRateLimited:
		return nil, rateLimitedError(result.Err)
	case flows.RefreshFailureSessionNotFound:
		return nil, ErrSessionNotFound
	case flows.RefreshFailureReuse:
		// MetricReplayDetected is counted inside the flow; here only the
		// destroyed session is accounted for.
		e.metricInc(MetricSessionInvalidated)
		return nil, ErrSessionAlreadyRotated
	case flows.RefreshFailureUserLookup:
		// Account deleted mid-session; indistinguishable from a dead session.
		return nil, ErrSessionNotFound
	default:
		return nil, e.mapStoreError(result.Err)
	}
}

// ValidateAccess describes the validateaccess operation and its observable behavior.
//
// ValidateAccess may return an error when input validation, dependency calls, or security checks fail.
// ValidateAccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAccess(_ context.Context, tokenStr string) (*AuthResult, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.jwtManager.ParseAccess(tokenStr)
	if err != nil {
		return nil, mapTokenError(err)
	}
	return &AuthResult{
		UserID:    claims.Subject,
		SessionID: claims.SID,
		Email:     claims.Email,
		Name:      claims.Name,
	}, nil
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if err := flows.RunLogout(ctx, sessionID, e.logoutDeps()); err != nil {
		return e.mapStoreError(err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// LogoutByAccessToken describes the logoutbyaccesstoken operation and its observable behavior.
//
// LogoutByAccessToken may return an error when input validation, dependency calls, or security checks fail.
// LogoutByAccessToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutByAccessToken(ctx context.Context, tokenStr string) error {
	if e == nil || e.sessionStore == nil || e.jwtManager == nil {
		return ErrEngineNotReady
	}
	result := flows.RunLogoutByAccessToken(ctx, tokenStr, e.logoutDeps())
	if result.Err != nil {
		if result.SessionID == "" {
			return mapTokenError(result.Err)
		}
		return e.mapStoreError(result.Err)
	}
	e.metricInc(MetricLogout)
	return nil
}

// LogoutAll destroys every live session for the user and reports how many
// were removed.
func (e *Engine) LogoutAll(ctx context.Context, userID string) (int, error) {
	if e == nil || e.sessionStore == nil {
		return 0, ErrEngineNotReady
	}
	removed, err := flows.RunLogoutAll(ctx, userID, e.logoutDeps())
	if err != nil {
		return 0, e.mapStoreError(err)
	}
	e.metricInc(MetricLogoutAll)
	return removed, nil
}

// SessionInfo describes the sessioninfo operation and its observable behavior.
//
// SessionInfo may return an error when input validation, dependency calls, or security checks fail.
// SessionInfo does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	sess, err := flows.RunSessionInfo(ctx, sessionID, e.introspectionDeps())
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, e.mapStoreError(err)
	}
	return sessionInfoFromModel(sess), nil
}

// Sessions lists the live sessions for a user.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]*SessionInfo, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	models, err := flows.RunListSessions(ctx, userID, e.introspectionDeps())
	if err != nil {
		return nil, e.mapStoreError(err)
	}
	infos := make([]*SessionInfo, 0, len(models))
	for _, m := range models {
		infos = append(infos, sessionInfoFromModel(m))
	}
	return infos, nil
}

// Health describes the health operation and its observable behavior.
//
// Health may return an error when input validation, dependency calls, or security checks fail.
// Health does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Store: HealthNotConfigured,
		Pool:  HealthNotConfigured,
	}
	if e == nil {
		return report
	}

	if e.sessionStore != nil {
		ok, latency := flows.RunHealth(ctx, e.introspectionDeps())
		report.StoreLatency = latency
		if ok {
			report.Store = HealthOK
		} else {
			report.Store = HealthUnavailable
		}
	}

	if e.pool != nil {
		report.PoolStats = e.pool.Stats()
		if err := e.pool.Ping(ctx); err != nil {
			report.Pool = HealthUnavailable
		} else {
			report.Pool = HealthOK
		}
	}

	return report
}

/*
====================================
ERROR MAPPING
====================================
*/

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrWrongType):
		return ErrTokenWrongType
	default:
		return ErrTokenMalformed
	}
}

func (e *Engine) mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, pgpool.ErrPoolExhausted), errors.Is(err, pgpool.ErrAcquireTimeout):
		// Pool saturation surfaces as-is so callers can shed load.
		return err
	case errors.Is(err, session.ErrStoreUnavailable):
		return fmt.Errorf("%w: %v", ErrBackingStoreUnavailable, err)
	}
	return err
}

func (e *Engine) mapLoginResult(result flows.LoginResult) (*TokenPair, error) {
	switch result.Failure {
	case flows.LoginFailureNone:
		return &TokenPair{
			AccessToken:      result.AccessToken,
			RefreshToken:     result.RefreshToken,
			AccessExpiresAt:  result.AccessExpiresAt,
			RefreshExpiresAt: result.RefreshExpiresAt,
			SessionID:        result.SessionID,
			UserID:           result.UserID,
		}, nil
	case flows.LoginFailureRateLimited:
		return nil, rateLimitedError(result.Err)
	case flows.LoginFailureBadCredentials:
		return nil, ErrInvalidCredentials
	case flows.LoginFailureUserExists:
		return nil, ErrUserExists
	default:
		return nil, e.mapStoreError(result.Err)
	}
}

/*
====================================
FLOW DEPENDENCY WIRING
====================================
*/

func (e *Engine) loginDeps() flows.LoginDeps {
	return flows.LoginDeps{
		Authenticate: func(ctx context.Context, email, password string) (flows.UserRecord, error) {
			user, err := e.userProvider.Authenticate(ctx, email, password)
			return flowUser(user), err
		},
		CreateUser: func(ctx context.Context, email, password, name string) (flows.UserRecord, error) {
			user, err := e.userProvider.CreateUser(ctx, CreateUserInput{Email: email, Password: password, Name: name})
			return flowUser(user), err
		},
		ResolveExternal: func(ctx context.Context, provider, subject, email, name string) (flows.UserRecord, error) {
			user, err := e.userProvider.ResolveExternal(ctx, ExternalIdentity{
				Provider: provider,
				Subject:  subject,
				Email:    email,
				Name:     name,
			})
			return flowUser(user), err
		},
		ClientIPFromContext: ClientIPFromContext,
		CheckRate:           e.checkLoginRate,
		NewSessionID:        newSessionID,
		NewRefreshToken:     e.jwtManager.CreateRefresh,
		NewAccessToken:      e.jwtManager.CreateAccess,
		HashToken:           internal.HashRefreshToken,
		SessionStore:        e.sessionStore,
		MetricInc:           e.flowMetricInc,
		Warn:                e.flowWarn,
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginRateLimited: int(MetricLoginRateLimited),
			SignupSuccess:    int(MetricSignupSuccess),
			SignupFailure:    int(MetricSignupFailure),
			SessionCreated:   int(MetricSessionCreated),
		},
		Errors: flows.LoginErrors{
			EngineNotReady:     ErrEngineNotReady,
			InvalidCredentials: ErrInvalidCredentials,
			UserNotFound:       ErrUserNotFound,
			UserExists:         ErrUserExists,
			RateLimited:        ErrRateLimited,
		},
	}
}

func (e *Engine) refreshDeps() flows.RefreshDeps {
	return flows.RefreshDeps{
		ParseRefresh:    e.jwtManager.ParseRefresh,
		HashToken:       internal.HashRefreshToken,
		NewRefreshToken: e.jwtManager.CreateRefresh,
		NewAccessToken:  e.jwtManager.CreateAccess,
		GetUserByID: func(ctx context.Context, userID string) (flows.UserRecord, error) {
			user, err := e.userProvider.GetUserByID(ctx, userID)
			return flowUser(user), err
		},
		CheckRate:         e.checkRefreshRate,
		SlidingExpiration: e.config.Session.SlidingExpiration,
		RefreshTTL:        e.jwtManager.RefreshTTL,
		SessionStore:      e.sessionStore,
		NotFound:          session.ErrNotFound,
		HashMismatch:      session.ErrRefreshHashMismatch,
		MetricInc:         e.flowMetricInc,
		Warn:              e.flowWarn,
		Metrics: flows.RefreshMetrics{
			RefreshSuccess:     int(MetricRefreshSuccess),
			RefreshFailure:     int(MetricRefreshFailure),
			RefreshRateLimited: int(MetricRefreshRateLimited),
			ReplayDetected:     int(MetricReplayDetected),
		},
	}
}

func (e *Engine) logoutDeps() flows.LogoutDeps {
	return flows.LogoutDeps{
		ParseAccess:  e.jwtManager.ParseAccess,
		SessionStore: e.sessionStore,
		MetricInc:    e.flowMetricInc,
		MetricID:     int(MetricSessionInvalidated),
	}
}

func (e *Engine) introspectionDeps() flows.IntrospectionDeps {
	return flows.IntrospectionDeps{
		SessionStore:       e.sessionStore,
		NotFound:           session.ErrNotFound,
		EngineNotReadyErr:  ErrEngineNotReady,
		SessionNotFoundErr: ErrSessionNotFound,
	}
}

func (e *Engine) flowMetricInc(id int) {
	e.metricInc(MetricID(id))
}

func (e *Engine) flowWarn(msg string, kv ...any) {
	event := e.log.Warn()
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	event.Msg(msg)
}

func (e *Engine) checkLoginRate(ctx context.Context, identifier, ip string) error {
	return e.checkRate(ctx, identifier+":"+ip, rate.Policy{
		Limit:     e.config.RateLimit.LoginLimit,
		Window:    e.config.RateLimit.LoginWindow,
		KeyPrefix: "login",
	})
}

func (e *Engine) checkRefreshRate(ctx context.Context, sessionID string) error {
	return e.checkRate(ctx, sessionID, rate.Policy{
		Limit:     e.config.RateLimit.RefreshLimit,
		Window:    e.config.RateLimit.RefreshWindow,
		KeyPrefix: "refresh",
	})
}

func (e *Engine) checkRate(ctx context.Context, key string, policy rate.Policy) error {
	if e.limiter == nil || !e.config.RateLimit.Enabled {
		return nil
	}
	res, err := e.limiter.Check(ctx, key, policy)
	if err != nil {
		// Fail-open: a dead limiter backend must not lock out logins.
		e.metricInc(MetricLimiterFailOpen)
		e.log.Warn().Err(err).Str("prefix", policy.KeyPrefix).Msg("authcore: rate limiter unavailable, allowing request")
		return nil
	}
	if !res.Allowed {
		e.metricInc(MetricRateLimitHit)
		return &RateLimitedError{RetryAfter: res.RetryAfter}
	}
	return nil
}

// rateLimitedError preserves the typed denial, and with it the limiter's
// Retry-After hint, when the flow carried one.
func rateLimitedError(err error) error {
	if errors.Is(err, ErrRateLimited) {
		return err
	}
	return ErrRateLimited
}

func flowUser(u UserRecord) flows.UserRecord {
	return flows.UserRecord{UserID: u.UserID, Email: u.Email, Name: u.Name}
}

func newSessionID() (string, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return "", err
	}
	return sid.String(), nil
}
