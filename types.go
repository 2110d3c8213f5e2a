package authcore

import (
	"context"
	"time"

	"github.com/tripcents/authcore/pgpool"
	"github.com/tripcents/authcore/session"
)

// UserProvider is the primary interface that callers must implement to
// integrate authcore with their user database. It covers credential
// verification, account creation, and identity lookup. Password storage and
// hashing stay on the provider side; the engine never sees a hash.
//
// Authenticate must return [ErrInvalidCredentials] for a wrong password and
// [ErrUserNotFound] for an unknown email; the engine collapses both into a
// single failure before it reaches a caller.
type UserProvider interface {
	Authenticate(ctx context.Context, email, password string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	ResolveExternal(ctx context.Context, identity ExternalIdentity) (UserRecord, error)
}

// UserRecord is the account record returned by [UserProvider]. It carries
// only what token issuance needs.
type UserRecord struct {
	UserID string
	Email  string
	Name   string
}

// CreateUserInput is the input for [UserProvider.CreateUser].
type CreateUserInput struct {
	Email    string
	Password string
	Name     string
}

// ExternalIdentity describes an identity asserted by an external OAuth
// provider, already verified upstream.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
}

// TokenPair is returned by [Engine.Login], [Engine.Signup], and
// [Engine.Refresh]. The access expiry is always strictly earlier than the
// refresh expiry.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	UserID           string
}

// AuthResult is returned by [Engine.ValidateAccess]. It contains the
// authenticated user's identity as carried in the access token.
type AuthResult struct {
	UserID    string
	SessionID string
	Email     string
	Name      string
}

// SessionInfo is a read-only view of a live session returned by
// [Engine.SessionInfo] and [Engine.Sessions]. Refresh hashes are never
// exposed.
type SessionInfo struct {
	SessionID  string
	UserID     string
	LoginType  session.LoginType
	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

// HealthStatus defines a public type used by authcore APIs.
//
// HealthStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HealthStatus string

const (
	// HealthOK is an exported constant or variable used by the authentication engine.
	HealthOK HealthStatus = "ok"
	// HealthUnavailable is an exported constant or variable used by the authentication engine.
	HealthUnavailable HealthStatus = "unavailable"
	// HealthNotConfigured is an exported constant or variable used by the authentication engine.
	HealthNotConfigured HealthStatus = "not_configured"
)

// HealthReport is returned by [Engine.Health]. Pool statistics are zero
// when the engine runs without a connection pool.
type HealthReport struct {
	Store        HealthStatus
	StoreLatency time.Duration
	Pool         HealthStatus
	PoolStats    pgpool.Stats
}

func sessionInfoFromModel(s *session.Session) *SessionInfo {
	if s == nil {
		return nil
	}
	return &SessionInfo{
		SessionID:  s.SessionID,
		UserID:     s.UserID,
		LoginType:  s.LoginType,
		CreatedAt:  s.CreatedAt,
		LastSeenAt: s.LastSeenAt,
		ExpiresAt:  s.ExpiresAt,
	}
}
