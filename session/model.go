package session

import "time"

// LoginType records which authentication path created a session.
type LoginType string

const (
	// LoginTypeEmail is an exported constant or variable used by the authentication engine.
	LoginTypeEmail LoginType = "email"
	// LoginTypeOAuth is an exported constant or variable used by the authentication engine.
	LoginTypeOAuth LoginType = "oauth"
	// LoginTypeSignup is an exported constant or variable used by the authentication engine.
	LoginTypeSignup LoginType = "signup"
)

// Session defines a public type used by authcore APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
// RefreshHash is the digest of the one currently-valid refresh token bound
// to this session; the plaintext token is never persisted.
type Session struct {
	SessionID string
	UserID    string
	LoginType LoginType

	RefreshHash [32]byte

	CreatedAt  time.Time
	LastSeenAt time.Time
	ExpiresAt  time.Time
}

func (s *Session) clone() *Session {
	out := *s
	return &out
}
