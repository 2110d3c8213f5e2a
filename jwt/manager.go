package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// TypeAccess is the token_type claim value carried by access tokens.
	TypeAccess = "access"
	// TypeRefresh is the token_type claim value carried by refresh tokens.
	TypeRefresh = "refresh"
)

const minKeySize = 32

// MaxLeeway bounds the clock-skew allowance. Anything larger silently
// extends token lifetimes, so it is rejected at validation.
const MaxLeeway = 2 * time.Minute

var (
	// ErrExpired is returned when a token's exp claim is in the past.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned for tokens that fail parsing or signature checks.
	ErrMalformed = errors.New("token malformed")
	// ErrWrongType is returned when the token_type claim is missing or does
	// not match the expected kind.
	ErrWrongType = errors.New("token type mismatch")
)

// Config defines a public type used by authcore APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	SigningKey []byte
	Issuer     string
	Leeway     time.Duration
}

// Manager mints and verifies the two token kinds with a single symmetric
// HS256 key. Verification is strict: an expired token is rejected, never
// treated as valid-but-stale.
type Manager struct {
	config Config
}

// AccessClaims is the claim set carried by access tokens. Access tokens are
// stateless: validity is determined purely by signature and expiration.
type AccessClaims struct {
	TokenType string `json:"token_type"`
	SID       string `json:"sid"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set carried by refresh tokens. The SID claim
// binds the token 1:1 to its session; the token_type discriminant prevents
// an access token from being replayed as a refresh token.
type RefreshClaims struct {
	TokenType string `json:"token_type"`
	SID       string `json:"sid"`
	jwt.RegisteredClaims
}

// NewManager validates the signing configuration and returns a [Manager].
//
// NewManager may return an error when input validation fails. The returned
// Manager is immutable and safe for concurrent use.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(cfg.SigningKey) < minKeySize {
		return nil, errors.New("signing key must be at least 32 bytes")
	}
	if cfg.Leeway < 0 || cfg.Leeway > MaxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Manager{config: cfg}, nil
}

// AccessTTL reports the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// CreateAccess mints a signed access token for the given subject.
//
// CreateAccess does not mutate shared state and can be used concurrently.
func (m *Manager) CreateAccess(userID, sessionID, email, name string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessTTL)

	claims := AccessClaims{
		TokenType: TypeAccess,
		SID:       sessionID,
		Email:     email,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// CreateRefresh mints a signed refresh token bound to the given session.
// The expiry may be capped below RefreshTTL by the caller's session policy.
func (m *Manager) CreateRefresh(userID, sessionID string, notAfter time.Time) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.RefreshTTL)
	if !notAfter.IsZero() && notAfter.Before(expiresAt) {
		expiresAt = notAfter
	}

	claims := RefreshClaims{
		TokenType: TypeRefresh,
		SID:       sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.SigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ParseAccess verifies signature, expiration, and the access discriminant.
//
// ParseAccess may return [ErrExpired], [ErrMalformed], or [ErrWrongType],
// each distinguishable so the caller can decide between re-authenticating
// and refreshing.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeAccess {
		return nil, ErrWrongType
	}
	return claims, nil
}

// ParseRefresh verifies signature, expiration, and the refresh discriminant.
func (m *Manager) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != TypeRefresh {
		return nil, ErrWrongType
	}
	if claims.SID == "" {
		return nil, ErrMalformed
	}
	return claims, nil
}

func (m *Manager) parse(tokenStr string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.SigningKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrMalformed
	}
	if !token.Valid {
		return ErrMalformed
	}
	return nil
}
