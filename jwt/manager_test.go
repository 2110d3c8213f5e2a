package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func testKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef")
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.SigningKey == nil {
		cfg.SigningKey = testKey()
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestAccessExpiresBeforeRefresh(t *testing.T) {
	m := newTestManager(t, Config{})

	_, accessExp, err := m.CreateAccess("user-1", "sess-1", "a@example.com", "Alice")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	_, refreshExp, err := m.CreateRefresh("user-1", "sess-1", time.Time{})
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if !accessExp.Before(refreshExp) {
		t.Fatalf("access expiry %v must be before refresh expiry %v", accessExp, refreshExp)
	}
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t, Config{Issuer: "authcore-test"})

	token, _, err := m.CreateAccess("user-1", "sess-1", "a@example.com", "Alice")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("subject = %q, want user-1", claims.Subject)
	}
	if claims.SID != "sess-1" {
		t.Errorf("sid = %q, want sess-1", claims.SID)
	}
	if claims.Email != "a@example.com" {
		t.Errorf("email = %q", claims.Email)
	}
}

func TestParseRejectsWrongTokenType(t *testing.T) {
	m := newTestManager(t, Config{})

	access, _, err := m.CreateAccess("user-1", "sess-1", "a@example.com", "Alice")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	refresh, _, err := m.CreateRefresh("user-1", "sess-1", time.Time{})
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}

	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrWrongType) {
		t.Errorf("ParseRefresh(access) = %v, want ErrWrongType", err)
	}
	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrWrongType) {
		t.Errorf("ParseAccess(refresh) = %v, want ErrWrongType", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := newTestManager(t, Config{})

	claims := AccessClaims{
		TokenType: TypeAccess,
		SID:       "sess-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testKey())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("ParseAccess(expired) = %v, want ErrExpired", err)
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	m := newTestManager(t, Config{})

	cases := []string{
		"",
		"not.a.jwt",
		strings.Repeat("x", 512),
	}
	for _, tokenStr := range cases {
		if _, err := m.ParseAccess(tokenStr); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseAccess(%q) = %v, want ErrMalformed", tokenStr, err)
		}
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t, Config{})

	other := newTestManager(t, Config{SigningKey: []byte("ffffffffffffffffffffffffffffffff")})
	token, _, err := other.CreateAccess("user-1", "sess-1", "", "")
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ParseAccess(foreign key) = %v, want ErrMalformed", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, Config{})

	claims := AccessClaims{
		TokenType: TypeAccess,
		SID:       "sess-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodNone, claims).SignedString(gjwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}

	if _, err := m.ParseAccess(token); err == nil {
		t.Fatal("alg=none token must be rejected")
	}
}

func TestRefreshRequiresSessionBinding(t *testing.T) {
	m := newTestManager(t, Config{})

	claims := RefreshClaims{
		TokenType: TypeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testKey())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ParseRefresh(token); !errors.Is(err, ErrMalformed) {
		t.Fatalf("ParseRefresh(no sid) = %v, want ErrMalformed", err)
	}
}

func TestCreateRefreshCapsExpiryAtNotAfter(t *testing.T) {
	m := newTestManager(t, Config{RefreshTTL: 7 * 24 * time.Hour})

	capAt := time.Now().Add(time.Hour)
	_, exp, err := m.CreateRefresh("user-1", "sess-1", capAt)
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	if !exp.Equal(capAt) {
		t.Fatalf("expiry = %v, want capped at %v", exp, capAt)
	}

	// A cap beyond the TTL must not extend the token.
	far := time.Now().Add(30 * 24 * time.Hour)
	_, exp, err = m.CreateRefresh("user-1", "sess-1", far)
	if err != nil {
		t.Fatalf("create refresh: %v", err)
	}
	if exp.After(time.Now().Add(7*24*time.Hour + time.Minute)) {
		t.Fatalf("expiry %v exceeds configured TTL", exp)
	}
}

func TestNewManagerRejectsShortKey(t *testing.T) {
	_, err := NewManager(Config{
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
		SigningKey: []byte("short"),
	})
	if err == nil {
		t.Fatal("expected error for short signing key")
	}
}
