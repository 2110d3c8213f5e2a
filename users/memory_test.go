package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/password"
)

func newTestProvider(t *testing.T) *MemProvider {
	t.Helper()
	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	return NewMemProvider(hasher)
}

func TestCreateAndAuthenticate(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	created, err := p.CreateUser(ctx, authcore.CreateUserInput{
		Email:    "Alice@Example.COM ",
		Password: "correct-horse",
		Name:     "Alice",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.UserID)
	assert.Equal(t, "alice@example.com", created.Email)

	// Lookup is case and whitespace insensitive.
	rec, err := p.Authenticate(ctx, "alice@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, created.UserID, rec.UserID)

	_, err = p.Authenticate(ctx, "alice@example.com", "wrong-password")
	require.ErrorIs(t, err, authcore.ErrInvalidCredentials)

	_, err = p.Authenticate(ctx, "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.CreateUser(ctx, authcore.CreateUserInput{Email: "bob@example.com", Password: "battery-staple"})
	require.NoError(t, err)

	_, err = p.CreateUser(ctx, authcore.CreateUserInput{Email: "BOB@example.com", Password: "other-password"})
	require.ErrorIs(t, err, authcore.ErrUserExists)
}

func TestGetUserByID(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	created, err := p.CreateUser(ctx, authcore.CreateUserInput{Email: "carol@example.com", Password: "long-password"})
	require.NoError(t, err)

	rec, err := p.GetUserByID(ctx, created.UserID)
	require.NoError(t, err)
	assert.Equal(t, created.Email, rec.Email)

	_, err = p.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, authcore.ErrUserNotFound)
}

func TestResolveExternalProvisionsOnce(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	identity := authcore.ExternalIdentity{
		Provider: "google",
		Subject:  "sub-123",
		Email:    "dave@example.com",
		Name:     "Dave",
	}

	first, err := p.ResolveExternal(ctx, identity)
	require.NoError(t, err)

	second, err := p.ResolveExternal(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)

	// A different subject on the same provider is a different account.
	other, err := p.ResolveExternal(ctx, authcore.ExternalIdentity{
		Provider: "google",
		Subject:  "sub-456",
		Email:    "eve@example.com",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID)

	// Provisioned accounts carry no password.
	_, err = p.Authenticate(ctx, "dave@example.com", "anything-at-all")
	require.ErrorIs(t, err, authcore.ErrInvalidCredentials)
}

func TestResolveExternalLinksExistingEmail(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	created, err := p.CreateUser(ctx, authcore.CreateUserInput{Email: "frank@example.com", Password: "long-password"})
	require.NoError(t, err)

	rec, err := p.ResolveExternal(ctx, authcore.ExternalIdentity{
		Provider: "apple",
		Subject:  "sub-789",
		Email:    "frank@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, created.UserID, rec.UserID)

	// The password login still works after linking.
	_, err = p.Authenticate(ctx, "frank@example.com", "long-password")
	require.NoError(t, err)
}
