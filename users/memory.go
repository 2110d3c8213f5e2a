package users

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/password"
)

type account struct {
	userID       string
	email        string
	name         string
	passwordHash string
}

// MemProvider defines a public type used by authcore APIs.
//
// MemProvider instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MemProvider struct {
	hasher *password.Argon2

	mu         sync.RWMutex
	byEmail    map[string]*account
	byID       map[string]*account
	byExternal map[string]*account
}

// NewMemProvider builds an in-memory [authcore.UserProvider] backed by the
// given Argon2 hasher. Intended for development deployments and tests; data
// does not survive a restart.
func NewMemProvider(hasher *password.Argon2) *MemProvider {
	return &MemProvider{
		hasher:     hasher,
		byEmail:    make(map[string]*account),
		byID:       make(map[string]*account),
		byExternal: make(map[string]*account),
	}
}

// Authenticate describes the authenticate operation and its observable behavior.
//
// Authenticate may return an error when input validation, dependency calls, or security checks fail.
// Authenticate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *MemProvider) Authenticate(_ context.Context, email, pass string) (authcore.UserRecord, error) {
	p.mu.RLock()
	acct, ok := p.byEmail[normalizeEmail(email)]
	p.mu.RUnlock()
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}

	match, err := p.hasher.Verify(pass, acct.passwordHash)
	if err != nil || !match {
		return authcore.UserRecord{}, authcore.ErrInvalidCredentials
	}
	return record(acct), nil
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *MemProvider) CreateUser(_ context.Context, input authcore.CreateUserInput) (authcore.UserRecord, error) {
	hash, err := p.hasher.Hash(input.Password)
	if err != nil {
		return authcore.UserRecord{}, err
	}

	email := normalizeEmail(input.Email)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return authcore.UserRecord{}, authcore.ErrUserExists
	}

	acct := &account{
		userID:       uuid.NewString(),
		email:        email,
		name:         input.Name,
		passwordHash: hash,
	}
	p.byEmail[email] = acct
	p.byID[acct.userID] = acct
	return record(acct), nil
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
// GetUserByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *MemProvider) GetUserByID(_ context.Context, userID string) (authcore.UserRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	acct, ok := p.byID[userID]
	if !ok {
		return authcore.UserRecord{}, authcore.ErrUserNotFound
	}
	return record(acct), nil
}

// ResolveExternal finds or provisions an account for a verified external
// identity. Accounts provisioned this way carry no password hash and cannot
// log in with Authenticate.
func (p *MemProvider) ResolveExternal(_ context.Context, identity authcore.ExternalIdentity) (authcore.UserRecord, error) {
	key := identity.Provider + "|" + identity.Subject

	p.mu.Lock()
	defer p.mu.Unlock()

	if acct, ok := p.byExternal[key]; ok {
		return record(acct), nil
	}

	email := normalizeEmail(identity.Email)
	if acct, ok := p.byEmail[email]; ok {
		p.byExternal[key] = acct
		return record(acct), nil
	}

	acct := &account{
		userID: uuid.NewString(),
		email:  email,
		name:   identity.Name,
	}
	if email != "" {
		p.byEmail[email] = acct
	}
	p.byID[acct.userID] = acct
	p.byExternal[key] = acct
	return record(acct), nil
}

// Seed registers an account with a pre-set password, bypassing the usual
// duplicate check. Test and bootstrap helper.
func (p *MemProvider) Seed(email, pass, name string) (authcore.UserRecord, error) {
	hash, err := p.hasher.Hash(pass)
	if err != nil {
		return authcore.UserRecord{}, err
	}

	acct := &account{
		userID:       uuid.NewString(),
		email:        normalizeEmail(email),
		name:         name,
		passwordHash: hash,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byEmail[acct.email] = acct
	p.byID[acct.userID] = acct
	return record(acct), nil
}

func record(acct *account) authcore.UserRecord {
	return authcore.UserRecord{
		UserID: acct.userID,
		Email:  acct.email,
		Name:   acct.name,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
