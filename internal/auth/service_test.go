// Copyright (c) 2026 Hilla. All rights reserved.

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hillalabs/hilla/internal/auth"
	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/internal/platform/sec"
)

// # Test Doubles

// memoryPatronRepo is an in-memory PatronRepository for service tests.
type memoryPatronRepo struct {
	patrons map[string]*auth.Patron // keyed by ID
}

func newMemoryPatronRepo() *memoryPatronRepo {
	return &memoryPatronRepo{patrons: make(map[string]*auth.Patron)}
}

func (repo *memoryPatronRepo) FindByID(_ context.Context, id string) (*auth.Patron, error) {
	if patron, found := repo.patrons[id]; found {
		return patron, nil
	}
	return nil, apperr.NotFound("Patron")
}

func (repo *memoryPatronRepo) FindByEmail(_ context.Context, email string) (*auth.Patron, error) {
	for _, patron := range repo.patrons {
		if patron.Email == email {
			return patron, nil
		}
	}
	return nil, apperr.NotFound("Patron")
}

func (repo *memoryPatronRepo) FindByUsername(_ context.Context, username string) (*auth.Patron, error) {
	for _, patron := range repo.patrons {
		if patron.Username == username {
			return patron, nil
		}
	}
	return nil, apperr.NotFound("Patron")
}

func (repo *memoryPatronRepo) Create(_ context.Context, patron *auth.Patron) error {
	repo.patrons[patron.ID] = patron
	return nil
}

func (repo *memoryPatronRepo) Update(_ context.Context, patron *auth.Patron) error {
	repo.patrons[patron.ID] = patron
	return nil
}

func (repo *memoryPatronRepo) UpdatePassword(_ context.Context, userID, newHash string) error {
	if patron, found := repo.patrons[userID]; found {
		patron.PasswordHash = newHash
	}
	return nil
}

func (repo *memoryPatronRepo) SoftDelete(_ context.Context, id string) error {
	delete(repo.patrons, id)
	return nil
}

// memorySessionRepo is an in-memory SessionRepository for service tests.
type memorySessionRepo struct {
	sessions map[string]*auth.Session // keyed by ID
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*auth.Session)}
}

func (repo *memorySessionRepo) Create(_ context.Context, session *auth.Session) error {
	repo.sessions[session.ID] = session
	return nil
}

func (repo *memorySessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	for _, session := range repo.sessions {
		if session.TokenHash == tokenHash && !session.IsRevoked && session.ExpiresAt.After(time.Now()) {
			return session, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *memorySessionRepo) Revoke(_ context.Context, sessionID string) error {
	if session, found := repo.sessions[sessionID]; found {
		session.IsRevoked = true
	}
	return nil
}

func (repo *memorySessionRepo) RevokeAll(_ context.Context, userID string) error {
	for _, session := range repo.sessions {
		if session.UserID == userID {
			session.IsRevoked = true
		}
	}
	return nil
}

func (repo *memorySessionRepo) DeleteExpired(_ context.Context) error {
	for id, session := range repo.sessions {
		if session.ExpiresAt.Before(time.Now()) {
			delete(repo.sessions, id)
		}
	}
	return nil
}

// fakeTokenProvider records the claims of the last issued token.
type fakeTokenProvider struct {
	lastUserID     string
	lastRole       string
	lastExternalID string
}

func (provider *fakeTokenProvider) GenerateAccessToken(userID, _, role, externalID string, _ time.Duration) (string, error) {
	provider.lastUserID = userID
	provider.lastRole = role
	provider.lastExternalID = externalID
	return "signed-jwt", nil
}

// recordingFinalizer captures entitlement finalization calls on logout.
type recordingFinalizer struct {
	finalized []string
}

func (finalizer *recordingFinalizer) OnLogout(_ context.Context, externalID string) {
	finalizer.finalized = append(finalizer.finalized, externalID)
}

// # Fixtures

type serviceFixture struct {
	service   *auth.Service
	patrons   *memoryPatronRepo
	sessions  *memorySessionRepo
	tokens    *fakeTokenProvider
	finalizer *recordingFinalizer
}

func newServiceFixture() *serviceFixture {
	patrons := newMemoryPatronRepo()
	sessions := newMemorySessionRepo()
	tokens := &fakeTokenProvider{}
	finalizer := &recordingFinalizer{}

	return &serviceFixture{
		service:   auth.NewService(patrons, sessions, tokens, finalizer),
		patrons:   patrons,
		sessions:  sessions,
		tokens:    tokens,
		finalizer: finalizer,
	}
}

func registerPatron(t *testing.T, fixture *serviceFixture) *auth.Patron {
	t.Helper()

	patron, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Username:    "alice",
		Email:       "alice@example.fi",
		Password:    "correct-horse-battery",
		DisplayName: "Alice Virtanen",
		ExternalID:  "urn:hilla:alice",
	})
	require.NoError(t, err)
	return patron
}

// # Tests

/*
TestService_Register enrolls a patron with the default role and a hashed
password.
*/
func TestService_Register(t *testing.T) {
	fixture := newServiceFixture()
	patron := registerPatron(t, fixture)

	assert.Equal(t, sec.RolePatron, patron.Role)
	assert.Equal(t, "urn:hilla:alice", patron.ExternalID)
	assert.NotEmpty(t, patron.ID)
	assert.NotEqual(t, "correct-horse-battery", patron.PasswordHash)
}

/*
TestService_Register_DuplicateEmail rejects a second account on the same
email with a client-safe conflict.
*/
func TestService_Register_DuplicateEmail(t *testing.T) {
	fixture := newServiceFixture()
	registerPatron(t, fixture)

	_, err := fixture.service.Register(context.Background(), auth.RegisterInput{
		Username: "alice2",
		Email:    "alice@example.fi",
		Password: "another-password-123",
	})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

/*
TestService_Login issues a token pair and embeds the external identity in
the access-token claims.
*/
func TestService_Login(t *testing.T) {
	fixture := newServiceFixture()
	patron := registerPatron(t, fixture)

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login:    "alice@example.fi",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	assert.Equal(t, "signed-jwt", session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, patron.ID, fixture.tokens.lastUserID)
	assert.Equal(t, string(sec.RolePatron), fixture.tokens.lastRole)
	assert.Equal(t, "urn:hilla:alice", fixture.tokens.lastExternalID)
}

/*
TestService_Login_WrongPassword responds with the same generic error as an
unknown account.
*/
func TestService_Login_WrongPassword(t *testing.T) {
	fixture := newServiceFixture()
	registerPatron(t, fixture)

	_, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login:    "alice@example.fi",
		Password: "wrong-password-entirely",
	})

	require.Error(t, err)
	appErr := apperr.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, "UNAUTHORIZED", appErr.Code)
}

/*
TestService_Logout revokes the session and finalizes the patron's
entitlement state exactly once, keyed by their external identity.
*/
func TestService_Logout(t *testing.T) {
	fixture := newServiceFixture()
	registerPatron(t, fixture)

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login:    "alice",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	require.NoError(t, fixture.service.Logout(context.Background(), session.RefreshToken))

	assert.Equal(t, []string{"urn:hilla:alice"}, fixture.finalizer.finalized)

	// The refresh token can never be used again.
	_, err = fixture.service.RefreshSession(context.Background(), session.RefreshToken, "", "")
	require.Error(t, err)
}

/*
TestService_Logout_UnknownToken treats an already-ended session as a
successful logout and skips entitlement finalization.
*/
func TestService_Logout_UnknownToken(t *testing.T) {
	fixture := newServiceFixture()

	require.NoError(t, fixture.service.Logout(context.Background(), "no-such-token"))
	assert.Empty(t, fixture.finalizer.finalized)
}

/*
TestService_Logout_NilFinalizer keeps logout working for deployments
without an entitlement backend.
*/
func TestService_Logout_NilFinalizer(t *testing.T) {
	patrons := newMemoryPatronRepo()
	sessions := newMemorySessionRepo()
	service := auth.NewService(patrons, sessions, &fakeTokenProvider{}, nil)

	require.NoError(t, service.Logout(context.Background(), "anything"))
}

/*
TestService_RefreshSession rotates the refresh token: the old token is
revoked and a new pair is issued.
*/
func TestService_RefreshSession(t *testing.T) {
	fixture := newServiceFixture()
	registerPatron(t, fixture)

	session, err := fixture.service.Login(context.Background(), auth.LoginInput{
		Login:    "alice",
		Password: "correct-horse-battery",
	})
	require.NoError(t, err)

	rotated, err := fixture.service.RefreshSession(context.Background(), session.RefreshToken, "test-agent", "127.0.0.1")
	require.NoError(t, err)
	assert.NotEqual(t, session.RefreshToken, rotated.RefreshToken)

	// The original token is spent.
	_, err = fixture.service.RefreshSession(context.Background(), session.RefreshToken, "test-agent", "127.0.0.1")
	require.Error(t, err)
}
