// Copyright (c) 2026 Hilla. All rights reserved.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hillalabs/hilla/internal/platform/apperr"
	"github.com/hillalabs/hilla/internal/platform/sec"
	"github.com/hillalabs/hilla/pkg/uuidv7"
)

// TokenProvider defines the contract for generating security tokens.
type TokenProvider interface {
	// GenerateAccessToken creates a signed JWT string for the given patron.
	//
	// # Parameters
	//   - userID: The ID of the account.
	//   - username: The username of the account.
	//   - role: The role of the account.
	//   - externalID: The identity-federation URN linked to the account.
	//   - timeToLive: The duration before the token expires.
	//
	// # Returns
	//   - A signed JWT string, or an error if signing fails.
	GenerateAccessToken(userID, username, role, externalID string, timeToLive time.Duration) (string, error)
}

// EntitlementFinalizer finalizes a patron's entitlement state when their
// session ends. It must never block or fail the logout itself.
type EntitlementFinalizer interface {
	OnLogout(ctx context.Context, externalID string)
}

// Service implements patron authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, registration,
// or login logic must be reviewed by the security team.
type Service struct {
	patronRepository  PatronRepository
	sessionRepository SessionRepository
	tokenProvider     TokenProvider
	finalizer         EntitlementFinalizer
}

// NewService constructs a new auth [Service] with necessary dependencies.
//
// finalizer may be nil when the deployment has no entitlement backend
// configured (local development).
func NewService(
	patronRepo PatronRepository,
	sessionRepo SessionRepository,
	tokenProv TokenProvider,
	finalizer EntitlementFinalizer,
) *Service {
	return &Service{
		patronRepository:  patronRepo,
		sessionRepository: sessionRepo,
		tokenProvider:     tokenProv,
		finalizer:         finalizer,
	}
}

// RegisterInput holds the data required to enroll a new patron.
type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
	ExternalID  string
}

// Register validates, hashes, and persists a brand new patron account.
//
// # Parameters
//   - context: Context for the database operation.
//   - input: The patron-provided registration details.
//
// # Returns
//   - A pointer to the newly created [*Patron].
//   - Returns [apperr.Conflict] if email or username already exists.
//
// # Business Rules
//   - Emails must be unique.
//   - Usernames must be unique.
//   - Default role is always 'patron'.
func (service *Service) Register(context context.Context, input RegisterInput) (*Patron, error) {
	// ── 1. Uniqueness Checks ──────────────────────────────────────────────

	// Verify email uniqueness. Return a client-safe Conflict error.
	_, err := service.patronRepository.FindByEmail(context, input.Email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}

	// Verify username uniqueness. Return a client-safe Conflict error.
	_, err = service.patronRepository.FindByUsername(context, input.Username)
	if err == nil {
		return nil, apperr.Conflict("Username is already taken")
	}

	// ── 2. Security ───────────────────────────────────────────────────────

	// Prevent storing plain-text passwords. Default cost is used for balance
	// between security and CPU utilization during registration spikes.
	hashedPassword, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// ── 3. Entity Construction ────────────────────────────────────────────

	patron := &Patron{
		ID:           uuidv7.New(), // Time-sortable ID to prevent PG index fragmentation.
		Username:     input.Username,
		Email:        input.Email,
		PasswordHash: hashedPassword,
		DisplayName:  input.DisplayName,
		ExternalID:   input.ExternalID,
		Role:         sec.RolePatron, // Rule: Default role is always Patron
		IsVerified:   false,
	}

	// ── 4. Persistence ────────────────────────────────────────────────────

	if err := service.patronRepository.Create(context, patron); err != nil {
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return patron, nil
}

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Login     string // Can be Username or Email
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established patron session.
type LoginSession struct {
	AccessToken           string
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	Patron                *Patron
}

// Login validates patron credentials and issues security tokens.
//
// # Parameters
//   - context: Context for the database operation.
//   - input: Contains Login (Email/Username) and plain-text Password.
//
// # Returns
//   - A pointer to [LoginSession] containing the AccessToken.
//   - Returns [apperr.Unauthorized] if credentials do not match.
//
// # Flow
//  1. Lookup patron by login (email or username).
//  2. Verify password hash using Bcrypt.
//  3. Generate short-lived JWT carrying the external identity claim.
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	var patron *Patron
	var err error

	// ── 1. Fetch Patron Profile ───────────────────────────────────────────

	// We support flexible login, allowing the patron to use either Email or Username.
	patron, err = service.patronRepository.FindByEmail(context, input.Login)
	if err != nil {
		patron, err = service.patronRepository.FindByUsername(context, input.Login)
	}

	// Return generic unauthorized error to prevent username enumeration attacks.
	if err != nil {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// ── 2. Security Verification ──────────────────────────────────────────

	// Prevent timing attacks by always using constant-time comparison in bcrypt.
	if !sec.CheckPasswordHash(input.Password, patron.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid login credentials")
	}

	// ── 3. Token Issuance ─────────────────────────────────────────────────

	// Tokens are valid for 15 minutes to reduce impact window if leaked.
	// The external identity travels inside the token so restricted-access
	// checks never need an extra account lookup.
	accessToken, err := service.tokenProvider.GenerateAccessToken(
		patron.ID, patron.Username, string(patron.Role), patron.ExternalID, 15*time.Minute,
	)
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_generation_failed: %w", err)
	}

	// ── 4. Refresh Token Issuance ─────────────────────────────────────────

	refreshToken, err := sec.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(30 * 24 * time.Hour) // Valid for 30 days
	session := &Session{
		ID:        uuidv7.New(),
		UserID:    patron.ID,
		TokenHash: sec.HashToken(refreshToken),
		UserAgent: input.UserAgent,
		IPAddress: input.IPAddress,
		ExpiresAt: expiresAt,
		IsRevoked: false,
	}

	if err := service.sessionRepository.Create(context, session); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          refreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Patron:                patron,
	}, nil
}

// Logout permanently revokes the patron's active session and finalizes
// their entitlement state.
//
// # Guarantees
//
// The entitlement finalizer runs after the session is revoked and can never
// fail the logout. A patron must always be able to end their session, even
// with the entitlement backend down.
func (service *Service) Logout(context context.Context, refreshToken string) error {
	tokenHash := sec.HashToken(refreshToken)
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)
	if err != nil {
		// If session is already gone or invalid, we consider logout successful (idempotent operation).
		return nil
	}

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	// ── Entitlement Finalization ──────────────────────────────────────────

	if service.finalizer != nil {
		if patron, err := service.patronRepository.FindByID(context, session.UserID); err == nil {
			service.finalizer.OnLogout(context, patron.ExternalID)
		}
	}

	return nil
}

// RefreshSession implements the Refresh Token Rotation mechanism.
// It verifies the existing refresh token, revokes it to prevent reuse (preventing replay attacks),
// and issues a fresh pair of Access and Refresh tokens.
func (service *Service) RefreshSession(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {
	// ── 1. Find Existing Session ──────────────────────────────────────────

	tokenHash := sec.HashToken(refreshToken)
	session, err := service.sessionRepository.FindByTokenHash(context, tokenHash)
	if err != nil {
		// The token is either expired, already revoked, or completely invalid.
		return nil, apperr.Unauthorized("Invalid or expired refresh token")
	}

	// ── 2. Rotation (Revoke Old Session) ──────────────────────────────────

	if err := service.sessionRepository.Revoke(context, session.ID); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_revoke_failed: %w", err)
	}

	// ── 3. Find Patron ────────────────────────────────────────────────────

	patron, err := service.patronRepository.FindByID(context, session.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("Patron not found or suspended")
	}

	// ── 4. Issue New Tokens ───────────────────────────────────────────────

	accessToken, err := service.tokenProvider.GenerateAccessToken(
		patron.ID, patron.Username, string(patron.Role), patron.ExternalID, 15*time.Minute,
	)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_access_token_failed: %w", err)
	}

	newRefreshToken, err := sec.GenerateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("auth_service_refresh_secure_token_failed: %w", err)
	}

	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	newSession := &Session{
		ID:        uuidv7.New(),
		UserID:    patron.ID,
		TokenHash: sec.HashToken(newRefreshToken),
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: expiresAt,
		IsRevoked: false,
	}

	if err := service.sessionRepository.Create(context, newSession); err != nil {
		return nil, fmt.Errorf("auth_service_refresh_session_creation_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:           accessToken,
		RefreshToken:          newRefreshToken,
		RefreshTokenExpiresAt: expiresAt,
		Patron:                patron,
	}, nil
}
