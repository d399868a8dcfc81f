// Copyright (c) 2026 Hilla. All rights reserved.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hillalabs/hilla/internal/platform/apperr"
)

// PostgresPatronRepository implements the PatronRepository interface using pgx.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types to avoid leaking storage implementation details.
type PostgresPatronRepository struct {
	pool *pgxpool.Pool
}

// NewPatronRepository creates a new PostgreSQL implementation of the PatronRepository.
func NewPatronRepository(pool *pgxpool.Pool) *PostgresPatronRepository {
	return &PostgresPatronRepository{pool: pool}
}

// Create persists a new patron record into the patrons.account table.
//
// # Parameters
//   - ctx: Context for the database operation.
//   - patron: The patron entity to persist.
func (repository *PostgresPatronRepository) Create(ctx context.Context, patron *Patron) error {
	const query = `
		INSERT INTO patrons.account (
			id, username, email, passwordhash, displayname, externalid, role, isverified, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := time.Now()
	if patron.CreatedAt.IsZero() {
		patron.CreatedAt = now
	}
	patron.UpdatedAt = now

	_, err := repository.pool.Exec(ctx, query,
		patron.ID,
		patron.Username,
		patron.Email,
		patron.PasswordHash,
		patron.DisplayName,
		patron.ExternalID,
		patron.Role,
		patron.IsVerified,
		patron.CreatedAt,
		patron.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_patron_repo_create_failed: %w", err)
	}

	return nil
}

// FindByEmail retrieves a patron record by their unique email address.
//
// # Returns
//
// Returns [*Patron] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresPatronRepository) FindByEmail(ctx context.Context, email string) (*Patron, error) {
	const query = `
		SELECT id, username, email, passwordhash, displayname, externalid, role, isverified, createdat, updatedat
		FROM patrons.account
		WHERE email = $1 AND deletedat IS NULL`

	patron := &Patron{}
	err := repository.pool.QueryRow(ctx, query, email).Scan(
		&patron.ID,
		&patron.Username,
		&patron.Email,
		&patron.PasswordHash,
		&patron.DisplayName,
		&patron.ExternalID,
		&patron.Role,
		&patron.IsVerified,
		&patron.CreatedAt,
		&patron.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Patron not found with this email")
		}
		return nil, fmt.Errorf("postgres_patron_repo_find_by_email_failed: %w", err)
	}

	return patron, nil
}

// FindByUsername retrieves a patron record by their unique username.
//
// # Returns
//
// Returns [*Patron] if found, or [apperr.NotFound] if no account exists.
func (repository *PostgresPatronRepository) FindByUsername(ctx context.Context, username string) (*Patron, error) {
	const query = `
		SELECT id, username, email, passwordhash, displayname, externalid, role, isverified, createdat, updatedat
		FROM patrons.account
		WHERE username = $1 AND deletedat IS NULL`

	patron := &Patron{}
	err := repository.pool.QueryRow(ctx, query, username).Scan(
		&patron.ID,
		&patron.Username,
		&patron.Email,
		&patron.PasswordHash,
		&patron.DisplayName,
		&patron.ExternalID,
		&patron.Role,
		&patron.IsVerified,
		&patron.CreatedAt,
		&patron.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Patron not found with this username")
		}
		return nil, fmt.Errorf("postgres_patron_repo_find_by_username_failed: %w", err)
	}

	return patron, nil
}

// FindByID retrieves a patron record by their unique ID.
func (repository *PostgresPatronRepository) FindByID(ctx context.Context, id string) (*Patron, error) {
	const query = `
		SELECT id, username, email, passwordhash, displayname, externalid, role, isverified, createdat, updatedat
		FROM patrons.account
		WHERE id = $1 AND deletedat IS NULL`

	patron := &Patron{}
	err := repository.pool.QueryRow(ctx, query, id).Scan(
		&patron.ID,
		&patron.Username,
		&patron.Email,
		&patron.PasswordHash,
		&patron.DisplayName,
		&patron.ExternalID,
		&patron.Role,
		&patron.IsVerified,
		&patron.CreatedAt,
		&patron.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Patron not found")
		}
		return nil, fmt.Errorf("postgres_patron_repo_find_by_id_failed: %w", err)
	}

	return patron, nil
}

// Update persists changes to a patron's mutable profile fields.
func (repository *PostgresPatronRepository) Update(ctx context.Context, patron *Patron) error {
	const query = `
		UPDATE patrons.account
		SET username = $2, displayname = $3, updatedat = $4
		WHERE id = $1 AND deletedat IS NULL`

	patron.UpdatedAt = time.Now()
	_, err := repository.pool.Exec(ctx, query,
		patron.ID,
		patron.Username,
		patron.DisplayName,
		patron.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_patron_repo_update_failed: %w", err)
	}

	return nil
}

// UpdatePassword updates only the password hash for a specific patron.
func (repository *PostgresPatronRepository) UpdatePassword(ctx context.Context, userID, newHash string) error {
	const query = `
		UPDATE patrons.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := repository.pool.Exec(ctx, query, userID, newHash, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_patron_repo_update_password_failed: %w", err)
	}

	return nil
}

// SoftDelete marks a patron account as deleted using their ID.
func (repository *PostgresPatronRepository) SoftDelete(ctx context.Context, id string) error {
	const query = "UPDATE patrons.account SET deletedat = $2 WHERE id = $1"
	_, err := repository.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("postgres_patron_repo_soft_delete_failed: %w", err)
	}
	return nil
}

// ── Session Repository ───────────────────────────────────────────────────────

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

// Create persists a new session record into the patrons.session table.
func (repository *PostgresSessionRepository) Create(ctx context.Context, session *Session) error {
	const query = `
		INSERT INTO patrons.session (
			id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.TokenHash,
		session.UserAgent,
		session.IPAddress,
		session.ExpiresAt,
		session.IsRevoked,
		session.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

// FindByTokenHash retrieves an active session by its unique token hash.
func (repository *PostgresSessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, userid, tokenhash, useragent, ipaddress, expiresat, isrevoked, createdat
		FROM patrons.session
		WHERE tokenhash = $1 AND isrevoked = FALSE AND expiresat > NOW()`

	session := &Session{}
	err := repository.pool.QueryRow(ctx, query, tokenHash).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenHash,
		&session.UserAgent,
		&session.IPAddress,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session not found or expired")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

// Revoke marks a specific session as revoked.
func (repository *PostgresSessionRepository) Revoke(ctx context.Context, sessionID string) error {
	const query = "UPDATE patrons.session SET isrevoked = TRUE WHERE id = $1"
	_, err := repository.pool.Exec(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}
	return nil
}

// RevokeAll marks all active sessions for a patron as revoked.
func (repository *PostgresSessionRepository) RevokeAll(ctx context.Context, userID string) error {
	const query = "UPDATE patrons.session SET isrevoked = TRUE WHERE userid = $1 AND isrevoked = FALSE"
	_, err := repository.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}
	return nil
}

// DeleteExpired permanently removes all sessions that have passed their expiration date.
func (repository *PostgresSessionRepository) DeleteExpired(ctx context.Context) error {
	const query = "DELETE FROM patrons.session WHERE expiresat <= NOW()"
	_, err := repository.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return nil
}
