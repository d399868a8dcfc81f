// Copyright (c) 2026 Hilla. All rights reserved.

package auth

import (
	"context"
)

// PatronRepository defines the data access contract for patron accounts.
//
// # Review Process
//
// This interface is placed in a separate file from user.go so entity changes
// and storage-contract changes can be reviewed independently by the team.
//
// # Implementations
//
// The canonical implementation for Hilla is PostgreSQL.
type PatronRepository interface {
	// FindByID returns the account with the given ID.
	//
	// Returns [apperr.NotFound] if the account does not exist.
	FindByID(ctx context.Context, id string) (*Patron, error)

	// FindByEmail returns the account with the given email.
	//
	// Returns [apperr.NotFound] if no patron is registered with this email.
	FindByEmail(ctx context.Context, email string) (*Patron, error)

	// FindByUsername returns the account with the given username.
	//
	// Returns [apperr.NotFound] if the username is available.
	FindByUsername(ctx context.Context, username string) (*Patron, error)

	// Create persists a brand-new patron account to the storage.
	//
	// Returns a wrapped error if a unique constraint (email/username) fails.
	Create(ctx context.Context, patron *Patron) error

	// Update persists changes to mutable profile fields (DisplayName, etc).
	// Passwords must be updated via [UpdatePassword].
	Update(ctx context.Context, patron *Patron) error

	// UpdatePassword replaces only the patron's password hash.
	// This is separate from [Update] to prevent accidental overwrites
	// during unrelated profile updates.
	UpdatePassword(ctx context.Context, userID, newHash string) error

	// SoftDelete marks the account as deleted without removing the row.
	// This preserves relational integrity (e.g., loans made by the patron).
	SoftDelete(ctx context.Context, id string) error
}

// SessionRepository defines the data access contract for refresh-token sessions.
//
// # Domain Ownership
//
// This is kept alongside [PatronRepository] because sessions are owned entirely
// by the patron domain, despite serving authentication security.
type SessionRepository interface {
	// Create persists a new tracking session for an authenticated login.
	Create(ctx context.Context, session *Session) error

	// FindByTokenHash returns the active session matching the given token hash.
	//
	// Returns [apperr.NotFound] if the session is invalid, expired, or revoked.
	FindByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// Revoke marks a specific session as permanently invalidated.
	// Usually triggered during explicit patron logout from a specific device.
	Revoke(ctx context.Context, sessionID string) error

	// RevokeAll revokes every active session belonging to the userID.
	// Crucial for security event responses (e.g., password change or account compromise).
	RevokeAll(ctx context.Context, userID string) error

	// DeleteExpired physically removes sessions whose ExpiresAt is in the past.
	// Intended to be called by a periodic background cleanup worker to reclaim storage.
	DeleteExpired(ctx context.Context) error
}
