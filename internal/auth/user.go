// Copyright (c) 2026 Hilla. All rights reserved.

// Package auth implements patron accounts and session management.
//
// # Architecture
//
// Entities in this package represent the "Truth" of the system.
// They have no dependencies on outer layers (like databases, APIs, or libraries).
// This makes the core logic highly testable and resilient to technology changes.
package auth

import (
	"time"

	"github.com/hillalabs/hilla/internal/platform/sec"
)

// Patron represents a registered member of the Hilla library platform.
//
// # Rules
//   - Username is unique and URL-safe.
//   - Email is unique and validated.
//   - PasswordHash is generated via Bcrypt exclusively via the auth Service.
//   - ExternalID links the account to the national identity federation and is
//     the key the entitlement subsystem derives its user id from.
type Patron struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string       `json:"display_name"`
	ExternalID   string       `json:"-"` // Identity-federation URN, never exposed to clients.
	Role         sec.UserRole `json:"role"`
	IsVerified   bool         `json:"is_verified"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Session represents an active refresh-token session.
//
// # Security Concept
//
// Access Tokens (JWT) are stateless and cannot be revoked easily before they expire.
// To mitigate this, Hilla uses short-lived JWTs paired with long-lived Sessions
// stored in the database. When the JWT expires, the client uses the Session
// (Refresh Token) to issue a new JWT. Revoking a Session logs the patron out globally.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"-"` // Hashed value of the refresh token. Omitted for security.
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	ExpiresAt time.Time `json:"expires_at"`
	IsRevoked bool      `json:"is_revoked"`
	CreatedAt time.Time `json:"created_at"`
}
