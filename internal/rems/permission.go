// Copyright (c) 2026 Hilla. All rights reserved.

package rems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hillalabs/hilla/internal/platform/constants"
)

// # Cached Decision

// SessionPermission is the last-known access decision for a patron session.
//
// # Invariant
//
// IsRegistered == true implies AccessStatus != [StatusNotSubmitted]; the
// decision engine is the only writer and maintains this.
type SessionPermission struct {
	// AccessStatus is the mapped status of the patron's application,
	// or empty when no status has been resolved yet.
	AccessStatus ApplicationStatus `json:"access_status,omitempty"`

	// BlacklistedSince is the REMS blacklist timestamp, if any.
	BlacklistedSince *time.Time `json:"blacklisted_since,omitempty"`

	// BlacklistChecked distinguishes "not blacklisted" from "blacklist
	// never queried this session".
	BlacklistChecked bool `json:"blacklist_checked,omitempty"`

	// UsagePurpose is the free-text purpose the patron gave when
	// registering, retained verbatim for display.
	UsagePurpose string `json:"usage_purpose,omitempty"`

	// IsRegistered reports whether the patron has ever submitted an
	// application for the restricted resource.
	IsRegistered bool `json:"is_registered"`
}

// # Cache Contract

// PermissionCache stores one [SessionPermission] per patron session.
//
// # Atomicity
//
// Implementations must replace the whole record on Set and remove all of
// it on Clear. A reader must never observe a half-written decision — a
// concurrent duplicate-tab request either sees the old record or the new
// one, nothing in between.
type PermissionCache interface {
	// Get returns the cached permission, or (nil, nil) on a cache miss.
	// A miss is a normal condition, not an error.
	Get(ctx context.Context, userID string) (*SessionPermission, error)

	// Set replaces the cached permission for the session.
	Set(ctx context.Context, userID string, permission *SessionPermission) error

	// Clear removes the cached permission entirely. Called on logout.
	Clear(ctx context.Context, userID string) error
}

// # Redis Implementation

// RedisPermissionCache implements PermissionCache using Redis.
//
// The whole [SessionPermission] is stored as a single JSON value under one
// key, so replacement and removal are atomic by construction.
type RedisPermissionCache struct {
	client *redis.Client
}

// NewPermissionCache creates a new Redis-backed PermissionCache.
func NewPermissionCache(client *redis.Client) *RedisPermissionCache {
	return &RedisPermissionCache{client: client}
}

/*
Get retrieves the cached access decision for a patron session.

Description: A missing key is a cache miss and yields (nil, nil).

Parameters:
  - ctx: context.Context
  - userID: string

Returns:
  - *SessionPermission: The cached decision, or nil on a miss
  - error: Connectivity or decode failures
*/
func (cache *RedisPermissionCache) Get(ctx context.Context, userID string) (*SessionPermission, error) {

	// Use constants for key prefix
	key := fmt.Sprintf("%s%s", constants.RedisPrefixPermission, userID)

	// Get the decision from Redis
	raw, err := cache.client.Get(ctx, key).Result()

	// Handle errors
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Cache miss: the engine will resolve against REMS.
			return nil, nil
		}
		return nil, fmt.Errorf("redis_permission_get_failed: %w", err)
	}

	// Decode the stored record
	permission := &SessionPermission{}
	if err := json.Unmarshal([]byte(raw), permission); err != nil {
		return nil, fmt.Errorf("redis_permission_decode_failed: %w", err)
	}

	// Return the decision
	return permission, nil
}

/*
Set replaces the cached access decision for a patron session.

Description: The record is serialized as one JSON value so concurrent
readers see either the previous or the new decision, never a partial one.

Parameters:
  - ctx: context.Context
  - userID: string
  - permission: *SessionPermission

Returns:
  - error: Storage failures
*/
func (cache *RedisPermissionCache) Set(ctx context.Context, userID string, permission *SessionPermission) error {

	// Use constants for key prefix
	key := fmt.Sprintf("%s%s", constants.RedisPrefixPermission, userID)

	// Serialize the whole record
	encoded, err := json.Marshal(permission)
	if err != nil {
		return fmt.Errorf("redis_permission_encode_failed: %w", err)
	}

	// Replace the value with TTL
	if err := cache.client.Set(ctx, key, encoded, constants.PermissionCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis_permission_set_failed: %w", err)
	}

	// Return nil on success
	return nil
}

/*
Clear removes the cached access decision for a patron session.

Description: Deleting the single key unsets all cached fields at once;
no stale decision can survive a clear.

Parameters:
  - ctx: context.Context
  - userID: string

Returns:
  - error: Deletion failures
*/
func (cache *RedisPermissionCache) Clear(ctx context.Context, userID string) error {

	// Use constants for key prefix
	key := fmt.Sprintf("%s%s", constants.RedisPrefixPermission, userID)

	// Delete the decision from Redis
	if err := cache.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis_permission_clear_failed: %w", err)
	}

	// Return nil on success
	return nil
}
