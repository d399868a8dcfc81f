// Copyright (c) 2026 Hilla. All rights reserved.

package rems_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hillalabs/hilla/internal/rems"
)

// newTestCache spins up an in-process Redis and a cache bound to it.
func newTestCache(t *testing.T) *rems.RedisPermissionCache {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return rems.NewPermissionCache(client)
}

/*
TestPermissionCache_Roundtrip stores a full decision and reads it back.
*/
func TestPermissionCache_Roundtrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	blacklisted := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	stored := &rems.SessionPermission{
		AccessStatus:     rems.StatusApproved,
		BlacklistedSince: &blacklisted,
		BlacklistChecked: true,
		UsagePurpose:     "Genealogy research",
		IsRegistered:     true,
	}

	require.NoError(t, cache.Set(ctx, "alice", stored))

	loaded, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, rems.StatusApproved, loaded.AccessStatus)
	assert.True(t, loaded.BlacklistChecked)
	assert.True(t, loaded.IsRegistered)
	assert.Equal(t, "Genealogy research", loaded.UsagePurpose)
	require.NotNil(t, loaded.BlacklistedSince)
	assert.True(t, blacklisted.Equal(*loaded.BlacklistedSince))
}

/*
TestPermissionCache_MissIsNotAnError confirms the (nil, nil) miss contract.
*/
func TestPermissionCache_MissIsNotAnError(t *testing.T) {
	cache := newTestCache(t)

	loaded, err := cache.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

/*
TestPermissionCache_SetReplacesWholeRecord verifies that a later Set does
not leave fields from the previous decision behind.
*/
func TestPermissionCache_SetReplacesWholeRecord(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	blacklisted := time.Now().UTC()
	require.NoError(t, cache.Set(ctx, "alice", &rems.SessionPermission{
		AccessStatus:     rems.StatusApproved,
		BlacklistedSince: &blacklisted,
		BlacklistChecked: true,
		IsRegistered:     true,
	}))

	// Replace with a minimal record.
	require.NoError(t, cache.Set(ctx, "alice", &rems.SessionPermission{
		AccessStatus: rems.StatusNotSubmitted,
	}))

	loaded, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, rems.StatusNotSubmitted, loaded.AccessStatus)
	assert.Nil(t, loaded.BlacklistedSince)
	assert.False(t, loaded.BlacklistChecked)
	assert.False(t, loaded.IsRegistered)
}

/*
TestPermissionCache_Clear removes the decision entirely; a subsequent read
is a plain miss.
*/
func TestPermissionCache_Clear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "alice", &rems.SessionPermission{
		AccessStatus: rems.StatusApproved,
		IsRegistered: true,
	}))

	require.NoError(t, cache.Clear(ctx, "alice"))

	loaded, err := cache.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Clearing an absent key is also fine.
	require.NoError(t, cache.Clear(ctx, "alice"))
}
