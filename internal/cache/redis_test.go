// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCache(client, "")
}

func TestRedisCache_SetGet(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	s := classified("abc")
	s.IsUrgent = true
	s.SafetyFlags = []string{"hopeless"}
	c.Set(ctx, s, time.Minute)
	assert.True(t, mr.Exists(DefaultRedisPrefix+"abc"))

	got, ok := c.Get(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = c.Get(ctx, "nope")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Hits)
	assert.Equal(t, int64(1), c.Stats().Misses)
}

func TestRedisCache_TTLAndDelete(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, classified("ttl"), 100*time.Millisecond)
	_, ok := c.Get(ctx, "ttl")
	require.True(t, ok)
	mr.FastForward(200 * time.Millisecond)
	_, ok = c.Get(ctx, "ttl")
	assert.False(t, ok)

	c.Set(ctx, classified("del"), time.Minute)
	c.Delete(ctx, "del")
	_, ok = c.Get(ctx, "del")
	assert.False(t, ok)
}

func TestRedisCache_OutageIsMiss(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	c.Set(ctx, classified("x"), time.Minute)
	mr.Close()

	_, ok := c.Get(ctx, "x")
	assert.False(t, ok)
	assert.Error(t, c.HealthCheck(ctx))
}

func TestRedisCache_GarbageIsMiss(t *testing.T) {
	mr, c := setupMiniRedis(t)
	require.NoError(t, mr.Set(DefaultRedisPrefix+"bad", "{not json"))
	_, ok := c.Get(context.Background(), "bad")
	assert.False(t, ok)
}
