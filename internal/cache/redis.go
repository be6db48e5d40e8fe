// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultRedisPrefix namespaces cached sessions.
const DefaultRedisPrefix = "therapyflow:session:"

const redisOpTimeout = 2 * time.Second

// RedisCache shares cached sessions between replicas. Redis errors are
// logged and reported as misses.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
	stats  counters
}

// NewRedisCache wraps an existing client; the caller owns its lifecycle.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: log.WithComponent("cache"),
	}
}

func (c *RedisCache) key(id string) string { return c.prefix + id }

func (c *RedisCache) Get(ctx context.Context, id string) (*model.Session, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("redis get failed")
		c.stats.misses.Add(1)
		return nil, false
	}

	var s model.Session
	if err := json.Unmarshal(val, &s); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("cached session undecodable")
		c.stats.misses.Add(1)
		return nil, false
	}
	c.stats.hits.Add(1)
	return &s, true
}

func (c *RedisCache) Set(ctx context.Context, s *model.Session, ttl time.Duration) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, s.ID).Msg("json marshal failed")
		return
	}
	if err := c.client.Set(ctx, c.key(s.ID), data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, s.ID).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

func (c *RedisCache) Delete(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.logger.Warn().Err(err).Str(log.FieldSessionID, id).Msg("redis delete failed")
	}
}

// Stats reports local counters. CurrentSize is not tracked for a shared cache.
func (c *RedisCache) Stats() Stats {
	return c.stats.snapshot(0)
}

// HealthCheck checks if Redis is available.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
