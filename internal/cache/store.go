// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/domain/session/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultTTL for cached terminal sessions.
const DefaultTTL = 10 * time.Minute

var lookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "therapyflow_session_cache_lookups_total",
	Help: "Session cache lookups by result",
}, []string{"result"}) // hit|miss

// CachedStore serves Get for terminal sessions from a Cache. Only terminal
// sessions are cached; every other call passes straight through.
type CachedStore struct {
	store.Store
	cache Cache
	ttl   time.Duration
}

// NewCachedStore decorates inner. ttl <= 0 uses DefaultTTL.
func NewCachedStore(inner store.Store, c Cache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedStore{Store: inner, cache: c, ttl: ttl}
}

func (s *CachedStore) Get(ctx context.Context, id string) (*model.Session, error) {
	if cached, ok := s.cache.Get(ctx, id); ok {
		lookupsTotal.WithLabelValues("hit").Inc()
		return cached, nil
	}
	lookupsTotal.WithLabelValues("miss").Inc()

	sess, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		s.cache.Set(ctx, sess, s.ttl)
	}
	return sess, nil
}

// Update writes through and caches the session once it becomes terminal.
func (s *CachedStore) Update(ctx context.Context, id string, p model.Patch) (*model.Session, error) {
	sess, err := s.Store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	if sess.Status.IsTerminal() {
		s.cache.Set(ctx, sess, s.ttl)
	}
	return sess, nil
}
