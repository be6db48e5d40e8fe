// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "therapyflow_store_ops_total",
			Help: "Total session store operations",
		},
		[]string{"backend", "op", "result"}, // result=success|not_found|rejected|error
	)
	storeLat = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "therapyflow_store_op_seconds",
			Help:    "Session store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

// instrumentedStore wraps any Store to capture metrics.
type instrumentedStore struct {
	inner   Store
	backend string
}

// NewInstrumentedStore decorates inner with per-operation metrics.
func NewInstrumentedStore(inner Store, backend string) Store {
	return &instrumentedStore{inner: inner, backend: backend}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrTerminal), errors.Is(err, model.ErrIllegalTransition):
		return "rejected"
	default:
		return "error"
	}
}

func (i *instrumentedStore) observe(op string, start time.Time, err error) {
	storeOps.WithLabelValues(i.backend, op, resultLabel(err)).Inc()
	storeLat.WithLabelValues(i.backend, op).Observe(time.Since(start).Seconds())
}

func (i *instrumentedStore) Create(ctx context.Context, in model.NewSession) (s *model.Session, err error) {
	start := time.Now()
	defer func() { i.observe("create", start, err) }()
	return i.inner.Create(ctx, in)
}

func (i *instrumentedStore) Update(ctx context.Context, id string, p model.Patch) (s *model.Session, err error) {
	start := time.Now()
	defer func() { i.observe("update", start, err) }()
	return i.inner.Update(ctx, id, p)
}

func (i *instrumentedStore) Get(ctx context.Context, id string) (s *model.Session, err error) {
	start := time.Now()
	defer func() { i.observe("get", start, err) }()
	return i.inner.Get(ctx, id)
}

func (i *instrumentedStore) ListRecent(ctx context.Context, limit int) (list []*model.Session, err error) {
	start := time.Now()
	defer func() { i.observe("list_recent", start, err) }()
	return i.inner.ListRecent(ctx, limit)
}

func (i *instrumentedStore) ListByStatus(ctx context.Context, statuses ...model.Status) (list []*model.Session, err error) {
	start := time.Now()
	defer func() { i.observe("list_by_status", start, err) }()
	return i.inner.ListByStatus(ctx, statuses...)
}

func (i *instrumentedStore) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { i.observe("ping", start, err) }()
	return i.inner.Ping(ctx)
}

func (i *instrumentedStore) Close() error {
	return i.inner.Close()
}
