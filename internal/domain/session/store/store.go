// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists session records. All backends enforce lifecycle
// rules through model.Apply and share one contract test suite.
package store

import (
	"context"
	"sort"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = model.ErrNotFound

// Store is the persistence contract used by the pipeline and the API.
type Store interface {
	Create(ctx context.Context, in model.NewSession) (*model.Session, error)
	Update(ctx context.Context, id string, p model.Patch) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	// ListRecent returns sessions newest first (createdAt desc, id desc).
	// limit <= 0 returns everything.
	ListRecent(ctx context.Context, limit int) ([]*model.Session, error)
	ListByStatus(ctx context.Context, statuses ...model.Status) ([]*model.Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// Option customizes a backend.
type Option func(*options)

type options struct {
	now   func() time.Time
	newID func() string
}

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newID: uuid.NewString}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// timestamps are stored at millisecond precision by every backend
func (o options) stamp() time.Time {
	return o.now().UTC().Truncate(time.Millisecond)
}

func (o options) newRecord(in model.NewSession) *model.Session {
	return model.NewPending(in, o.newID(), o.stamp())
}

func sortRecent(list []*model.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func limitList(list []*model.Session, limit int) []*model.Session {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

func statusSet(statuses []model.Status) map[model.Status]bool {
	set := make(map[model.Status]bool, len(statuses))
	for _, st := range statuses {
		set[st] = true
	}
	return set
}
