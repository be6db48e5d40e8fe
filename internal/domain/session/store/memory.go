// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
)

// MemoryStore is an in-memory Store intended for tests and local iteration.
// Not durable.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	closed   bool
	opts     options
}

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		opts:     buildOptions(opts),
	}
}

var errClosed = errors.New("store closed")

func (m *MemoryStore) Create(_ context.Context, in model.NewSession) (*model.Session, error) {
	rec := m.opts.newRecord(in)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	if _, exists := m.sessions[rec.ID]; exists {
		return nil, fmt.Errorf("memory store: duplicate id %s", rec.ID)
	}
	m.sessions[rec.ID] = rec
	return rec.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, p model.Patch) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errClosed
	}
	rec, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("memory store: update %s: %w", id, ErrNotFound)
	}
	next := rec.Clone()
	if _, err := model.Apply(next, p, m.opts.stamp()); err != nil {
		return nil, err
	}
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("memory store: get %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*model.Session, error) {
	m.mu.RLock()
	list := make([]*model.Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		list = append(list, rec.Clone())
	}
	m.mu.RUnlock()
	sortRecent(list)
	return limitList(list, limit), nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, statuses ...model.Status) ([]*model.Session, error) {
	want := statusSet(statuses)
	m.mu.RLock()
	var list []*model.Session
	for _, rec := range m.sessions {
		if want[rec.Status] {
			list = append(list, rec.Clone())
		}
	}
	m.mu.RUnlock()
	sortRecent(list)
	return list, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
