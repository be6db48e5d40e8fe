// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"fmt"
	"sync"
)

// sessionRegistry tracks continuation goroutines, keyed by session id, and
// provides a bounded join on shutdown. At most one continuation per session
// runs at a time.
type sessionRegistry struct {
	mu       sync.Mutex
	closing  bool
	wg       sync.WaitGroup
	inflight map[string]struct{}
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{inflight: make(map[string]struct{})}
}

// Go runs fn for id unless the registry is closing or id is already running.
func (r *sessionRegistry) Go(id string, fn func()) bool {
	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return false
	}
	if _, busy := r.inflight[id]; busy {
		r.mu.Unlock()
		return false
	}
	r.inflight[id] = struct{}{}
	r.wg.Add(1)
	inFlightGauge.Inc()
	r.mu.Unlock()

	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.inflight, id)
			r.mu.Unlock()
			inFlightGauge.Dec()
			r.wg.Done()
		}()
		fn()
	}()
	return true
}

func (r *sessionRegistry) InFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[id]
	return ok
}

func (r *sessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

func (r *sessionRegistry) Closing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closing
}

// CloseAndWait refuses new work and waits for running continuations or ctx.
// It may be called more than once.
func (r *sessionRegistry) CloseAndWait(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("continuation drain timeout: %w", ctx.Err())
	}
}
