// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience keeps a failing upstream provider from stalling every
// caller. The transcription client wraps each provider request in a
// CircuitBreaker so a dead provider fails fast with ErrCircuitOpen.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker position as exported in metrics.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// ErrCircuitOpen is returned without calling the provider while the breaker
// is open, or while a half-open trial request is still in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// CircuitBreaker counts consecutive provider failures. After threshold of
// them it opens and rejects calls for cooldown; the first call after that is
// a single trial whose outcome closes or reopens the breaker.
type CircuitBreaker struct {
	mu        sync.Mutex
	name      string
	state     State
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	trialBusy bool
	clock     clock

	// Nil counts every error.
	countsAsFailure func(error) bool
}

type Option func(*CircuitBreaker)

func WithClock(c clock) Option {
	return func(cb *CircuitBreaker) { cb.clock = c }
}

// WithFailurePredicate limits which errors count toward the threshold, e.g.
// so a rejected upload (4xx) does not mark the provider as down. Errors
// rejected by fn still reach the caller.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) { cb.countsAsFailure = fn }
}

// NewCircuitBreaker returns a closed breaker labelled name in metrics.
// threshold <= 0 means 3; cooldown <= 0 means 30s.
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration, opts ...Option) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		name:      name,
		state:     StateClosed,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
	}
	for _, opt := range opts {
		opt(cb)
	}

	setBreakerState(cb.name, cb.state)
	return cb
}

// Execute calls fn unless the breaker rejects it, and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	trial, ok := cb.admit()
	if !ok {
		return ErrCircuitOpen
	}

	err := fn()
	if err != nil && (cb.countsAsFailure == nil || cb.countsAsFailure(err)) {
		cb.onFailure(trial)
		return err
	}
	cb.onSuccess(trial)
	return err
}

// admit reports whether a call may proceed and whether it is the half-open trial.
func (cb *CircuitBreaker) admit() (trial bool, ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return false, true
	case StateOpen:
		if cb.clock.Now().Sub(cb.openedAt) < cb.cooldown {
			return false, false
		}
		cb.transitionTo(StateHalfOpen)
	}
	if cb.trialBusy {
		return false, false
	}
	cb.trialBusy = true
	return true, true
}

func (cb *CircuitBreaker) onFailure(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialBusy = false
	}
	cb.failures++

	switch {
	case cb.state == StateHalfOpen:
		breakerTripsTotal.WithLabelValues(cb.name, "trial_failed").Inc()
		cb.transitionTo(StateOpen)
	case cb.state == StateClosed && cb.failures >= cb.threshold:
		breakerTripsTotal.WithLabelValues(cb.name, "threshold_exceeded").Inc()
		cb.transitionTo(StateOpen)
	}
}

func (cb *CircuitBreaker) onSuccess(trial bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialBusy = false
	}
	cb.failures = 0
	cb.transitionTo(StateClosed)
}

// Caller holds mu.
func (cb *CircuitBreaker) transitionTo(next State) {
	if cb.state == next {
		return
	}
	cb.state = next
	if next == StateOpen {
		cb.openedAt = cb.clock.Now()
	}
	setBreakerState(cb.name, next)
}

// State returns the current position.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// RetryIn is how long until an open breaker admits its trial call. It is zero
// when the breaker is not open or the cooldown has passed.
func (cb *CircuitBreaker) RetryIn() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return 0
	}
	if left := cb.cooldown - cb.clock.Now().Sub(cb.openedAt); left > 0 {
		return left
	}
	return 0
}
