// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned by stores when the session id is unknown.
	ErrNotFound = errors.New("session not found")
	// ErrIllegalTransition rejects a backwards or state-skipping status change.
	ErrIllegalTransition = errors.New("illegal session transition")
	// ErrTerminal rejects changes to a session that already reached a terminal status.
	ErrTerminal = errors.New("session is terminal")
)

var transitions = map[Status][]Status{
	StatusPending:      {StatusTranscribing},
	StatusTranscribing: {StatusClassified, StatusFailed},
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Status      *Status
	Transcript  *string
	BotResponse *string
	IsUrgent    *bool
	SafetyFlags []string // nil leaves flags untouched
}

// StatusPatch is a patch that only moves the status.
func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

// ClassifiedPatch is the terminal success update.
func ClassifiedPatch(transcript, botResponse string, urgent bool, flags []string) Patch {
	st := StatusClassified
	if flags == nil {
		flags = []string{}
	}
	return Patch{
		Status:      &st,
		Transcript:  &transcript,
		BotResponse: &botResponse,
		IsUrgent:    &urgent,
		SafetyFlags: flags,
	}
}

// FailedPatch is the terminal failure update.
func FailedPatch() Patch {
	st := StatusFailed
	transcript := FailedTranscript
	reply := FailedBotResponse
	urgent := false
	return Patch{
		Status:      &st,
		Transcript:  &transcript,
		BotResponse: &reply,
		IsUrgent:    &urgent,
		SafetyFlags: []string{},
	}
}

// Apply mutates s according to p. Every store backend routes updates through
// it, so transition rules live in one place.
//
// Replaying a patch that targets the current terminal status is a no-op
// (changed=false, nil error); retried terminal writes stay idempotent.
func Apply(s *Session, p Patch, now time.Time) (bool, error) {
	if s.Status.IsTerminal() {
		if p.Status != nil && *p.Status == s.Status {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s is %s", ErrTerminal, s.ID, s.Status)
	}

	if p.Status != nil && *p.Status != s.Status {
		if !CanTransition(s.Status, *p.Status) {
			return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Status, *p.Status)
		}
		s.Status = *p.Status
	}
	if p.Transcript != nil {
		s.Transcript = *p.Transcript
	}
	if p.BotResponse != nil {
		s.BotResponse = *p.BotResponse
	}
	if p.IsUrgent != nil {
		s.IsUrgent = *p.IsUrgent
	}
	if p.SafetyFlags != nil {
		s.SafetyFlags = append(make([]string, 0, len(p.SafetyFlags)), p.SafetyFlags...)
	}
	s.UpdatedAt = now.UTC()
	return true, nil
}
