// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
)

// ChannelTherapists is the channel clinician dashboards join.
const ChannelTherapists = "therapists"

// Kind names the event pushed to subscribers.
type Kind string

const (
	KindSessionUpdated Kind = "session-updated"
	KindUrgentSession  Kind = "urgent-session"
)

// Event is a transient notification. It is never persisted.
type Event struct {
	Kind      Kind           `json:"event"`
	SessionID string         `json:"sessionId"`
	PatientID string         `json:"patientId,omitempty"`
	Message   string         `json:"message,omitempty"`
	Session   *model.Session `json:"session,omitempty"`
	At        time.Time      `json:"at"`
}

// UrgentSession builds the alert sent when a session is classified urgent.
func UrgentSession(s *model.Session, message string) Event {
	return Event{
		Kind:      KindUrgentSession,
		SessionID: s.ID,
		PatientID: s.PatientID,
		Message:   message,
		At:        time.Now().UTC(),
	}
}

// SessionUpdated carries a snapshot of a session after a terminal update.
func SessionUpdated(s *model.Session) Event {
	return Event{
		Kind:      KindSessionUpdated,
		SessionID: s.ID,
		PatientID: s.PatientID,
		Session:   s.Clone(),
		At:        time.Now().UTC(),
	}
}
