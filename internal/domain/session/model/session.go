// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model defines the patient session record and its lifecycle rules.
package model

import (
	"fmt"
	"time"
)

// Status is the processing lifecycle of a session.
// Progression is forward only: PENDING -> TRANSCRIBING -> CLASSIFIED | FAILED.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusTranscribing Status = "TRANSCRIBING"
	StatusClassified   Status = "CLASSIFIED"
	StatusFailed       Status = "FAILED"
)

// Placeholder and failure texts written by the pipeline.
const (
	PlaceholderTranscript  = "Processing..."
	PlaceholderBotResponse = "Thank you for sharing. Processing your audio..."
	FailedTranscript       = "Transcription failed"
	FailedBotResponse      = "Sorry, I could not process your audio. Please try again."
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	return s == StatusClassified || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusTranscribing, StatusClassified, StatusFailed:
		return true
	}
	return false
}

// Session is one patient voice-submission lifecycle record.
type Session struct {
	ID            string    `json:"id"`
	PatientID     string    `json:"patientId"`
	AudioFileName string    `json:"audioFileName,omitempty"`
	AudioSize     int64     `json:"audioSize"`
	Status        Status    `json:"status"`
	Transcript    string    `json:"transcript"`
	BotResponse   string    `json:"botResponse"`
	IsUrgent      bool      `json:"isUrgent"`
	SafetyFlags   []string  `json:"safetyFlags"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Clone returns a deep copy so callers never share the flags slice with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.SafetyFlags = append(make([]string, 0, len(s.SafetyFlags)), s.SafetyFlags...)
	return &cp
}

// NewSession carries the caller-supplied fields for Store.Create.
type NewSession struct {
	PatientID     string
	AudioFileName string
	AudioSize     int64
}

// NewPending builds the initial record a store persists on Create.
func NewPending(in NewSession, id string, now time.Time) *Session {
	patientID := in.PatientID
	if patientID == "" {
		patientID = GeneratePatientID(now)
	}
	now = now.UTC()
	return &Session{
		ID:            id,
		PatientID:     patientID,
		AudioFileName: in.AudioFileName,
		AudioSize:     in.AudioSize,
		Status:        StatusPending,
		Transcript:    PlaceholderTranscript,
		BotResponse:   PlaceholderBotResponse,
		SafetyFlags:   []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// GeneratePatientID derives an anonymous patient identifier from the upload time.
func GeneratePatientID(now time.Time) string {
	return fmt.Sprintf("patient_%d", now.UnixMilli())
}
