// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcription

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a transcription failure.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindProvider    Kind = "provider"
	KindTimeout     Kind = "timeout"
	KindMalformed   Kind = "malformed"
	KindUnavailable Kind = "unavailable"
	KindCanceled    Kind = "canceled"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrTransport   = errors.New("transcription: transport failure")
	ErrProvider    = errors.New("transcription: provider reported failure")
	ErrTimeout     = errors.New("transcription: job did not complete in time")
	ErrMalformed   = errors.New("transcription: malformed provider response")
	ErrUnavailable = errors.New("transcription: provider unavailable (circuit open)")
	ErrCanceled    = errors.New("transcription: canceled")
)

var sentinels = map[Kind]error{
	KindTransport:   ErrTransport,
	KindProvider:    ErrProvider,
	KindTimeout:     ErrTimeout,
	KindMalformed:   ErrMalformed,
	KindUnavailable: ErrUnavailable,
	KindCanceled:    ErrCanceled,
}

// Error wraps a sentinel with request context. It is the only error type
// SubmitAndAwait returns.
type Error struct {
	Kind    Kind
	Op      string // upload | submit | poll
	Status  int    // HTTP status when the provider answered
	JobID   string
	Message string // provider supplied failure text
	Err     error  // lower-level cause
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v (op=%s)", sentinels[e.Kind], e.Op)
	if e.JobID != "" {
		msg = fmt.Sprintf("%s job=%s", msg, e.JobID)
	}
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return sentinels[e.Kind]
}

// KindOf extracts the Kind of err, or "" when err is not a transcription error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

func contextError(op, jobID string, err error) *Error {
	kind := KindCanceled
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Op: op, JobID: jobID, Err: err}
}
