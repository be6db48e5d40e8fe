// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by spans across packages.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	SessionIDKey      = "session.id"
	SessionStatusKey  = "session.status"
	SessionUrgentKey  = "session.urgent"
	SessionFlagsKey   = "session.safety_flags"
	SessionAudioBytes = "session.audio_bytes"

	TranscriptionKindKey = "transcription.error_kind"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// SessionAttributes describes a session at span start.
func SessionAttributes(id string, audioBytes int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionIDKey, id),
		attribute.Int(SessionAudioBytes, audioBytes),
	}
}

// OutcomeAttributes describes the terminal result of a session.
// Flag names are recorded, never transcript text.
func OutcomeAttributes(status string, urgent bool, flags []string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SessionStatusKey, status),
		attribute.Bool(SessionUrgentKey, urgent),
		attribute.StringSlice(SessionFlagsKey, flags),
	}
}

// ErrorAttributes tags a span with an error classification.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
