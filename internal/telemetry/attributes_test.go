// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(attrs))
	for _, kv := range attrs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}

func TestHTTPAttributes(t *testing.T) {
	m := attrMap(HTTPAttributes("POST", "/api/upload-audio", "http://x/api/upload-audio", 202))
	assert.Equal(t, "POST", m[HTTPMethodKey].AsString())
	assert.Equal(t, "/api/upload-audio", m[HTTPRouteKey].AsString())
	assert.Equal(t, int64(202), m[HTTPStatusCodeKey].AsInt64())
}

func TestSessionAndOutcomeAttributes(t *testing.T) {
	m := attrMap(SessionAttributes("s1", 2048))
	assert.Equal(t, "s1", m[SessionIDKey].AsString())
	assert.Equal(t, int64(2048), m[SessionAudioBytes].AsInt64())

	m = attrMap(OutcomeAttributes("CLASSIFIED", true, []string{"hopeless", "worthless"}))
	assert.Equal(t, "CLASSIFIED", m[SessionStatusKey].AsString())
	assert.True(t, m[SessionUrgentKey].AsBool())
	assert.Equal(t, []string{"hopeless", "worthless"}, m[SessionFlagsKey].AsStringSlice())
}

func TestErrorAttributes(t *testing.T) {
	m := attrMap(ErrorAttributes("timeout"))
	assert.True(t, m[ErrorKey].AsBool())
	assert.Equal(t, "timeout", m[ErrorTypeKey].AsString())
}
