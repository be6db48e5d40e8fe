// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// FieldError names the offending config key.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Reason
}

type validator struct {
	errs []error
}

func (v *validator) fail(field, format string, args ...any) {
	v.errs = append(v.errs, &FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

func (v *validator) positive(field string, d time.Duration) {
	if d <= 0 {
		v.fail(field, "must be positive, got %s", d)
	}
}

func (v *validator) oneOf(field, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.fail(field, "must be one of %v, got %q", allowed, value)
}

// Validate checks the complete configuration and reports every problem.
func Validate(cfg Config) error {
	v := &validator{}

	if cfg.Server.ListenAddr == "" {
		v.fail("server.listenAddr", "must not be empty")
	} else if _, _, err := net.SplitHostPort(cfg.Server.ListenAddr); err != nil {
		v.fail("server.listenAddr", "invalid address: %v", err)
	}
	if cfg.Server.RateLimitRPM < 0 {
		v.fail("server.rateLimitRPM", "must not be negative")
	}
	v.positive("server.shutdownTimeout", cfg.Server.ShutdownTimeout)

	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		v.fail("log.level", "unknown level %q", cfg.Log.Level)
	}

	v.oneOf("store.backend", cfg.Store.Backend, "memory", "sqlite", "badger", "mongo")
	if cfg.Store.Backend == "mongo" && cfg.Store.MongoURI == "" {
		v.fail("store.mongoURI", "required for the mongo backend (MONGODB_URI)")
	}

	u, err := url.Parse(cfg.Transcription.BaseURL)
	switch {
	case err != nil || u.Host == "":
		v.fail("transcription.baseURL", "invalid url %q", cfg.Transcription.BaseURL)
	case u.Scheme != "http" && u.Scheme != "https":
		v.fail("transcription.baseURL", "scheme must be http or https")
	case cfg.Transcription.APIKey == "" && !isLoopback(u.Hostname()):
		v.fail("transcription.apiKey", "required for a remote provider (ASSEMBLYAI_API_KEY)")
	}
	v.positive("transcription.pollInterval", cfg.Transcription.PollInterval)
	v.positive("transcription.timeout", cfg.Transcription.Timeout)
	if cfg.Transcription.PollBackoff < 1 {
		v.fail("transcription.pollBackoff", "must be >= 1")
	}
	if cfg.Transcription.MaxPolls < 0 {
		v.fail("transcription.maxPolls", "must not be negative")
	}
	if cfg.Transcription.RequestsPerSecond < 0 {
		v.fail("transcription.requestsPerSecond", "must not be negative")
	}

	if cfg.Pipeline.MaxAudioBytes <= 0 {
		v.fail("pipeline.maxAudioBytes", "must be positive")
	}
	v.positive("pipeline.continuationTimeout", cfg.Pipeline.ContinuationTimeout)
	v.positive("pipeline.staleAfter", cfg.Pipeline.StaleAfter)
	if cfg.Pipeline.SweepInterval < 0 {
		v.fail("pipeline.sweepInterval", "must not be negative")
	}
	if cfg.Pipeline.StaleAfter <= cfg.Pipeline.ContinuationTimeout {
		v.fail("pipeline.staleAfter", "must exceed continuationTimeout so live sessions are never swept")
	}

	if cfg.Notify.BufferSize <= 0 {
		v.fail("notify.bufferSize", "must be positive")
	}

	v.oneOf("cache.backend", cfg.Cache.Backend, "none", "memory", "redis")
	if cfg.Cache.Backend == "redis" && cfg.Redis.Addr == "" {
		v.fail("cache.backend", "redis cache requires redis.addr")
	}

	if cfg.Telemetry.Enabled {
		v.oneOf("telemetry.exporter", cfg.Telemetry.Exporter, "grpc", "http")
		if cfg.Telemetry.Endpoint == "" {
			v.fail("telemetry.endpoint", "required when tracing is enabled")
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		v.fail("telemetry.samplingRate", "must be within [0,1]")
	}

	return errors.Join(v.errs...)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
