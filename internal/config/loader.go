// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// defaults plus environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the watched config file path.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, def string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, def)
}

func (l *Loader) envInt(key string, def int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, def)
}

func (l *Loader) envDuration(key string, def time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, def)
}

func (l *Loader) envBool(key string, def bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, def)
}

func (l *Loader) envFloat(key string, def float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, def)
}

func (l *Loader) envList(key string, def []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, def)
}

// Load loads configuration with precedence: ENV > File > Defaults, then
// resolves derived paths and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes the YAML file over cfg with strict parsing: unknown
// fields and trailing documents are errors.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.DataDir = l.envString(EnvPrefix+"DATA_DIR", cfg.DataDir)

	// PORT is what the original deployment sets; the native key wins.
	if port := l.envString("PORT", ""); port != "" {
		cfg.Server.ListenAddr = ":" + port
	}
	cfg.Server.ListenAddr = l.envString(EnvPrefix+"LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.AllowedOrigins = l.envList(EnvPrefix+"ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)
	cfg.Server.RateLimitRPM = l.envInt(EnvPrefix+"RATE_LIMIT_RPM", cfg.Server.RateLimitRPM)
	cfg.Server.ShutdownTimeout = l.envDuration(EnvPrefix+"SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Log.Level = l.envString(EnvPrefix+"LOG_LEVEL", cfg.Log.Level)

	cfg.Store.Backend = l.envString(EnvPrefix+"STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString(EnvPrefix+"STORE_PATH", cfg.Store.Path)
	cfg.Store.MongoURI = l.envString("MONGODB_URI", cfg.Store.MongoURI)
	cfg.Store.MongoURI = l.envString(EnvPrefix+"MONGO_URI", cfg.Store.MongoURI)
	cfg.Store.MongoDatabase = l.envString(EnvPrefix+"MONGO_DATABASE", cfg.Store.MongoDatabase)

	cfg.Transcription.BaseURL = l.envString(EnvPrefix+"TRANSCRIPTION_URL", cfg.Transcription.BaseURL)
	cfg.Transcription.APIKey = l.envString("ASSEMBLYAI_API_KEY", cfg.Transcription.APIKey)
	cfg.Transcription.APIKey = l.envString(EnvPrefix+"TRANSCRIPTION_API_KEY", cfg.Transcription.APIKey)
	cfg.Transcription.PollInterval = l.envDuration(EnvPrefix+"POLL_INTERVAL", cfg.Transcription.PollInterval)
	cfg.Transcription.MaxPolls = l.envInt(EnvPrefix+"MAX_POLLS", cfg.Transcription.MaxPolls)
	cfg.Transcription.Timeout = l.envDuration(EnvPrefix+"TRANSCRIPTION_TIMEOUT", cfg.Transcription.Timeout)
	cfg.Transcription.RequestsPerSecond = l.envFloat(EnvPrefix+"TRANSCRIPTION_RPS", cfg.Transcription.RequestsPerSecond)

	cfg.Pipeline.MaxAudioBytes = int64(l.envInt(EnvPrefix+"MAX_AUDIO_BYTES", int(cfg.Pipeline.MaxAudioBytes)))
	cfg.Pipeline.SpoolDir = l.envString(EnvPrefix+"SPOOL_DIR", cfg.Pipeline.SpoolDir)
	cfg.Pipeline.StaleAfter = l.envDuration(EnvPrefix+"STALE_AFTER", cfg.Pipeline.StaleAfter)
	cfg.Pipeline.SweepInterval = l.envDuration(EnvPrefix+"SWEEP_INTERVAL", cfg.Pipeline.SweepInterval)

	cfg.Redis.Addr = l.envString(EnvPrefix+"REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = l.envString(EnvPrefix+"REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = l.envInt(EnvPrefix+"REDIS_DB", cfg.Redis.DB)
	cfg.Cache.Backend = l.envString(EnvPrefix+"CACHE_BACKEND", cfg.Cache.Backend)

	cfg.Telemetry.Enabled = l.envBool(EnvPrefix+"TRACING_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = l.envString(EnvPrefix+"OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Exporter = l.envString(EnvPrefix+"OTLP_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.SamplingRate = l.envFloat(EnvPrefix+"TRACING_SAMPLE_RATE", cfg.Telemetry.SamplingRate)
}

// resolvePaths fills file locations derived from DataDir.
func resolvePaths(cfg *Config) {
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Path == "" {
		switch cfg.Store.Backend {
		case "sqlite":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "sessions.sqlite")
		case "badger":
			cfg.Store.Path = filepath.Join(cfg.DataDir, "sessions.badger")
		}
	}
	if cfg.Pipeline.SpoolDir == "" {
		cfg.Pipeline.SpoolDir = filepath.Join(cfg.DataDir, "spool")
	}
}
