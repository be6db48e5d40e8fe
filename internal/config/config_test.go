// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_DefaultsWithLocalProvider(t *testing.T) {
	t.Setenv(EnvPrefix+"TRANSCRIPTION_URL", "http://127.0.0.1:9000")
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())

	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":5000", cfg.Server.ListenAddr)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(cfg.DataDir, "sessions.sqlite"), cfg.Store.Path)
	assert.Equal(t, filepath.Join(cfg.DataDir, "spool"), cfg.Pipeline.SpoolDir)
	assert.Equal(t, int64(10<<20), cfg.Pipeline.MaxAudioBytes)
	assert.Equal(t, 3*time.Second, cfg.Transcription.PollInterval)
	assert.Contains(t, cfg.Server.AllowedOrigins, "http://localhost:5173")
}

func TestLoad_RemoteProviderNeedsKey(t *testing.T) {
	_, err := NewLoader("", "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription.apiKey")

	t.Setenv("ASSEMBLYAI_API_KEY", "secret")
	cfg, err := NewLoader("", "v").Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Transcription.APIKey)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
server:
  listenAddr: ":7000"
log:
  level: debug
transcription:
  apiKey: from-file
  pollInterval: 5s
pipeline:
  maxAudioBytes: 1024
`)
	t.Setenv(EnvPrefix+"DATA_DIR", dir)
	t.Setenv("ASSEMBLYAI_API_KEY", "from-alias")
	t.Setenv(EnvPrefix+"TRANSCRIPTION_API_KEY", "from-native")
	t.Setenv(EnvPrefix+"POLL_INTERVAL", "7s")

	l := NewLoader(path, "v")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.ListenAddr, "file beats default")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, int64(1024), cfg.Pipeline.MaxAudioBytes)
	assert.Equal(t, 7*time.Second, cfg.Transcription.PollInterval, "env beats file")
	assert.Equal(t, "from-native", cfg.Transcription.APIKey, "native key beats alias")
	assert.Contains(t, l.ConsumedEnvKeys, "ASSEMBLYAI_API_KEY")
}

func TestLoad_PortAlias(t *testing.T) {
	t.Setenv("ASSEMBLYAI_API_KEY", "k")
	t.Setenv(EnvPrefix+"DATA_DIR", t.TempDir())
	t.Setenv("PORT", "8088")

	cfg, err := NewLoader("", "v").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8088", cfg.Server.ListenAddr)

	t.Setenv(EnvPrefix+"LISTEN_ADDR", "127.0.0.1:9999")
	cfg, err = NewLoader("", "v").Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.ListenAddr)
}

func TestLoad_StrictYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASSEMBLYAI_API_KEY", "k")

	_, err := NewLoader(writeConfig(t, dir, "server:\n  lisenAddr: \":1\"\n"), "v").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")

	_, err = NewLoader(writeConfig(t, dir, "log:\n  level: info\n---\nlog:\n  level: debug\n"), "v").Load()
	require.Error(t, err)

	txt := filepath.Join(dir, "config.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o600))
	_, err = NewLoader(txt, "v").Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Defaults()
	base.Transcription.APIKey = "k"
	require.NoError(t, Validate(base))

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad backend", func(c *Config) { c.Store.Backend = "postgres" }, "store.backend"},
		{"mongo without uri", func(c *Config) { c.Store.Backend = "mongo" }, "store.mongoURI"},
		{"zero poll interval", func(c *Config) { c.Transcription.PollInterval = 0 }, "transcription.pollInterval"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"redis cache without redis", func(c *Config) { c.Cache.Backend = "redis" }, "cache.backend"},
		{"stale shorter than continuation", func(c *Config) { c.Pipeline.StaleAfter = time.Minute }, "pipeline.staleAfter"},
		{"bad listen addr", func(c *Config) { c.Server.ListenAddr = "5000" }, "server.listenAddr"},
		{"bad sampling", func(c *Config) { c.Telemetry.SamplingRate = 2 }, "telemetry.samplingRate"},
		{"ftp provider", func(c *Config) { c.Transcription.BaseURL = "ftp://x" }, "transcription.baseURL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			var fe *FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestHolder_ReloadKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASSEMBLYAI_API_KEY", "k")
	t.Setenv(EnvPrefix+"DATA_DIR", dir)
	path := writeConfig(t, dir, "log:\n  level: info\n")

	l := NewLoader(path, "v")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)
	updates := make(chan Config, 1)
	h.RegisterListener(updates)

	writeConfig(t, dir, "log:\n  level: debug\n")
	require.NoError(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Log.Level)
	assert.Equal(t, "debug", (<-updates).Log.Level)

	writeConfig(t, dir, "log:\n  level: nope\n")
	require.Error(t, h.Reload())
	assert.Equal(t, "debug", h.Get().Log.Level)
}

func TestHolder_WatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASSEMBLYAI_API_KEY", "k")
	t.Setenv(EnvPrefix+"DATA_DIR", dir)
	path := writeConfig(t, dir, "log:\n  level: info\n")

	l := NewLoader(path, "v")
	initial, err := l.Load()
	require.NoError(t, err)
	h := NewHolder(initial, l)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeConfig(t, dir, "log:\n  level: warn\n")

	require.Eventually(t, func() bool { return h.Get().Log.Level == "warn" }, 5*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestHolder_WatchWithoutFile(t *testing.T) {
	h := NewHolder(Defaults(), NewLoader("", "v"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, h.Watch(ctx))
}
