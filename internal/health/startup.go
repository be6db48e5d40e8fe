// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"

	"github.com/ManuGH/therapyflow/internal/log"
)

// StartupOptions lists what the daemon needs before it binds its listener.
type StartupOptions struct {
	ListenAddr       string
	TranscriptionURL string
	APIKeySet        bool
	StoreBackend     string
	// Dirs are created when missing and must be writable.
	Dirs []string
}

// PerformStartupChecks validates the environment before starting the server.
func PerformStartupChecks(_ context.Context, opts StartupOptions) error {
	logger := log.WithComponent("startup-check")

	for _, dir := range opts.Dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		if err := checkWritableDir(dir); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}

	if opts.ListenAddr != "" {
		_, port, err := net.SplitHostPort(opts.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid listen address %q: %w", opts.ListenAddr, err)
		}
		if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
			return fmt.Errorf("invalid listen port %q in %q", port, opts.ListenAddr)
		}
	}

	u, err := url.Parse(opts.TranscriptionURL)
	if err != nil {
		return fmt.Errorf("invalid transcription base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("transcription base url scheme must be http or https, got %q", u.Scheme)
	}
	if !opts.APIKeySet {
		logger.Warn().Msg("transcription api key not set; every session will fail")
	}
	if opts.StoreBackend == "memory" {
		logger.Warn().Msg("memory store selected; sessions are lost on restart")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}
