// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/therapyflow/internal/config"
	"github.com/ManuGH/therapyflow/internal/daemon"
	"github.com/ManuGH/therapyflow/internal/health"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/version"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the upload API and processing pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	return cmd
}

// resolveConfigPath prefers --config, then THERAPYFLOW_CONFIG, then
// config.yaml inside the data directory when it exists.
func resolveConfigPath(explicit string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	if p := strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", "")); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", "data"))
	auto := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(auto); err == nil {
		return auto
	}
	return ""
}

func runServe(ctx context.Context, explicitPath string) error {
	// Safe defaults until config is loaded.
	log.Configure(log.Config{Level: "info", Service: "therapyflow", Version: version.Version})
	logger := log.WithComponent("daemon")

	path := resolveConfigPath(explicitPath)
	loader := config.NewLoader(path, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "config.load_failed").Str("config_path", path).Msg("failed to load configuration")
		return fmt.Errorf("load config: %w", err)
	}

	log.Configure(log.Config{Level: cfg.Log.Level, Service: cfg.Log.Service, Version: cfg.Version})
	source := "env+defaults"
	if path != "" {
		source = "file"
	}
	logger.Info().
		Str(log.FieldEvent, "config.loaded").
		Str("source", source).
		Str("path", path).
		Str("store", cfg.Store.Backend).
		Str("transcription_url", maskURL(cfg.Transcription.BaseURL)).
		Msg("configuration loaded")

	if err := health.PerformStartupChecks(ctx, health.StartupOptions{
		ListenAddr:       cfg.Server.ListenAddr,
		TranscriptionURL: cfg.Transcription.BaseURL,
		APIKeySet:        cfg.Transcription.APIKey != "",
		StoreBackend:     cfg.Store.Backend,
		Dirs:             []string{cfg.DataDir, cfg.Pipeline.SpoolDir},
	}); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "startup.check_failed").Msg("startup checks failed, verify configuration and permissions")
		return err
	}

	rt, err := daemon.Build(ctx, cfg, daemon.Options{})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	mgr, err := daemon.NewManager(cfg.Server, daemon.Deps{Logger: logger, APIHandler: rt.API.Handler()})
	if err != nil {
		_ = rt.Close(context.WithoutCancel(ctx))
		return err
	}
	rt.RegisterHooks(mgr)

	holder := config.NewHolder(cfg, loader)
	logger.Info().Str(log.FieldEvent, "daemon.start").Str("listen", cfg.Server.ListenAddr).Msg("starting therapyflow")
	return daemon.NewApp(logger, mgr, holder, rt).Run(ctx)
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
