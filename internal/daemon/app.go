// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/therapyflow/internal/config"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/pipeline"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime lifecycle (config watcher, recovery sweeper,
// notification relay) and delegates server management to Manager.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	cfgHolder    *config.Holder
	runtime      *Runtime
	reloadSignal os.Signal
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, cfgHolder *config.Holder, rt *Runtime) *App {
	return &App{
		logger:       logger,
		manager:      manager,
		cfgHolder:    cfgHolder,
		runtime:      rt,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run recovers orphaned sessions, starts every background subsystem and
// blocks until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	if a.runtime == nil {
		return ErrMissingRuntime
	}
	rt := a.runtime

	if n, err := rt.Pipeline.Recover(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "pipeline.recover_failed").Msg("startup recovery failed, sweeper will retry")
	} else if n > 0 {
		a.logger.Info().Int("sessions", n).Str(log.FieldEvent, "pipeline.recovered").Msg("recovered orphaned sessions")
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.cfgHolder != nil {
		// Watcher is best-effort: a broken watch never takes the server down.
		g.Go(func() error {
			if err := a.cfgHolder.Watch(ctx); err != nil {
				a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_failed").Msg("config watcher stopped")
			}
			return nil
		})

		applyCh := make(chan config.Config, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case cfg := <-applyCh:
					a.apply(cfg)
				}
			}
		})

		if a.reloadSignal != nil {
			g.Go(func() error {
				hupChan := make(chan os.Signal, 1)
				signal.Notify(hupChan, a.reloadSignal)
				defer signal.Stop(hupChan)

				for {
					select {
					case <-ctx.Done():
						return nil
					case <-hupChan:
						a.logger.Info().
							Str(log.FieldEvent, "config.reload_signal").
							Str("signal", a.reloadSignal.String()).
							Msg("received reload signal, reloading config")
						_ = a.cfgHolder.Reload()
					}
				}
			})
		}
	}

	sweeper := &pipeline.Sweeper{Pipeline: rt.Pipeline, Interval: rt.Config.Pipeline.SweepInterval}
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	if rt.Relay != nil {
		g.Go(func() error {
			// Run resubscribes until ctx ends; local delivery continues while Redis is away.
			if err := rt.Relay.Run(ctx); err != nil {
				a.logger.Error().Err(err).Str(log.FieldEvent, "notify.relay_failed").Msg("notification relay stopped, events stay on this instance")
			}
			return nil
		})
	}

	g.Go(func() error {
		return a.manager.Start(ctx)
	})

	return g.Wait()
}

// apply hot-applies the settings that can change without a restart.
func (a *App) apply(cfg config.Config) {
	if err := log.SetLevel(cfg.Log.Level); err != nil {
		a.logger.Warn().Err(err).Str("level", cfg.Log.Level).Msg("invalid log level in reloaded config")
		return
	}
	a.logger.Info().Str("level", cfg.Log.Level).Msg("applied reloaded configuration")
}
