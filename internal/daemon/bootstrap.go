// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon builds the therapyflow runtime from configuration and owns
// its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/therapyflow/internal/api"
	"github.com/ManuGH/therapyflow/internal/cache"
	"github.com/ManuGH/therapyflow/internal/config"
	"github.com/ManuGH/therapyflow/internal/domain/session/store"
	"github.com/ManuGH/therapyflow/internal/health"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/notify"
	"github.com/ManuGH/therapyflow/internal/pipeline"
	"github.com/ManuGH/therapyflow/internal/telemetry"
	"github.com/ManuGH/therapyflow/internal/transcription"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Runtime is every long-lived component built from one Config.
type Runtime struct {
	Config config.Config

	Store       store.Store
	Hub         *notify.Hub
	Relay       *notify.RedisRelay // nil without redis
	Redis       redis.UniversalClient
	Transcriber *transcription.Client
	Pipeline    *pipeline.Pipeline
	Health      *health.Manager
	API         *api.Server
	Telemetry   *telemetry.Provider

	memCache *cache.MemoryCache
	logger   zerolog.Logger
}

// Options overrides pieces of the runtime, mostly for tests.
type Options struct {
	// Transcriber replaces the HTTP transcription client.
	Transcriber pipeline.Transcriber
	// Redis replaces the client built from cfg.Redis.
	Redis redis.UniversalClient
}

// Build wires the runtime. On error everything built so far is closed.
func Build(ctx context.Context, cfg config.Config, opts Options) (rt *Runtime, err error) {
	rt = &Runtime{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
			rt = nil
		}
	}()

	if cfg.Telemetry.Enabled {
		provider, terr := telemetry.NewProvider(ctx, telemetry.Config{
			Enabled:        true,
			ServiceName:    cfg.Log.Service,
			ServiceVersion: cfg.Version,
			Environment:    cfg.Telemetry.Environment,
			ExporterType:   cfg.Telemetry.Exporter,
			Endpoint:       cfg.Telemetry.Endpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if terr != nil {
			rt.logger.Warn().Err(terr).Msg("telemetry initialization failed, continuing without tracing")
		} else {
			rt.Telemetry = provider
			rt.logger.Info().
				Str("endpoint", cfg.Telemetry.Endpoint).
				Float64("sampling_rate", cfg.Telemetry.SamplingRate).
				Msg("telemetry initialized")
		}
	}

	base, err := store.Open(ctx, store.Config{
		Backend: cfg.Store.Backend,
		Path:    cfg.Store.Path,
		Mongo: store.MongoConfig{
			URI:        cfg.Store.MongoURI,
			Database:   cfg.Store.MongoDatabase,
			Collection: cfg.Store.MongoCollection,
			Timeout:    cfg.Store.MongoTimeout,
		},
	})
	if err != nil {
		return rt, fmt.Errorf("open session store: %w", err)
	}
	rt.Store = store.NewInstrumentedStore(base, cfg.Store.Backend)

	rt.Redis = opts.Redis
	if rt.Redis == nil && cfg.Redis.Addr != "" {
		rt.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	switch cfg.Cache.Backend {
	case "memory":
		rt.memCache = cache.NewMemoryCache(time.Minute)
		rt.Store = cache.NewCachedStore(rt.Store, rt.memCache, cfg.Cache.TTL)
	case "redis":
		if rt.Redis == nil {
			return rt, errors.New("redis cache requires a redis client")
		}
		rc := cache.NewRedisCache(rt.Redis, redisPrefix(cfg.Redis.Prefix, "session:", cache.DefaultRedisPrefix))
		rt.Store = cache.NewCachedStore(rt.Store, rc, cfg.Cache.TTL)
	}

	rt.Hub = notify.NewHub(cfg.Notify.BufferSize)
	if rt.Redis != nil {
		rt.Relay = notify.NewRedisRelay(rt.Redis, rt.Hub, redisPrefix(cfg.Redis.Prefix, "notify:", ""), cfg.Notify.Channel)
	}

	tr := opts.Transcriber
	if tr == nil {
		client, cerr := transcription.New(transcription.Config{
			BaseURL:    cfg.Transcription.BaseURL,
			APIKey:     cfg.Transcription.APIKey,
			AuthScheme: cfg.Transcription.AuthScheme,
			Poll: transcription.PollPolicy{
				Interval:    cfg.Transcription.PollInterval,
				MaxInterval: cfg.Transcription.MaxPollInterval,
				Backoff:     cfg.Transcription.PollBackoff,
				MaxPolls:    cfg.Transcription.MaxPolls,
				Timeout:     cfg.Transcription.Timeout,
			},
			RequestTimeout:    cfg.Transcription.RequestTimeout,
			RequestsPerSecond: cfg.Transcription.RequestsPerSecond,
			Burst:             cfg.Transcription.Burst,
			BreakerThreshold:  cfg.Transcription.BreakerThreshold,
			BreakerReset:      cfg.Transcription.BreakerReset,
		})
		if cerr != nil {
			return rt, fmt.Errorf("transcription client: %w", cerr)
		}
		rt.Transcriber = client
		tr = client
	}

	rt.Pipeline, err = pipeline.New(rt.Store, tr, rt.Hub, pipeline.Config{
		MaxAudioBytes:       cfg.Pipeline.MaxAudioBytes,
		ContinuationTimeout: cfg.Pipeline.ContinuationTimeout,
		UpdateAttempts:      cfg.Pipeline.UpdateAttempts,
		UpdateBackoff:       cfg.Pipeline.UpdateBackoff,
		SpoolDir:            cfg.Pipeline.SpoolDir,
		StaleAfter:          cfg.Pipeline.StaleAfter,
		Channel:             cfg.Notify.Channel,
	})
	if err != nil {
		return rt, fmt.Errorf("pipeline: %w", err)
	}

	rt.Health = health.NewManager(cfg.Version)
	rt.Health.RegisterChecker(health.NewPingChecker("store", true, rt.Store.Ping))
	if rt.Redis != nil {
		rdb := rt.Redis
		rt.Health.RegisterChecker(health.NewPingChecker("redis", false, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	}
	if rt.Transcriber != nil {
		client := rt.Transcriber
		rt.Health.RegisterChecker(health.NewBreakerChecker("transcription", func() string {
			return string(client.BreakerState())
		}))
	}
	rt.Health.RegisterChecker(health.NewDirChecker("spool", cfg.Pipeline.SpoolDir))

	tracing := ""
	if rt.Telemetry != nil {
		tracing = cfg.Log.Service
	}
	rt.API = api.New(api.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitRPM:   cfg.Server.RateLimitRPM,
		TracingService: tracing,
		DefaultChannel: cfg.Notify.Channel,
	}, api.Deps{
		Pipeline: rt.Pipeline,
		Sessions: rt.Store,
		Hub:      rt.Hub,
		Health:   rt.Health,
	})

	return rt, nil
}

func redisPrefix(base, suffix, fallback string) string {
	if base == "" {
		return fallback
	}
	return base + suffix
}

// RegisterHooks hands the runtime's teardown to m. Hooks run LIFO, so
// websockets close first and telemetry flushes last.
func (rt *Runtime) RegisterHooks(m Manager) {
	m.RegisterShutdownHook("runtime", rt.Close)
}

// Close tears components down in dependency order: websocket clients, the
// pipeline drain, the hub, caches, redis, the store and finally telemetry.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.API != nil {
		if err := rt.API.CloseWebsockets(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.Pipeline != nil {
		if err := rt.Pipeline.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
		}
	}
	if rt.Hub != nil {
		rt.Hub.Close()
	}
	if rt.memCache != nil {
		rt.memCache.Stop()
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}
	if rt.Telemetry != nil {
		if err := rt.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
