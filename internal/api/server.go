// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the patient upload endpoint, the session listing used
// by the therapist dashboard, and the real-time websocket channel.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/therapyflow/internal/api/middleware"
	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/health"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/notify"
	"github.com/ManuGH/therapyflow/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Submitter starts processing for an upload. *pipeline.Pipeline implements it.
type Submitter interface {
	Submit(ctx context.Context, up pipeline.Upload) (*model.Session, error)
	MaxAudioBytes() int64
}

// SessionReader is the read side of the session store.
type SessionReader interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	ListRecent(ctx context.Context, limit int) ([]*model.Session, error)
}

// Subscriber hands out channel subscriptions. *notify.Hub implements it.
type Subscriber interface {
	Subscribe(channel string) *notify.Subscription
}

// Config tunes the HTTP surface. Zero values take defaults.
type Config struct {
	AllowedOrigins []string
	RateLimitRPM   int
	TracingService string
	DefaultChannel string
	MaxListLimit   int

	WSPingInterval time.Duration
	WSWriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = middleware.DefaultOrigins
	}
	if c.DefaultChannel == "" {
		c.DefaultChannel = notify.ChannelTherapists
	}
	if c.MaxListLimit <= 0 {
		c.MaxListLimit = 1000
	}
	if c.WSPingInterval <= 0 {
		c.WSPingInterval = 30 * time.Second
	}
	if c.WSWriteTimeout <= 0 {
		c.WSWriteTimeout = 10 * time.Second
	}
	return c
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Pipeline Submitter
	Sessions SessionReader
	Hub      Subscriber
	Health   *health.Manager
}

// Server owns the router and handlers.
type Server struct {
	cfg      Config
	deps     Deps
	upgrader websocket.Upgrader
	ws       *wsRegistry
	logger   zerolog.Logger
}

// New builds a Server.
func New(cfg Config, deps Deps) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		ws:     newWSRegistry(),
		logger: log.WithComponent("api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Probes and scraping sit outside the stack: no access log, no rate limit.
	if s.deps.Health != nil {
		r.Get("/healthz", s.deps.Health.ServeHealth)
		r.Get("/readyz", s.deps.Health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableCORS:            true,
			AllowedOrigins:        s.cfg.AllowedOrigins,
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        s.cfg.TracingService,
			EnableLogging:         true,
			RateLimitRPM:          s.cfg.RateLimitRPM,
		})
		r.Route("/api", func(r chi.Router) {
			r.Post("/upload-audio", s.handleUpload)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Post("/safety/check", s.handleSafetyCheck)
			r.Get("/ws", s.handleWebsocket)
			// CORS answers preflights before this is reached.
			r.Options("/*", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})
	})
	return r
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		// Same-origin pages are always allowed.
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
