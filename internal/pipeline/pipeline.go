// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline accepts audio uploads and drives each session through
// transcription, safety classification, persistence and notification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/domain/session/store"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/notify"
	"github.com/ManuGH/therapyflow/internal/safety"
	"github.com/ManuGH/therapyflow/internal/telemetry"
	"github.com/ManuGH/therapyflow/internal/transcription"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
)

// DefaultMaxAudioBytes is the upload size limit (10 MiB).
const DefaultMaxAudioBytes = 10 << 20

// Transcriber turns audio into text. *transcription.Client implements it.
type Transcriber interface {
	SubmitAndAwait(ctx context.Context, audio []byte, filename string) (string, error)
}

// Publisher fans events out. *notify.Hub implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev notify.Event) int
}

// Config tunes the pipeline. Zero values take defaults.
type Config struct {
	MaxAudioBytes       int64
	ContinuationTimeout time.Duration
	UpdateAttempts      int
	UpdateBackoff       time.Duration
	FinalizeTimeout     time.Duration // bound for the detached terminal write
	SpoolDir            string        // empty disables spooling
	StaleAfter          time.Duration
	Channel             string
}

func (c Config) withDefaults() Config {
	if c.MaxAudioBytes <= 0 {
		c.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if c.ContinuationTimeout <= 0 {
		c.ContinuationTimeout = 15 * time.Minute
	}
	if c.UpdateAttempts <= 0 {
		c.UpdateAttempts = 3
	}
	if c.UpdateBackoff <= 0 {
		c.UpdateBackoff = 200 * time.Millisecond
	}
	if c.FinalizeTimeout <= 0 {
		c.FinalizeTimeout = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 20 * time.Minute
	}
	if c.Channel == "" {
		c.Channel = notify.ChannelTherapists
	}
	return c
}

// Upload is one patient submission.
type Upload struct {
	Audio     []byte
	Filename  string
	PatientID string
}

// Pipeline owns every continuation it starts. Safe for concurrent use.
type Pipeline struct {
	store       store.Store
	transcriber Transcriber
	publisher   Publisher
	cfg         Config
	registry    *sessionRegistry
	spool       *spool

	baseCtx context.Context
	cancel  context.CancelFunc
	now     func() time.Time
	logger  zerolog.Logger
}

// New builds a Pipeline. The spool directory is created when configured.
func New(st store.Store, tr Transcriber, pub Publisher, cfg Config) (*Pipeline, error) {
	if st == nil || tr == nil || pub == nil {
		return nil, errors.New("pipeline: store, transcriber and publisher are required")
	}
	cfg = cfg.withDefaults()
	sp, err := newSpool(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:       st,
		transcriber: tr,
		publisher:   pub,
		cfg:         cfg,
		registry:    newSessionRegistry(),
		spool:       sp,
		baseCtx:     ctx,
		cancel:      cancel,
		now:         time.Now,
		logger:      log.WithComponent("pipeline"),
	}, nil
}

// MaxAudioBytes exposes the configured upload limit.
func (p *Pipeline) MaxAudioBytes() int64 { return p.cfg.MaxAudioBytes }

// InFlight returns the number of running continuations.
func (p *Pipeline) InFlight() int { return p.registry.Len() }

// Submit validates and persists the upload, starts the continuation and
// returns the PENDING session without waiting for transcription.
func (p *Pipeline) Submit(ctx context.Context, up Upload) (*model.Session, error) {
	if len(up.Audio) == 0 {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return nil, &ValidationError{Field: "audio", Reason: "no audio file uploaded"}
	}
	if int64(len(up.Audio)) > p.cfg.MaxAudioBytes {
		submissionsTotal.WithLabelValues("invalid").Inc()
		return nil, &ValidationError{Field: "audio", TooLarge: true,
			Reason: fmt.Sprintf("file exceeds %d bytes", p.cfg.MaxAudioBytes)}
	}
	if p.registry.Closing() {
		submissionsTotal.WithLabelValues("shutting_down").Inc()
		return nil, ErrShuttingDown
	}

	sess, err := p.store.Create(ctx, model.NewSession{
		PatientID:     strings.TrimSpace(up.PatientID),
		AudioFileName: up.Filename,
		AudioSize:     int64(len(up.Audio)),
	})
	if err != nil {
		submissionsTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("create session: %w", err)
	}
	logger := log.WithContext(ctx, p.logger).With().
		Str(log.FieldSessionID, sess.ID).
		Str(log.FieldPatientID, sess.PatientID).
		Logger()

	if err := p.spool.Save(sess.ID, up.Audio); err != nil {
		logger.Warn().Err(err).Msg("audio spool failed, session cannot be resumed after restart")
	}

	audio := up.Audio
	if !p.registry.Go(sess.ID, func() { p.run(sess.ID, sess.PatientID, audio, up.Filename) }) {
		// Closed between the check and now; the spooled audio lets recovery finish it.
		logger.Warn().Msg("continuation not started, left for recovery")
	}

	submissionsTotal.WithLabelValues("accepted").Inc()
	logger.Info().Str(log.FieldEvent, "pipeline.accepted").Int64("bytes", sess.AudioSize).Msg("upload accepted")
	return sess, nil
}

// run is the detached continuation for one session.
func (p *Pipeline) run(id, patientID string, audio []byte, filename string) {
	ctx, cancel := context.WithTimeout(p.baseCtx, p.cfg.ContinuationTimeout)
	defer cancel()
	ctx = log.ContextWithSessionID(ctx, id)
	ctx, span := telemetry.Tracer("therapyflow/pipeline").Start(ctx, "pipeline.continuation")
	span.SetAttributes(telemetry.SessionAttributes(id, len(audio))...)
	defer span.End()

	logger := p.logger.With().Str(log.FieldSessionID, id).Str(log.FieldPatientID, patientID).Logger()
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			panicsTotal.Inc()
			span.SetStatus(codes.Error, "panic")
			logger.Error().
				Str(log.FieldEvent, "pipeline.panic").
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("continuation panicked, failing session")
			p.finish(ctx, id, model.FailedPatch(), safety.Assessment{}, start)
		}
	}()

	if _, err := p.updateWithRetry(ctx, id, model.StatusPatch(model.StatusTranscribing)); err != nil {
		if errors.Is(err, model.ErrTerminal) {
			logger.Info().Msg("session already terminal, nothing to do")
			_ = p.spool.Remove(id)
			return
		}
		abandonedTotal.Inc()
		span.SetStatus(codes.Error, "transcribing update failed")
		logger.Error().Err(err).Str(log.FieldEvent, "pipeline.abandoned").
			Str(log.FieldNewState, string(model.StatusTranscribing)).
			Msg("could not mark session transcribing, abandoning")
		return
	}
	logger.Debug().Str(log.FieldNewState, string(model.StatusTranscribing)).Msg("transcription started")

	text, err := p.transcriber.SubmitAndAwait(ctx, audio, filename)
	if err != nil {
		kind := string(transcription.KindOf(err))
		if kind == "" {
			kind = "unknown"
		}
		span.SetAttributes(telemetry.ErrorAttributes(kind)...)
		logger.Warn().Err(err).Str("kind", kind).Str(log.FieldEvent, "pipeline.transcription_failed").Msg("transcription failed")
		p.finish(ctx, id, model.FailedPatch(), safety.Assessment{}, start)
		return
	}

	assessment := safety.Classify(text)
	reply := safety.Reply(text, assessment)
	p.finish(ctx, id, model.ClassifiedPatch(text, reply, assessment.IsUrgent, assessment.Flags), assessment, start)
}

// finish persists the terminal patch and, on success, publishes events.
// The write uses a context detached from cancellation so shutdown can still
// record FAILED.
func (p *Pipeline) finish(ctx context.Context, id string, patch model.Patch, a safety.Assessment, start time.Time) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.FinalizeTimeout)
	defer cancel()

	logger := p.logger.With().Str(log.FieldSessionID, id).Logger()
	updated, err := p.updateWithRetry(wctx, id, patch)
	if err != nil {
		if errors.Is(err, model.ErrTerminal) {
			logger.Info().Err(err).Msg("terminal update rejected, session already finished")
			_ = p.spool.Remove(id)
			return
		}
		abandonedTotal.Inc()
		logger.Error().Err(err).
			Str(log.FieldEvent, "pipeline.abandoned").
			Str(log.FieldNewState, string(*patch.Status)).
			Msg("terminal update failed after retries, session abandoned")
		return
	}

	continuationSeconds.WithLabelValues(string(updated.Status)).Observe(p.now().Sub(start).Seconds())
	sessionsTotal.WithLabelValues(string(updated.Status), fmt.Sprint(updated.IsUrgent)).Inc()
	_ = p.spool.Remove(id)

	if updated.IsUrgent {
		p.publisher.Publish(wctx, p.cfg.Channel, notify.UrgentSession(updated, urgentMessage(updated, a)))
	}
	p.publisher.Publish(wctx, p.cfg.Channel, notify.SessionUpdated(updated))

	logger.Info().
		Str(log.FieldEvent, "pipeline.terminal").
		Str(log.FieldNewState, string(updated.Status)).
		Bool("urgent", updated.IsUrgent).
		Strs("safety_flags", updated.SafetyFlags).
		Msg("session finished")
}

func urgentMessage(s *model.Session, a safety.Assessment) string {
	flags := s.SafetyFlags
	if len(flags) == 0 {
		flags = a.Flags
	}
	return fmt.Sprintf("Urgent: patient %s may be at risk (flags: %s)", s.PatientID, strings.Join(flags, ", "))
}

// updateWithRetry retries transient store failures with linear backoff.
// Lifecycle rejections are returned immediately.
func (p *Pipeline) updateWithRetry(ctx context.Context, id string, patch model.Patch) (*model.Session, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.UpdateAttempts; attempt++ {
		updated, err := p.store.Update(ctx, id, patch)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, model.ErrTerminal) || errors.Is(err, model.ErrIllegalTransition) || errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		p.logger.Warn().Err(err).Str(log.FieldSessionID, id).Int(log.FieldAttempt, attempt).Msg("session update failed")
		if attempt == p.cfg.UpdateAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("update %s: %w (last error: %v)", id, ctx.Err(), lastErr)
		case <-time.After(time.Duration(attempt) * p.cfg.UpdateBackoff):
		}
	}
	return nil, fmt.Errorf("update %s after %d attempts: %w", id, p.cfg.UpdateAttempts, lastErr)
}

// Shutdown stops accepting uploads and waits for running continuations.
// If ctx expires first, in-flight transcriptions are canceled and given
// FinalizeTimeout to record FAILED.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	err := p.registry.CloseAndWait(ctx)
	p.cancel()
	if err != nil {
		p.logger.Warn().Err(err).Int("inflight", p.registry.Len()).Msg("drain timed out, canceling continuations")
		grace, cancel := context.WithTimeout(context.Background(), p.cfg.FinalizeTimeout)
		defer cancel()
		_ = p.registry.CloseAndWait(grace)
	}
	return err
}
