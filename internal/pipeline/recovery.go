// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/safety"
)

// Recover scans for sessions stuck in PENDING or TRANSCRIBING that no
// continuation owns. Spooled sessions are resumed; the rest are driven to
// FAILED so every session eventually reaches a terminal status.
// It returns the number of sessions acted on.
func (p *Pipeline) Recover(ctx context.Context) (int, error) {
	logger := p.logger.With().Str(log.FieldComponent, "pipeline.recovery").Logger()
	start := p.now()

	candidates, err := p.store.ListByStatus(ctx, model.StatusPending, model.StatusTranscribing)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, s := range candidates {
		if !p.shouldRecover(start, s) {
			continue
		}
		if p.registry.Closing() {
			break
		}

		audio, ok, err := p.spool.Load(s.ID)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldSessionID, s.ID).Msg("spool read failed during recovery")
		}
		if ok {
			sess := s
			if p.registry.Go(sess.ID, func() { p.run(sess.ID, sess.PatientID, audio, sess.AudioFileName) }) {
				handled++
				recoveredTotal.WithLabelValues("resumed").Inc()
				logger.Info().
					Str(log.FieldSessionID, s.ID).
					Str(log.FieldOldState, string(s.Status)).
					Msg("resuming stale session from spool")
			}
			continue
		}

		if p.failStale(ctx, s) {
			handled++
			recoveredTotal.WithLabelValues("failed").Inc()
		}
	}

	logger.Info().
		Int("candidates", len(candidates)).
		Int("recovered_count", handled).
		Dur("duration", p.now().Sub(start)).
		Msg("recovery sweep complete")
	return handled, nil
}

func (p *Pipeline) shouldRecover(now time.Time, s *model.Session) bool {
	if s == nil || s.Status.IsTerminal() {
		return false
	}
	if p.registry.InFlight(s.ID) {
		return false
	}
	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = s.CreatedAt
	}
	return now.Sub(ts) >= p.cfg.StaleAfter
}

// failStale walks an orphaned session forward to FAILED without skipping
// a status, and publishes the update.
func (p *Pipeline) failStale(ctx context.Context, s *model.Session) bool {
	logger := p.logger.With().Str(log.FieldSessionID, s.ID).Str(log.FieldOldState, string(s.Status)).Logger()
	if s.Status == model.StatusPending {
		if _, err := p.updateWithRetry(ctx, s.ID, model.StatusPatch(model.StatusTranscribing)); err != nil {
			logger.Warn().Err(err).Msg("recovery could not advance stale session")
			return false
		}
	}
	logger.Info().Msg("no spooled audio for stale session, failing it")
	p.finish(ctx, s.ID, model.FailedPatch(), safety.Assessment{}, s.CreatedAt)
	return true
}
