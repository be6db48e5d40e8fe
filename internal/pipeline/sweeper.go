// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"time"

	"github.com/ManuGH/therapyflow/internal/log"
)

// Sweeper periodically runs the recovery scan.
type Sweeper struct {
	Pipeline *Pipeline
	Interval time.Duration
}

// Run ticks until ctx is done. A non-positive interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	log.L().Info().Dur("interval", s.Interval).Msg("background sweeper started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one recovery pass.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	if _, err := s.Pipeline.Recover(ctx); err != nil {
		log.L().Warn().Err(err).Msg("recovery sweep failed")
	}
}
