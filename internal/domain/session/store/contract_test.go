// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type openFunc func(t *testing.T, opts ...Option) Store

type stepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%03d", prefix, n)
	}
}

// runStoreContract exercises the behavior every backend must share.
func runStoreContract(t *testing.T, open openFunc) {
	ctx := context.Background()

	t.Run("CreateDefaults", func(t *testing.T) {
		s := open(t)
		rec, err := s.Create(ctx, model.NewSession{AudioSize: 1234, AudioFileName: "clip.webm"})
		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Regexp(t, `^patient_\d+$`, rec.PatientID)
		assert.Equal(t, model.StatusPending, rec.Status)
		assert.Equal(t, model.PlaceholderTranscript, rec.Transcript)
		assert.Equal(t, model.PlaceholderBotResponse, rec.BotResponse)
		assert.NotNil(t, rec.SafetyFlags)
		assert.Empty(t, rec.SafetyFlags)
		assert.False(t, rec.IsUrgent)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(rec, got))
	})

	t.Run("SuppliedPatientID", func(t *testing.T) {
		s := open(t)
		rec, err := s.Create(ctx, model.NewSession{PatientID: "patient_42", AudioSize: 1})
		require.NoError(t, err)
		assert.Equal(t, "patient_42", rec.PatientID)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.Update(ctx, "missing", model.StatusPatch(model.StatusTranscribing))
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("LifecycleAndTerminalImmutability", func(t *testing.T) {
		s := open(t)
		rec, err := s.Create(ctx, model.NewSession{AudioSize: 10})
		require.NoError(t, err)

		_, err = s.Update(ctx, rec.ID, model.FailedPatch())
		require.ErrorIs(t, err, model.ErrIllegalTransition)

		_, err = s.Update(ctx, rec.ID, model.StatusPatch(model.StatusTranscribing))
		require.NoError(t, err)

		done, err := s.Update(ctx, rec.ID, model.ClassifiedPatch("I feel hopeless", "reply", true, []string{"hopeless"}))
		require.NoError(t, err)
		assert.Equal(t, model.StatusClassified, done.Status)
		assert.Equal(t, []string{"hopeless"}, done.SafetyFlags)
		assert.True(t, done.IsUrgent)

		again, err := s.Update(ctx, rec.ID, model.ClassifiedPatch("other", "other", false, nil))
		require.NoError(t, err, "same terminal status is a no-op")
		assert.Equal(t, "I feel hopeless", again.Transcript)

		_, err = s.Update(ctx, rec.ID, model.FailedPatch())
		require.ErrorIs(t, err, model.ErrTerminal)

		got, err := s.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(done, got))
	})

	t.Run("ListRecentNewestFirst", func(t *testing.T) {
		s := open(t, WithClock(newStepClock(time.Second).Now))
		var ids []string
		for i := 0; i < 3; i++ {
			rec, err := s.Create(ctx, model.NewSession{AudioSize: int64(i + 1)})
			require.NoError(t, err)
			ids = append(ids, rec.ID)
		}

		list, err := s.ListRecent(ctx, 0)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{ids[2], ids[1], ids[0]}, sessionIDs(list))

		limited, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{ids[2], ids[1]}, sessionIDs(limited))

		second, err := s.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, cmp.Diff(list, second), "listing without writes is stable")
	})

	t.Run("ListRecentTieBreaksOnID", func(t *testing.T) {
		fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		s := open(t, WithClock(func() time.Time { return fixed }), WithIDGenerator(sequentialIDs("tie")))
		for i := 0; i < 3; i++ {
			_, err := s.Create(ctx, model.NewSession{AudioSize: 1})
			require.NoError(t, err)
		}
		list, err := s.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []string{"tie-003", "tie-002", "tie-001"}, sessionIDs(list))
	})

	t.Run("ListByStatus", func(t *testing.T) {
		s := open(t, WithClock(newStepClock(time.Millisecond).Now))
		pending, err := s.Create(ctx, model.NewSession{AudioSize: 1})
		require.NoError(t, err)
		inflight, err := s.Create(ctx, model.NewSession{AudioSize: 1})
		require.NoError(t, err)
		_, err = s.Update(ctx, inflight.ID, model.StatusPatch(model.StatusTranscribing))
		require.NoError(t, err)
		failed, err := s.Create(ctx, model.NewSession{AudioSize: 1})
		require.NoError(t, err)
		_, err = s.Update(ctx, failed.ID, model.StatusPatch(model.StatusTranscribing))
		require.NoError(t, err)
		_, err = s.Update(ctx, failed.ID, model.FailedPatch())
		require.NoError(t, err)

		active, err := s.ListByStatus(ctx, model.StatusPending, model.StatusTranscribing)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{pending.ID, inflight.ID}, sessionIDs(active))

		terminal, err := s.ListByStatus(ctx, model.StatusFailed)
		require.NoError(t, err)
		assert.Equal(t, []string{failed.ID}, sessionIDs(terminal))

		none, err := s.ListByStatus(ctx)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("UpdateAdvancesUpdatedAt", func(t *testing.T) {
		s := open(t, WithClock(newStepClock(time.Second).Now))
		rec, err := s.Create(ctx, model.NewSession{AudioSize: 1})
		require.NoError(t, err)
		next, err := s.Update(ctx, rec.ID, model.StatusPatch(model.StatusTranscribing))
		require.NoError(t, err)
		assert.True(t, next.UpdatedAt.After(rec.UpdatedAt))
		assert.True(t, next.CreatedAt.Equal(rec.CreatedAt))
	})

	t.Run("Ping", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Ping(ctx))
	})
}

func sessionIDs(list []*model.Session) []string {
	ids := make([]string, 0, len(list))
	for _, s := range list {
		ids = append(ids, s.ID)
	}
	return ids
}
