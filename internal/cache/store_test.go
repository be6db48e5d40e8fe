// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/domain/session/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachedStore_CachesOnlyTerminalSessions(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryCache(0)
	defer mem.Stop()
	st := NewCachedStore(store.NewMemoryStore(), mem, time.Minute)

	sess, err := st.Create(ctx, model.NewSession{})
	require.NoError(t, err)

	_, err = st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Zero(t, mem.Stats().Sets, "pending sessions are not cached")

	_, err = st.Update(ctx, sess.ID, model.StatusPatch(model.StatusTranscribing))
	require.NoError(t, err)
	assert.Zero(t, mem.Stats().Sets)

	_, err = st.Update(ctx, sess.ID, model.ClassifiedPatch("hi", "reply", false, nil))
	require.NoError(t, err)
	assert.Equal(t, int64(1), mem.Stats().Sets, "terminal update writes through")

	hitsBefore := testutil.ToFloat64(lookupsTotal.WithLabelValues("hit"))
	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, got.Status)
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(lookupsTotal.WithLabelValues("hit")))
}

func TestCachedStore_MissFillsFromStore(t *testing.T) {
	ctx := context.Background()
	inner := store.NewMemoryStore()
	sess, err := inner.Create(ctx, model.NewSession{})
	require.NoError(t, err)
	_, err = inner.Update(ctx, sess.ID, model.StatusPatch(model.StatusTranscribing))
	require.NoError(t, err)
	_, err = inner.Update(ctx, sess.ID, model.FailedPatch())
	require.NoError(t, err)

	mem := NewMemoryCache(0)
	defer mem.Stop()
	st := NewCachedStore(inner, mem, 0)

	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 1, mem.Stats().CurrentSize)

	_, err = st.Get(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
