// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_pipeline_submissions_total",
		Help: "Upload submissions by result",
	}, []string{"result"}) // accepted|invalid|store_error|shutting_down

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_pipeline_sessions_total",
		Help: "Sessions reaching a terminal status",
	}, []string{"status", "urgent"})

	abandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "therapyflow_pipeline_sessions_abandoned_total",
		Help: "Sessions whose terminal update could not be persisted",
	})

	panicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "therapyflow_pipeline_panics_total",
		Help: "Continuations that panicked and were recovered",
	})

	recoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_pipeline_recovered_total",
		Help: "Stale sessions handled by the recovery sweep",
	}, []string{"action"}) // resumed|failed

	inFlightGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "therapyflow_pipeline_inflight",
		Help: "Continuations currently running",
	})

	continuationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "therapyflow_pipeline_continuation_seconds",
		Help:    "Time from continuation start to terminal update",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 900},
	}, []string{"status"})
)
