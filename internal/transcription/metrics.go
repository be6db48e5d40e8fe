// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package transcription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_transcription_requests_total",
		Help: "Provider HTTP requests by operation and outcome",
	}, []string{"op", "outcome"})

	pollsPerJob = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "therapyflow_transcription_polls_per_job",
		Help:    "Status polls issued per transcription job",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50, 100, 200},
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "therapyflow_transcription_job_duration_seconds",
		Help:    "Wall time from upload to terminal job state",
		Buckets: []float64{1, 3, 5, 10, 20, 30, 60, 120, 300, 600},
	}, []string{"outcome"})
)

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
