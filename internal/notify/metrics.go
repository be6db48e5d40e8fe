// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_notify_delivered_total",
		Help: "Events handed to local subscribers",
	}, []string{"channel", "kind"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_notify_dropped_total",
		Help: "Events dropped because a subscriber buffer was full",
	}, []string{"channel", "kind"})

	subscribersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "therapyflow_notify_subscribers",
		Help: "Current subscribers per channel",
	}, []string{"channel"})

	relayTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_notify_relay_total",
		Help: "Redis relay operations by direction and result",
	}, []string{"direction", "result"})
)
