// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "therapyflow_circuit_breaker_state",
		Help: "Circuit breaker state per component (1 for the active state label).",
	}, []string{"component", "state"})

	breakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "therapyflow_circuit_breaker_trips_total",
		Help: "Total circuit breaker trips by component and reason.",
	}, []string{"component", "reason"})
)

func setBreakerState(component string, state State) {
	for _, s := range []State{StateClosed, StateOpen, StateHalfOpen} {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(component, string(s)).Set(v)
	}
}
