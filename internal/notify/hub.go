// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package notify fans session events out to connected dashboards.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/google/uuid"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 64

const dropLogEvery = 100

// Forwarder receives every locally published event, e.g. to fan it out to
// other replicas. Forward must not block.
type Forwarder interface {
	Forward(ctx context.Context, channel string, ev Event)
}

// Hub is an in-process pub/sub registry keyed by channel.
//
// Publish sends under the read lock with a non-blocking select, and
// Unsubscribe closes a subscriber channel under the write lock, so a send can
// never hit a closed channel. A slow subscriber is evicted on its first
// dropped event and never holds up the others.
type Hub struct {
	mu         sync.RWMutex
	subs       map[string]map[*Subscription]struct{}
	bufferSize int
	forwarder  Forwarder
	dropped    atomic.Uint64
}

// NewHub creates a hub. bufferSize <= 0 uses DefaultBufferSize.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
	}
}

// SetForwarder installs (or clears with nil) the cross-instance forwarder.
func (h *Hub) SetForwarder(f Forwarder) {
	h.mu.Lock()
	h.forwarder = f
	h.mu.Unlock()
}

// Subscription is one subscriber's view of a channel.
type Subscription struct {
	id      string
	channel string
	ch      chan Event
	hub     *Hub
	closed  bool // guarded by hub.mu
}

func (s *Subscription) ID() string { return s.id }
func (s *Subscription) Channel() string { return s.channel }
func (s *Subscription) C() <-chan Event { return s.ch }
func (s *Subscription) Close() { s.hub.Unsubscribe(s) }

// Subscribe registers a new subscriber on channel.
func (h *Hub) Subscribe(channel string) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		channel: channel,
		ch:      make(chan Event, h.bufferSize),
		hub:     h,
	}

	h.mu.Lock()
	set, ok := h.subs[channel]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[channel] = set
	}
	set[sub] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	subscribersGauge.WithLabelValues(channel).Set(float64(n))
	log.L().Debug().Str(log.FieldChannel, channel).Str(log.FieldSubscriberID, sub.id).Msg("subscriber joined")
	return sub
}

// Unsubscribe removes sub and closes its channel. Safe to call repeatedly.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	if sub.closed {
		h.mu.Unlock()
		return
	}
	sub.closed = true
	set := h.subs[sub.channel]
	delete(set, sub)
	n := len(set)
	if n == 0 {
		delete(h.subs, sub.channel)
	}
	close(sub.ch)
	h.mu.Unlock()

	subscribersGauge.WithLabelValues(sub.channel).Set(float64(n))
	log.L().Debug().Str(log.FieldChannel, sub.channel).Str(log.FieldSubscriberID, sub.id).Msg("subscriber left")
}

// Publish delivers ev to local subscribers of channel and hands it to the
// forwarder. It never blocks and returns the number of local deliveries.
func (h *Hub) Publish(ctx context.Context, channel string, ev Event) int {
	n := h.DeliverLocal(channel, ev)

	h.mu.RLock()
	fwd := h.forwarder
	h.mu.RUnlock()
	if fwd != nil {
		fwd.Forward(ctx, channel, ev)
	}
	return n
}

// DeliverLocal delivers ev to this process's subscribers only. A subscriber
// whose buffer is full misses ev and is evicted: its channel closes so the
// consumer can reconnect and resync instead of silently running behind.
func (h *Hub) DeliverLocal(channel string, ev Event) int {
	delivered := 0
	var slow []*Subscription
	h.mu.RLock()
	for sub := range h.subs[channel] {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.recordDrop(channel, sub, ev)
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		h.Unsubscribe(sub)
	}

	if delivered > 0 {
		deliveredTotal.WithLabelValues(channel, string(ev.Kind)).Add(float64(delivered))
	}
	return delivered
}

func (h *Hub) recordDrop(channel string, sub *Subscription, ev Event) {
	droppedTotal.WithLabelValues(channel, string(ev.Kind)).Inc()
	count := h.dropped.Add(1)
	if count == 1 || count%dropLogEvery == 0 {
		log.L().Warn().
			Str(log.FieldChannel, channel).
			Str(log.FieldSubscriberID, sub.id).
			Str(log.FieldEvent, string(ev.Kind)).
			Uint64("dropped", count).
			Msg("subscriber buffer full, event dropped and subscriber evicted")
	}
}

// Subscribers returns the number of subscribers on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Close unsubscribes everyone.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Subscription
	for _, set := range h.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range all {
		h.Unsubscribe(sub)
	}
}
