// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRelayPrefix = "therapyflow:notify:"
	relayOutboxSize    = 256
	relayPublishWait   = 2 * time.Second
	relayRetryMin      = 500 * time.Millisecond
	relayRetryMax      = 30 * time.Second
)

// RedisRelay mirrors hub traffic across instances through Redis pub/sub.
// Local delivery never depends on it: the relay is installed as the hub's
// forwarder only while subscribed, and queued events are dropped when the
// outbox is full.
type RedisRelay struct {
	client   redis.UniversalClient
	hub      *Hub
	prefix   string
	origin   string
	channels []string
	outbox   chan envelope
	ready    chan struct{}
	once     sync.Once
	logger   zerolog.Logger

	retryMin time.Duration
	retryMax time.Duration
}

type envelope struct {
	Origin  string `json:"origin"`
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
}

// NewRedisRelay wires a relay to hub for the given channels. It becomes the
// hub's forwarder once Run has subscribed.
func NewRedisRelay(client redis.UniversalClient, hub *Hub, prefix string, channels ...string) *RedisRelay {
	if prefix == "" {
		prefix = defaultRelayPrefix
	}
	if len(channels) == 0 {
		channels = []string{ChannelTherapists}
	}
	r := &RedisRelay{
		client:   client,
		hub:      hub,
		prefix:   prefix,
		origin:   uuid.NewString(),
		channels: channels,
		outbox:   make(chan envelope, relayOutboxSize),
		ready:    make(chan struct{}),
		logger:   log.WithComponent("notify.relay"),
		retryMin: relayRetryMin,
		retryMax: relayRetryMax,
	}
	return r
}

// Origin identifies this instance in relayed envelopes.
func (r *RedisRelay) Origin() string { return r.origin }

// Ready is closed once the first Redis subscription is confirmed.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

// Forward queues ev for publication. Implements Forwarder.
func (r *RedisRelay) Forward(_ context.Context, channel string, ev Event) {
	select {
	case r.outbox <- envelope{Origin: r.origin, Channel: channel, Event: ev}:
	default:
		relayTotal.WithLabelValues("out", "dropped").Inc()
		r.logger.Warn().Str(log.FieldChannel, channel).Str(log.FieldSessionID, ev.SessionID).Msg("relay outbox full, event not relayed")
	}
}

// Run subscribes and pumps both directions until ctx is done. Failed or
// lost subscriptions are retried with capped exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	topics := make([]string, len(r.channels))
	for i, ch := range r.channels {
		topics[i] = r.prefix + ch
	}

	delay := r.retryMin
	for {
		subscribed, err := r.session(ctx, topics)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = r.retryMin
		}
		relayTotal.WithLabelValues("in", "resubscribe").Inc()
		r.logger.Warn().Err(err).Dur("retry_in", delay).Msg("notification relay disconnected, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		delay *= 2
		if delay > r.retryMax {
			delay = r.retryMax
		}
	}
}

// session runs one subscription. The relay forwards hub traffic only while
// it is subscribed.
func (r *RedisRelay) session(ctx context.Context, topics []string) (bool, error) {
	pubsub := r.client.Subscribe(ctx, topics...)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("relay subscribe: %w", err)
	}

	r.hub.SetForwarder(r)
	defer r.hub.SetForwarder(nil)
	r.once.Do(func() { close(r.ready) })
	r.logger.Info().Strs("topics", topics).Str("origin", r.origin).Msg("notification relay subscribed")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.publishLoop(gctx)
		return nil
	})
	g.Go(func() error {
		return r.receiveLoop(gctx, pubsub.Channel())
	})
	return true, g.Wait()
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-r.outbox:
			r.publish(ctx, env)
		}
	}
}

func (r *RedisRelay) publish(ctx context.Context, env envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		relayTotal.WithLabelValues("out", "encode_error").Inc()
		return
	}
	pctx, cancel := context.WithTimeout(ctx, relayPublishWait)
	defer cancel()
	if err := r.client.Publish(pctx, r.prefix+env.Channel, payload).Err(); err != nil {
		relayTotal.WithLabelValues("out", "error").Inc()
		r.logger.Warn().Err(err).Str(log.FieldChannel, env.Channel).Msg("relay publish failed")
		return
	}
	relayTotal.WithLabelValues("out", "ok").Inc()
}

func (r *RedisRelay) receiveLoop(ctx context.Context, msgs <-chan *redis.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("relay subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				relayTotal.WithLabelValues("in", "decode_error").Inc()
				r.logger.Warn().Err(err).Str("topic", msg.Channel).Msg("relay payload rejected")
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			relayTotal.WithLabelValues("in", "ok").Inc()
			r.hub.DeliverLocal(env.Channel, env.Event)
		}
	}
}

// Ping reports whether Redis is reachable.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
