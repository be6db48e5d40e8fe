// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayNode struct {
	hub   *Hub
	relay *RedisRelay
	done  chan error
}

func startRelayNode(t *testing.T, ctx context.Context, addr string) *relayNode {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(8)
	relay := NewRedisRelay(client, hub, "test:", ChannelTherapists)
	node := &relayNode{hub: hub, relay: relay, done: make(chan error, 1)}
	go func() { node.done <- relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case err := <-node.done:
		t.Fatalf("relay exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
	return node
}

func TestRedisRelay_DeliversAcrossInstancesWithoutEcho(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())

	a := startRelayNode(t, ctx, mr.Addr())
	b := startRelayNode(t, ctx, mr.Addr())
	require.NotEqual(t, a.relay.Origin(), b.relay.Origin())

	subA := a.hub.Subscribe(ChannelTherapists)
	subB := b.hub.Subscribe(ChannelTherapists)

	a.hub.Publish(ctx, ChannelTherapists, UrgentSession(testSession("s-42"), "crisis text"))

	select {
	case ev := <-subB.C():
		assert.Equal(t, KindUrgentSession, ev.Kind)
		assert.Equal(t, "s-42", ev.SessionID)
		assert.Equal(t, "crisis text", ev.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("remote instance did not receive relayed event")
	}

	select {
	case ev := <-subA.C():
		assert.Equal(t, "s-42", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("local subscriber missed event")
	}
	// own-origin echo must be skipped
	select {
	case ev := <-subA.C():
		t.Fatalf("echoed event delivered twice: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()
	for _, n := range []*relayNode{a, b} {
		select {
		case err := <-n.done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not stop")
		}
	}
}

func TestRedisRelay_LocalDeliverySurvivesRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := startRelayNode(t, ctx, mr.Addr())
	sub := node.hub.Subscribe(ChannelTherapists)
	mr.Close()

	n := node.hub.Publish(ctx, ChannelTherapists, SessionUpdated(testSession("s1")))
	assert.Equal(t, 1, n)
	ev := <-sub.C()
	assert.Equal(t, "s1", ev.SessionID)
}

func TestRedisRelay_IgnoresGarbagePayload(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node := startRelayNode(t, ctx, mr.Addr())
	sub := node.hub.Subscribe(ChannelTherapists)

	mr.Publish("test:"+ChannelTherapists, "not-json")
	select {
	case ev := <-sub.C():
		t.Fatalf("garbage produced event: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func forwarderOf(h *Hub) Forwarder {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.forwarder
}

func TestRedisRelay_ResubscribesAfterStartingWithRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	hub := NewHub(8)
	relay := NewRedisRelay(client, hub, "test:", ChannelTherapists)
	relay.retryMin = 10 * time.Millisecond
	relay.retryMax = 50 * time.Millisecond
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	// While unsubscribed nothing is queued for Redis.
	for i := 0; i < relayOutboxSize+10; i++ {
		hub.Publish(ctx, ChannelTherapists, SessionUpdated(testSession("early")))
	}
	assert.Nil(t, forwarderOf(hub))
	assert.Empty(t, relay.outbox)

	require.NoError(t, mr.Restart())
	select {
	case <-relay.Ready():
	case err := <-done:
		t.Fatalf("relay gave up: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("relay never resubscribed")
	}
	assert.NotNil(t, forwarderOf(hub))

	remote := startRelayNode(t, ctx, addr)
	remoteSub := remote.hub.Subscribe(ChannelTherapists)
	hub.Publish(ctx, ChannelTherapists, UrgentSession(testSession("late"), "help"))
	select {
	case ev := <-remoteSub.C():
		assert.Equal(t, "late", ev.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed after recovery")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
	assert.Nil(t, forwarderOf(hub), "forwarder cleared once the relay stops")
}
