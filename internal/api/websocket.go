// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/ManuGH/therapyflow/internal/domain/session/model"
	"github.com/ManuGH/therapyflow/internal/log"
	"github.com/ManuGH/therapyflow/internal/notify"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client actions.
const (
	ActionJoinTherapist = "join-therapist"
	ActionJoin          = "join"
)

const (
	eventJoined = "joined"
	eventError  = "error"

	wsReadLimit = 4096
)

var validChannel = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// wsEnvelope is every server-to-client frame.
type wsEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type urgentPayload struct {
	PatientID string `json:"patientId"`
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type updatedPayload struct {
	SessionID string         `json:"sessionId"`
	Session   *model.Session `json:"session"`
}

type wsClientMessage struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
}

// wsCommand is a parsed client request handed from the reader to the writer,
// which is the only goroutine that writes to the connection.
type wsCommand struct {
	channel string
	err     string
}

func envelopeFor(ev notify.Event) wsEnvelope {
	switch ev.Kind {
	case notify.KindUrgentSession:
		return wsEnvelope{Event: string(ev.Kind), Data: urgentPayload{
			PatientID: ev.PatientID,
			SessionID: ev.SessionID,
			Message:   ev.Message,
		}}
	default:
		return wsEnvelope{Event: string(ev.Kind), Data: updatedPayload{
			SessionID: ev.SessionID,
			Session:   ev.Session,
		}}
	}
}

// wsRegistry tracks live websocket connections so shutdown can close them;
// http.Server.Shutdown does not wait for hijacked connections.
type wsRegistry struct {
	mu      sync.Mutex
	closed  bool
	closing chan struct{}
	wg      sync.WaitGroup
}

func newWSRegistry() *wsRegistry {
	return &wsRegistry{closing: make(chan struct{})}
}

// enter registers a connection unless shutdown has begun.
func (r *wsRegistry) enter() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *wsRegistry) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.closing)
	}
}

// CloseWebsockets tells every connected client the server is going away and
// waits for their loops to finish or ctx to expire.
func (s *Server) CloseWebsockets(ctx context.Context) error {
	s.ws.close()
	done := make(chan struct{})
	go func() {
		s.ws.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("websocket drain: %w", ctx.Err())
	}
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if !s.ws.enter() {
		writeError(w, r, http.StatusServiceUnavailable, msgShuttingDown)
		return
	}
	defer s.ws.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug().Err(err).Msg("websocket upgrade rejected")
		return
	}

	c := &wsClient{
		server:   s,
		conn:     conn,
		commands: make(chan wsCommand, 4),
		done:     make(chan struct{}),
		logger: log.WithComponentFromContext(r.Context(), "api.ws").With().
			Str(log.FieldSubscriberID, uuid.NewString()).Logger(),
	}
	c.serve(r.URL.Query().Get("channel"))
}

type wsClient struct {
	server   *Server
	conn     *websocket.Conn
	commands chan wsCommand
	done     chan struct{}
	logger   zerolog.Logger
}

func (c *wsClient) pongWait() time.Duration {
	return 2 * c.server.cfg.WSPingInterval
}

func (c *wsClient) serve(initialChannel string) {
	readerDone := make(chan struct{})
	go c.readLoop(readerDone)
	defer func() {
		close(c.done)
		_ = c.conn.Close()
		<-readerDone
	}()

	var sub *notify.Subscription
	defer func() {
		if sub != nil {
			sub.Close()
		}
	}()

	join := func(channel string) bool {
		if sub == nil || sub.Channel() != channel {
			if sub != nil {
				sub.Close()
			}
			sub = c.server.deps.Hub.Subscribe(channel)
			c.logger.Info().Str(log.FieldChannel, channel).Msg("dashboard joined channel")
		}
		return c.write(wsEnvelope{Event: eventJoined, Data: map[string]string{"channel": channel}})
	}

	if initialChannel != "" {
		if !validChannel.MatchString(initialChannel) {
			_ = c.write(wsEnvelope{Event: eventError, Data: map[string]string{"message": "invalid channel"}})
			return
		}
		if !join(initialChannel) {
			return
		}
	}

	ticker := time.NewTicker(c.server.cfg.WSPingInterval)
	defer ticker.Stop()

	for {
		var events <-chan notify.Event
		if sub != nil {
			events = sub.C()
		}

		select {
		case <-readerDone:
			return

		case <-c.server.ws.closing:
			c.writeClose(websocket.CloseGoingAway, "server shutting down")
			return

		case cmd := <-c.commands:
			if cmd.err != "" {
				if !c.write(wsEnvelope{Event: eventError, Data: map[string]string{"message": cmd.err}}) {
					return
				}
				continue
			}
			if !join(cmd.channel) {
				return
			}

		case ev, ok := <-events:
			if !ok {
				c.writeClose(websocket.CloseGoingAway, "notifications closed")
				return
			}
			if !c.write(envelopeFor(ev)) {
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.server.cfg.WSWriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed, dropping connection")
				return
			}
		}
	}
}

func (c *wsClient) write(v wsEnvelope) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.cfg.WSWriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Debug().Err(err).Msg("websocket write failed")
		return false
	}
	return true
}

func (c *wsClient) writeClose(code int, reason string) {
	deadline := time.Now().Add(c.server.cfg.WSWriteTimeout)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// readLoop parses client messages and keeps the read deadline alive on pongs.
func (c *wsClient) readLoop(done chan<- struct{}) {
	defer close(done)

	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))

		cmd := parseCommand(data, c.server.cfg.DefaultChannel)
		select {
		case c.commands <- cmd:
		case <-c.done:
			return
		}
	}
}

func parseCommand(data []byte, defaultChannel string) wsCommand {
	var msg wsClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return wsCommand{err: "invalid message"}
	}
	switch msg.Action {
	case ActionJoinTherapist:
		return wsCommand{channel: defaultChannel}
	case ActionJoin:
		ch := msg.Channel
		if ch == "" {
			ch = defaultChannel
		}
		if !validChannel.MatchString(ch) {
			return wsCommand{err: "invalid channel"}
		}
		return wsCommand{channel: ch}
	default:
		return wsCommand{err: fmt.Sprintf("unknown action %q", msg.Action)}
	}
}
