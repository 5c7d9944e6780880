// Package transport adapts a raw WebSocket connection to room.Connection,
// and dispatches inbound client tags to the registry and room packages.
// Unlike the teacher's proto-over-binary-frame wire format, Trivion speaks
// JSON: {"tag": "...", "payload": {...}}, matching the same shape the room
// package's bus already emits on the way out.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/trivionhq/trivion/internal/v1/room"
)

const (
	writeWait      = 10 * time.Second
	heartbeatEvery = 15 * time.Second
	pongGrace      = 30 * time.Second
	sendBuffer     = 256
)

// wsConnection is the subset of *websocket.Conn a Client needs. The
// interface exists so tests can drive readPump/writePump against a fake
// connection without a real network socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// inboundFrame is the wire shape of every client-to-server message.
type inboundFrame struct {
	Tag     room.ClientTag  `json:"tag"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundFrame mirrors bus.Frame's shape; transport marshals it directly
// rather than importing bus, to keep the two packages decoupled.
type outboundFrame struct {
	Tag     room.Event `json:"tag"`
	Payload any        `json:"payload,omitempty"`
}

// dispatcher handles one decoded inbound frame for a client. Implemented by
// *Handler; the indirection keeps Client free of registry/auth/ratelimit
// imports so it can be unit tested on its own.
type dispatcher interface {
	dispatch(ctx context.Context, c *Client, frame inboundFrame)
	onDisconnect(c *Client)
}

// Client binds one WebSocket connection to (at most) one room membership.
// It satisfies room.Connection so the room package can push events to it
// without knowing anything about WebSockets.
type Client struct {
	conn wsConnection
	send chan outboundFrame
	hub  dispatcher
	log  *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	room     *room.Room
	memberID room.MemberID
}

// newClient wraps conn for use by hub, which must later bind it to a room
// via bind once a join/reconnect succeeds.
func newClient(conn wsConnection, hub dispatcher, log *slog.Logger) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan outboundFrame, sendBuffer),
		hub:    hub,
		log:    log,
		closed: make(chan struct{}),
	}
}

// bind associates the client with a room and member id once Join or
// Reconnect has succeeded. Safe for concurrent use with Send/Close.
func (c *Client) bind(r *room.Room, id room.MemberID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = r
	c.memberID = id
}

// boundRoom reports the room and member id the client is currently bound
// to, if any.
func (c *Client) boundRoom() (*room.Room, room.MemberID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room == nil {
		return nil, "", false
	}
	return c.room, c.memberID, true
}

// Send implements room.Connection. It never blocks: if the client's queue
// is full, the frame is dropped and false is returned, which the bus
// interprets as an overflow and treats as a disconnect.
func (c *Client) Send(event room.Event, payload any) bool {
	select {
	case c.send <- outboundFrame{Tag: event, Payload: payload}:
		return true
	default:
		return false
	}
}

// Close implements room.Connection, idempotently tearing down the
// connection and unblocking both pumps.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

// readPump reads frames from the socket until the connection closes,
// dispatching each to the hub. It owns the read deadline and pong handler,
// which together implement the application-level heartbeat: a pong control
// frame or a pong_heartbeat frame within pongGrace keeps the deadline rolling
// forward; other traffic does not.
func (c *Client) readPump() {
	defer func() {
		c.hub.onDisconnect(c)
		c.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongGrace))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongGrace))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.Send(room.EventError, errorPayload{Kind: "malformed_payload", Message: "could not parse frame"})
			continue
		}

		if frame.Tag == room.TagPongHeartbeat {
			c.conn.SetReadDeadline(time.Now().Add(pongGrace))
			continue
		}

		c.hub.dispatch(context.Background(), c, frame)
	}
}

// writePump drains the send channel to the socket and emits the periodic
// application-level heartbeat. It exits, closing the connection, when the
// send channel is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(heartbeatEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				c.log.Error("failed to marshal outbound frame", "tag", frame.Tag, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, mustMarshalHeartbeat()); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func mustMarshalHeartbeat() []byte {
	data, _ := json.Marshal(outboundFrame{Tag: room.EventPingHeartbeat})
	return data
}
