package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/trivionhq/trivion/internal/v1/ratelimit"
	"github.com/trivionhq/trivion/internal/v1/registry"
	"github.com/trivionhq/trivion/internal/v1/room"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

// Handler is the WebSocket entry point: it owns the room registry, the
// reconnection token validator and the rate limiter, and routes every
// decoded inbound frame to the room or registry operation it names.
type Handler struct {
	registry  *registry.Registry
	validator *auth.Validator
	limiter   *ratelimit.RateLimiter
	upgrader  websocket.Upgrader
	log       *slog.Logger
}

// NewHandler builds a Handler. allowedOrigins is a comma-separated list as
// read from config.Config.AllowedOrigins; an empty string falls back to
// localhost for local development, matching the teacher's own default.
func NewHandler(reg *registry.Registry, validator *auth.Validator, limiter *ratelimit.RateLimiter, allowedOrigins string, log *slog.Logger) *Handler {
	origins := parseAllowedOrigins(allowedOrigins)
	return &Handler{
		registry:  reg,
		validator: validator,
		limiter:   limiter,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originURL, err := url.Parse(origin)
				if err != nil {
					return false
				}
				for _, allowed := range origins {
					allowedURL, err := url.Parse(allowed)
					if err != nil {
						continue
					}
					if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
						return true
					}
				}
				return false
			},
			WriteBufferPool: &sync.Pool{
				New: func() any { return make([]byte, 4096) },
			},
		},
	}
}

func parseAllowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ServeWs upgrades the request and starts the client's read and write
// pumps. Joining or reconnecting to a room happens later, driven by the
// first create_room/join_room/reconnect frame the client sends;
// the socket itself carries no room association until then.
func (h *Handler) ServeWs(c *gin.Context) {
	if !h.limiter.CheckWebSocket(c) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connection attempts"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(conn, h, h.log)
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// dispatch routes one decoded frame to the registry or room operation its
// tag names. It is called from the client's readPump goroutine, so a
// single client never has two frames in flight concurrently; concurrency
// across different clients of the same room is handled by the room's own
// mutex.
func (h *Handler) dispatch(ctx context.Context, c *Client, frame inboundFrame) {
	start := time.Now()
	status := "ok"
	defer func() {
		metrics.WebsocketEvents.WithLabelValues(string(frame.Tag), status).Inc()
		metrics.MessageProcessingDuration.WithLabelValues(string(frame.Tag)).Observe(time.Since(start).Seconds())
	}()

	if err := h.route(ctx, c, frame); err != nil {
		status = "error"
		h.sendError(c, err)
	}
}

func (h *Handler) route(ctx context.Context, c *Client, frame inboundFrame) error {
	r, memberID, bound := c.boundRoom()

	switch frame.Tag {
	case room.TagListRooms:
		return h.handleListRooms(c)
	case room.TagCreateRoom:
		return h.handleCreateRoom(c, frame.Payload)
	case room.TagJoinRoom:
		return h.handleJoinRoom(c, frame.Payload)
	case room.TagReconnect:
		return h.handleReconnect(c, frame.Payload)
	}

	if !bound {
		return trivionerr.New(trivionerr.KindNotConnected, "join or reconnect to a room first")
	}

	switch frame.Tag {
	case room.TagLeaveRoom:
		r.Leave(memberID)
		c.bind(nil, "")
		return nil
	case room.TagGetState:
		return r.SendStateTo(memberID)
	case room.TagAnswer:
		return h.handleAnswer(ctx, r, memberID, frame.Payload)
	case room.TagStart:
		return r.Start(memberID)
	case room.TagNext:
		return r.Next(memberID)
	case room.TagEnd:
		return r.End(memberID)
	case room.TagBackToLobby:
		return r.BackToLobby(memberID)
	case room.TagRemoveMember:
		return h.handleRemoveMember(r, memberID, frame.Payload)
	default:
		return trivionerr.New(trivionerr.KindUnknownTag, "unrecognized tag")
	}
}

func (h *Handler) sendError(c *Client, err error) {
	kind, ok := trivionerr.KindOf(err)
	if !ok {
		kind = trivionerr.KindMalformedPayload
	}
	c.Send(room.EventError, errorPayload{Kind: string(kind), Message: err.Error()})
}

type availableRoomsPayload struct {
	Rooms []room.Summary `json:"rooms"`
}

func (h *Handler) handleListRooms(c *Client) error {
	c.Send(room.EventAvailableRooms, availableRoomsPayload{Rooms: h.registry.ListPublic()})
	return nil
}

type createRoomRequest struct {
	Name     string `json:"name"`
	Public   bool   `json:"public"`
	Password string `json:"password,omitempty"`
}

type roomCreatedPayload struct {
	Code room.Code `json:"code"`
}

func (h *Handler) handleCreateRoom(c *Client, payload json.RawMessage) error {
	var req createRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return trivionerr.New(trivionerr.KindMalformedPayload, "invalid create_room payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return trivionerr.New(trivionerr.KindNameInvalid, "room name must not be empty")
	}

	r, err := h.registry.Create(req.Name, req.Public, req.Password)
	if err != nil {
		return err
	}

	c.Send(room.EventRoomCreated, roomCreatedPayload{Code: r.Code})
	return h.joinRoom(c, r, req.Name, room.RoleAdministrator)
}

type joinRoomRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
	AsAdmin  bool   `json:"as_admin,omitempty"`
}

func (h *Handler) handleJoinRoom(c *Client, payload json.RawMessage) error {
	var req joinRoomRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return trivionerr.New(trivionerr.KindMalformedPayload, "invalid join_room payload")
	}
	if strings.TrimSpace(req.Name) == "" {
		return trivionerr.New(trivionerr.KindNameInvalid, "display name must not be empty")
	}

	r, ok := h.registry.Find(room.Code(strings.ToUpper(req.Code)))
	if !ok {
		return trivionerr.New(trivionerr.KindRoomNotFound, "no room with that code")
	}
	if !r.CheckPassword(req.Password) {
		return trivionerr.New(trivionerr.KindBadPassword, "incorrect password")
	}

	// as_admin only ever grants the role; room.addMemberLocked still
	// rejects a second administrator via KindAdminExists.
	role := room.RolePlayer
	if req.AsAdmin {
		role = room.RoleAdministrator
	}
	return h.joinRoom(c, r, req.Name, role)
}

// welcomeMemberPayload is a member's client-visible projection plus the
// opaque reconnection token, which the room package knows nothing about:
// only transport mints and validates these tokens.
type welcomeMemberPayload struct {
	room.MemberView
	Token string `json:"token"`
}

type welcomeRoomPayload struct {
	Code room.Code `json:"code"`
	Name string    `json:"name"`
}

type welcomePayload struct {
	Member welcomeMemberPayload `json:"member"`
	Room   welcomeRoomPayload   `json:"room"`
	State  room.State           `json:"state"`
}

func (h *Handler) joinRoom(c *Client, r *room.Room, name string, role room.RoleType) error {
	id, err := r.Join(name, role, c)
	if err != nil {
		return err
	}

	token, err := h.validator.Issue(string(id), string(r.Code))
	if err != nil {
		return err
	}

	view, _ := r.MemberView(id)
	c.bind(r, id)
	c.Send(room.EventWelcome, welcomePayload{
		Member: welcomeMemberPayload{MemberView: view, Token: token},
		Room:   welcomeRoomPayload{Code: r.Code, Name: r.Name},
		State:  r.State(),
	})
	return nil
}

type reconnectRequest struct {
	MemberID string `json:"member_id"`
}

func (h *Handler) handleReconnect(c *Client, payload json.RawMessage) error {
	var req reconnectRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return trivionerr.New(trivionerr.KindMalformedPayload, "invalid reconnect payload")
	}

	claims, err := h.validator.ValidateToken(req.MemberID)
	if err != nil {
		c.Send(room.EventReconnectFailed, errorPayload{Kind: string(trivionerr.KindNotAuthorized), Message: "invalid or expired reconnection token"})
		return nil
	}

	r, ok := h.registry.Find(room.Code(claims.RoomCode))
	if !ok {
		c.Send(room.EventReconnectFailed, errorPayload{Kind: string(trivionerr.KindRoomNotFound), Message: "room no longer exists"})
		return nil
	}

	memberID := room.MemberID(claims.Subject)
	if err := r.Reconnect(memberID, c); err != nil {
		c.Send(room.EventReconnectFailed, errorPayload{Kind: string(trivionerr.KindNotConnected), Message: err.Error()})
		return nil
	}

	c.bind(r, memberID)
	return nil
}

type answerRequest struct {
	Choice    int    `json:"choice"`
	Timestamp uint64 `json:"timestamp"`
}

func (h *Handler) handleAnswer(ctx context.Context, r *room.Room, memberID room.MemberID, payload json.RawMessage) error {
	if err := h.limiter.CheckWebSocketAnswer(ctx, string(memberID)); err != nil {
		return trivionerr.New(trivionerr.KindPhaseViolation, "too many answers submitted")
	}

	var req answerRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return trivionerr.New(trivionerr.KindMalformedPayload, "invalid answer payload")
	}

	return r.SubmitAnswer(memberID, req.Choice, req.Timestamp)
}

type removeMemberRequest struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handler) handleRemoveMember(r *room.Room, adminID room.MemberID, payload json.RawMessage) error {
	var req removeMemberRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return trivionerr.New(trivionerr.KindMalformedPayload, "invalid remove_member payload")
	}
	return r.RemoveMember(adminID, room.MemberID(req.MemberID), req.Reason)
}

// onDisconnect is invoked from the client's readPump goroutine once its
// socket closes. A bound client's seat is held open for the room's
// reconnection grace window rather than removed outright.
func (h *Handler) onDisconnect(c *Client) {
	r, memberID, bound := c.boundRoom()
	if !bound {
		return
	}
	r.HandleDisconnect(memberID)
}
