// Package httpapi exposes the REST surface that complements the WebSocket
// transport: public room listing, question bank management, REST-driven
// game control and room/member administration, plus a join QR code. Every
// mutating endpoint requires the same opaque member token the WebSocket
// handshake hands out, passed as a bearer token, so the REST and WebSocket
// surfaces share one identity model.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/logging"
	"github.com/trivionhq/trivion/internal/v1/ratelimit"
	"github.com/trivionhq/trivion/internal/v1/registry"
	"github.com/trivionhq/trivion/internal/v1/room"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

// Handler serves the REST endpoints backed by the same registry the
// WebSocket transport uses, so a room created over one surface is
// immediately visible on the other.
type Handler struct {
	registry  *registry.Registry
	validator *auth.Validator
}

// NewHandler builds a Handler.
func NewHandler(reg *registry.Registry, validator *auth.Validator) *Handler {
	return &Handler{registry: reg, validator: validator}
}

// Register mounts every route onto router, applying rl's per-endpoint rate
// limits the same way the teacher wires limiter middleware onto its own
// REST groups.
func (h *Handler) Register(router gin.IRouter, rl *ratelimit.RateLimiter) {
	rooms := router.Group("/api/rooms")
	rooms.Use(rl.GlobalMiddleware())
	{
		rooms.GET("", h.listRooms)
		rooms.GET("/:code/qrcode", h.qrCode)
		rooms.GET("/:code/questions", h.listQuestions)
		rooms.POST("/:code/questions", rl.MiddlewareForEndpoint("rooms"), h.addQuestion)
		rooms.GET("/:code/game/state", h.gameState)
		rooms.POST("/:code/game/start", rl.MiddlewareForEndpoint("messages"), h.startGame)
		rooms.POST("/:code/game/next", rl.MiddlewareForEndpoint("messages"), h.nextPhase)
		rooms.POST("/:code/game/end", rl.MiddlewareForEndpoint("messages"), h.endGame)
		rooms.POST("/:code/game/back-to-lobby", rl.MiddlewareForEndpoint("messages"), h.backToLobby)
		rooms.DELETE("/:code", h.destroyRoom)
		rooms.DELETE("/:code/members/:memberID", h.removeMember)
	}
}

// findRoom resolves the :code path parameter, replying 404 itself on miss.
func (h *Handler) findRoom(c *gin.Context) (*room.Room, bool) {
	code := room.Code(strings.ToUpper(c.Param("code")))
	r, ok := h.registry.Find(code)
	if !ok {
		writeError(c, trivionerr.New(trivionerr.KindRoomNotFound, "no room with that code"))
		return nil, false
	}
	return r, true
}

// requireAdmin validates the bearer token and checks it names r's room,
// returning the caller's MemberID. Whether that member is actually the
// administrator is still enforced downstream by the room package itself.
func (h *Handler) requireAdmin(c *gin.Context, r *room.Room) (room.MemberID, bool) {
	authHeader := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		writeError(c, trivionerr.New(trivionerr.KindNotAuthorized, "missing bearer token"))
		return "", false
	}

	claims, err := h.validator.ValidateToken(strings.TrimPrefix(authHeader, prefix))
	if err != nil {
		writeError(c, trivionerr.New(trivionerr.KindNotAuthorized, "invalid token"))
		return "", false
	}
	if room.Code(claims.RoomCode) != r.Code {
		writeError(c, trivionerr.New(trivionerr.KindNotAuthorized, "token does not belong to this room"))
		return "", false
	}
	return room.MemberID(claims.Subject), true
}

func writeError(c *gin.Context, err error) {
	kind, ok := trivionerr.KindOf(err)
	if !ok {
		kind = trivionerr.KindMalformedPayload
	}

	status := http.StatusBadRequest
	switch kind {
	case trivionerr.KindRoomNotFound:
		status = http.StatusNotFound
	case trivionerr.KindNotAuthorized, trivionerr.KindBadPassword:
		status = http.StatusForbidden
	case trivionerr.KindPhaseViolation, trivionerr.KindAlreadyAnswered:
		status = http.StatusConflict
	case trivionerr.KindCapacityExhausted:
		status = http.StatusServiceUnavailable
	}

	logging.Debug(c.Request.Context(), "REST request rejected", zap.String("kind", string(kind)), zap.Error(err))
	c.JSON(status, gin.H{"status": "error", "message": err.Error()})
}

// writeOK replies with the {"status":"ok"} envelope every successful
// endpoint shares, merging in any extra fields (e.g. the created resource).
func writeOK(c *gin.Context, status int, extra gin.H) {
	body := gin.H{"status": "ok"}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

type roomListResponse struct {
	Rooms []room.Summary `json:"rooms"`
}

func (h *Handler) listRooms(c *gin.Context) {
	writeOK(c, http.StatusOK, gin.H{"rooms": h.registry.ListPublic()})
}

// qrCode renders a PNG QR code encoding the room's join code so it can be
// projected for players to scan, per the room's public lobby screen.
func (h *Handler) qrCode(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}

	png, err := qrcode.Encode(string(r.Code), qrcode.Medium, 256)
	if err != nil {
		writeError(c, trivionerr.New(trivionerr.KindMalformedPayload, "failed to render QR code"))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

type questionsResponse struct {
	Questions []room.Question `json:"questions"`
}

func (h *Handler) listQuestions(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	writeOK(c, http.StatusOK, gin.H{"questions": r.Questions()})
}

func (h *Handler) addQuestion(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	if _, ok := h.requireAdmin(c, r); !ok {
		return
	}

	var q room.Question
	if err := c.ShouldBindJSON(&q); err != nil {
		writeError(c, trivionerr.New(trivionerr.KindMalformedPayload, "invalid question body"))
		return
	}
	if err := r.AppendQuestion(q); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusCreated, gin.H{"question": q})
}

func (h *Handler) gameState(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	writeOK(c, http.StatusOK, gin.H{
		"code":  r.Code,
		"name":  r.Name,
		"state": r.State(),
	})
}

func (h *Handler) startGame(c *gin.Context) {
	h.adminAction(c, func(r *room.Room, id room.MemberID) error { return r.Start(id) })
}

func (h *Handler) nextPhase(c *gin.Context) {
	h.adminAction(c, func(r *room.Room, id room.MemberID) error { return r.Next(id) })
}

func (h *Handler) endGame(c *gin.Context) {
	h.adminAction(c, func(r *room.Room, id room.MemberID) error { return r.End(id) })
}

func (h *Handler) backToLobby(c *gin.Context) {
	h.adminAction(c, func(r *room.Room, id room.MemberID) error { return r.BackToLobby(id) })
}

func (h *Handler) adminAction(c *gin.Context, action func(*room.Room, room.MemberID) error) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	adminID, ok := h.requireAdmin(c, r)
	if !ok {
		return
	}
	if err := action(r, adminID); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, nil)
}

func (h *Handler) destroyRoom(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	if _, ok := h.requireAdmin(c, r); !ok {
		return
	}
	h.registry.Destroy(r.Code)
	writeOK(c, http.StatusOK, nil)
}

func (h *Handler) removeMember(c *gin.Context) {
	r, ok := h.findRoom(c)
	if !ok {
		return
	}
	adminID, ok := h.requireAdmin(c, r)
	if !ok {
		return
	}
	targetID := room.MemberID(c.Param("memberID"))
	if err := r.RemoveMember(adminID, targetID, "removed by administrator"); err != nil {
		writeError(c, err)
		return
	}
	writeOK(c, http.StatusOK, nil)
}
