package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/config"
	"github.com/trivionhq/trivion/internal/v1/ratelimit"
	"github.com/trivionhq/trivion/internal/v1/registry"
	"github.com/trivionhq/trivion/internal/v1/room"
)

func testRouter(t *testing.T) (*gin.Engine, *Handler, *auth.Validator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := registry.New(nil, slog.Default())
	validator, err := auth.NewValidator("test-reconnect-secret!!")
	require.NoError(t, err)

	cfg := &config.Config{
		RateLimitAPIGlobal:   "1000-M",
		RateLimitAPIPublic:   "1000-M",
		RateLimitAPIRooms:    "1000-M",
		RateLimitAPIMessages: "1000-M",
		RateLimitWSConnect:   "1000-M",
		RateLimitWSAnswer:    "1000-M",
	}
	limiter, err := ratelimit.NewRateLimiter(cfg, nil, validator)
	require.NoError(t, err)

	h := NewHandler(reg, validator)
	router := gin.New()
	h.Register(router, limiter)
	return router, h, validator
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestListRoomsEmpty(t *testing.T) {
	router, _, _ := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp roomListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Rooms)
}

func TestGameStateUnknownRoom(t *testing.T) {
	router, _, _ := testRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/rooms/ZZZZZZ/game/state", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAddQuestionRequiresAdminToken(t *testing.T) {
	router, h, _ := testRouter(t)

	r, err := h.registry.Create("quiz night", true, "")
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/rooms/"+string(r.Code)+"/questions", "", room.Question{
		Text:            "2+2?",
		Options:         [4]string{"3", "4", "5", "6"},
		CorrectOption:   1,
		DeadlineSeconds: 20,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAddQuestionAndListIt(t *testing.T) {
	router, h, validator := testRouter(t)

	r, err := h.registry.Create("quiz night", true, "")
	require.NoError(t, err)
	adminID, err := r.Join("host", room.RoleAdministrator, noopConn{})
	require.NoError(t, err)
	token, err := validator.Issue(string(adminID), string(r.Code))
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/rooms/"+string(r.Code)+"/questions", token, room.Question{
		Text:            "2+2?",
		Options:         [4]string{"3", "4", "5", "6"},
		CorrectOption:   1,
		DeadlineSeconds: 20,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/rooms/"+string(r.Code)+"/questions", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp questionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "2+2?", resp.Questions[0].Text)
}

func TestStartGameRequiresQuestionsAndPlayers(t *testing.T) {
	router, h, validator := testRouter(t)

	r, err := h.registry.Create("quiz night", true, "")
	require.NoError(t, err)
	adminID, err := r.Join("host", room.RoleAdministrator, noopConn{})
	require.NoError(t, err)
	token, err := validator.Issue(string(adminID), string(r.Code))
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/rooms/"+string(r.Code)+"/game/start", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "starting with no questions and no players must fail")
}

func TestDestroyRoomRemovesIt(t *testing.T) {
	router, h, validator := testRouter(t)

	r, err := h.registry.Create("quiz night", true, "")
	require.NoError(t, err)
	adminID, err := r.Join("host", room.RoleAdministrator, noopConn{})
	require.NoError(t, err)
	token, err := validator.Issue(string(adminID), string(r.Code))
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/api/rooms/"+string(r.Code), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	_, ok := h.registry.Find(r.Code)
	assert.False(t, ok)
}

func TestTokenFromWrongRoomRejected(t *testing.T) {
	router, h, validator := testRouter(t)

	r1, err := h.registry.Create("quiz night", true, "")
	require.NoError(t, err)
	r2, err := h.registry.Create("other room", true, "")
	require.NoError(t, err)

	adminID, err := r1.Join("host", room.RoleAdministrator, noopConn{})
	require.NoError(t, err)
	token, err := validator.Issue(string(adminID), string(r1.Code))
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodDelete, "/api/rooms/"+string(r2.Code), token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

// statusResponse mirrors the {"status": "ok"|"error", ...} envelope every
// REST endpoint replies with.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// noopConn is a minimal room.Connection stand-in for tests that only need a
// member to exist, not to observe what is sent to it.
type noopConn struct{}

func (noopConn) Send(event room.Event, payload any) bool { return true }
func (noopConn) Close()                                  {}
