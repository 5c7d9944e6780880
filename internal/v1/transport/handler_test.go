package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trivionhq/trivion/internal/v1/auth"
	"github.com/trivionhq/trivion/internal/v1/config"
	"github.com/trivionhq/trivion/internal/v1/ratelimit"
	"github.com/trivionhq/trivion/internal/v1/registry"
	"github.com/trivionhq/trivion/internal/v1/room"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
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

	return NewHandler(reg, validator, limiter, "", slog.Default())
}

func frameFor(t *testing.T, tag room.ClientTag, payload any) inboundFrame {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	return inboundFrame{Tag: tag, Payload: raw}
}

func lastSent(c *Client) (room.Event, bool) {
	select {
	case frame := <-c.send:
		return frame.Tag, true
	default:
		return "", false
	}
}

func TestHandleListRooms(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagListRooms, nil))

	tag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventAvailableRooms, tag)
}

func TestHandleCreateRoomThenBinds(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: true}))

	_, _, bound := c.boundRoom()
	assert.True(t, bound, "creating a room must bind the creator as administrator")

	// room_created, then a single welcome carrying member, room and state
	firstTag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventRoomCreated, firstTag)

	secondTag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventWelcome, secondTag)

	_, ok = lastSent(c)
	assert.False(t, ok, "exactly one welcome frame must be sent per join")
}

func TestWelcomeCarriesMemberTokenRoomAndState(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: true}))
	<-c.send // room_created

	var frame outboundFrame
	select {
	case frame = <-c.send:
	default:
		t.Fatal("expected a welcome frame")
	}
	require.Equal(t, room.EventWelcome, frame.Tag)

	payload, ok := frame.Payload.(welcomePayload)
	require.True(t, ok, "welcome payload must be a welcomePayload")
	assert.NotEmpty(t, payload.Member.Token)
	assert.Equal(t, "host", payload.Member.Name)
	assert.NotEmpty(t, payload.Room.Code)
	assert.Equal(t, "host", payload.Room.Name)
	assert.Equal(t, room.PhaseLobby, payload.State.Phase)
}

func TestJoinRoomAsAdminGrantsAdministratorRole(t *testing.T) {
	h := testHandler(t)
	creator := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), creator, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: true}))
	<-creator.send // room_created
	<-creator.send // welcome
	r, _, _ := creator.boundRoom()

	// The room already has an administrator (its creator), so a second
	// as_admin join must be rejected the same way room.addMemberLocked
	// rejects any other second administrator.
	secondAdmin := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), secondAdmin, frameFor(t, room.TagJoinRoom, joinRoomRequest{Code: string(r.Code), Name: "co-host", AsAdmin: true}))

	tag, ok := lastSent(secondAdmin)
	require.True(t, ok)
	assert.Equal(t, room.EventError, tag, "a room may only have one administrator")
}

func TestHandleJoinRoomUnknownCode(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagJoinRoom, joinRoomRequest{Code: "ZZZZZZ", Name: "player"}))

	tag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventError, tag)

	_, _, bound := c.boundRoom()
	assert.False(t, bound)
}

func TestUnboundClientCannotAnswer(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagAnswer, answerRequest{Choice: 1}))

	tag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventError, tag)
}

func TestJoinThenReconnectRoundTrip(t *testing.T) {
	h := testHandler(t)
	admin := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), admin, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: false}))
	<-admin.send // room_created
	welcomeTag, ok := lastSent(admin)
	require.True(t, ok)
	require.Equal(t, room.EventWelcome, welcomeTag)

	r, adminID, bound := admin.boundRoom()
	require.True(t, bound)

	token, err := h.validator.Issue(string(adminID), string(r.Code))
	require.NoError(t, err)

	// Drop the original socket so the room holds a reconnection slot.
	h.onDisconnect(admin)

	reconnecting := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), reconnecting, frameFor(t, room.TagReconnect, reconnectRequest{MemberID: token}))

	_, id, bound := reconnecting.boundRoom()
	assert.True(t, bound)
	assert.Equal(t, adminID, id)
}

func TestReconnectWithBadTokenFails(t *testing.T) {
	h := testHandler(t)
	c := newClient(&mockWSConnection{}, h, slog.Default())

	h.dispatch(context.Background(), c, frameFor(t, room.TagReconnect, reconnectRequest{MemberID: "garbage"}))

	tag, ok := lastSent(c)
	require.True(t, ok)
	assert.Equal(t, room.EventReconnectFailed, tag)

	_, _, bound := c.boundRoom()
	assert.False(t, bound)
}

func TestAdminOnlyTagRejectedForNonAdmin(t *testing.T) {
	h := testHandler(t)
	admin := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), admin, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: true}))
	<-admin.send // room_created
	<-admin.send // welcome
	r, _, _ := admin.boundRoom()

	player := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), player, frameFor(t, room.TagJoinRoom, joinRoomRequest{Code: string(r.Code), Name: "alice"}))
	<-player.send // welcome

	h.dispatch(context.Background(), player, frameFor(t, room.TagStart, nil))

	tag, ok := lastSent(player)
	require.True(t, ok)
	assert.Equal(t, room.EventError, tag)
}

func TestUnknownTagReturnsError(t *testing.T) {
	h := testHandler(t)
	admin := newClient(&mockWSConnection{}, h, slog.Default())
	h.dispatch(context.Background(), admin, frameFor(t, room.TagCreateRoom, createRoomRequest{Name: "host", Public: true}))
	<-admin.send
	<-admin.send

	h.dispatch(context.Background(), admin, frameFor(t, room.ClientTag("not_a_real_tag"), nil))

	tag, ok := lastSent(admin)
	require.True(t, ok)
	assert.Equal(t, room.EventError, tag)
}
