// Package room implements the per-room game coordinator: member registry,
// question bank, phase state machine, scoring and the reconnection grace
// window. A Room owns a single mutex; every exported method that touches
// state takes it, mirroring the locking discipline the teacher codebase
// uses for its own Room type.
package room

import "time"

// RoleType distinguishes the single administrator from players.
type RoleType string

const (
	RoleAdministrator RoleType = "administrator"
	RolePlayer        RoleType = "player"
)

// Phase is one state in the game coordinator's state machine.
type Phase string

const (
	PhaseLobby      Phase = "lobby"
	PhaseCountdown  Phase = "countdown"
	PhaseQuestion   Phase = "question"
	PhaseResults    Phase = "results"
	PhasePodium     Phase = "podium"
	PhaseLeaderboard Phase = "leaderboard"
)

// MemberID identifies a member within a room. It is a random UUID assigned
// on join, never a raw sequence number; the token handed to the client is a
// signed JWT wrapping it (see internal/v1/auth).
type MemberID string

// Code is a room's short join code, e.g. "7F3KQZ".
type Code string

// Event is a server-to-client wire tag.
type Event string

const (
	EventAvailableRooms  Event = "available_rooms"
	EventRoomCreated     Event = "room_created"
	EventWelcome         Event = "welcome"
	EventReconnectOK     Event = "reconnect_success"
	EventReconnectFailed Event = "reconnect_failed"
	EventState           Event = "state"
	EventMemberJoined    Event = "member_joined"
	EventMemberLeft      Event = "member_left"
	EventWaitingMember   Event = "waiting_member"
	EventCountdown       Event = "countdown"
	EventQuestion        Event = "question"
	EventPlayerAnswered  Event = "player_answered"
	EventResults         Event = "results"
	EventPodiumStart     Event = "podium_start"
	EventPodiumPosition  Event = "podium_position"
	EventPodiumComplete  Event = "podium_complete"
	EventGameEnded       Event = "game_ended"
	EventRoomClosed      Event = "room_closed"
	EventKicked          Event = "kicked"
	EventPingHeartbeat   Event = "ping_heartbeat"
	EventError           Event = "error"
)

// ClientTag is a client-to-server wire tag.
type ClientTag string

const (
	TagListRooms     ClientTag = "list_rooms"
	TagCreateRoom    ClientTag = "create_room"
	TagJoinRoom      ClientTag = "join_room"
	TagLeaveRoom     ClientTag = "leave_room"
	TagReconnect     ClientTag = "reconnect"
	TagAnswer        ClientTag = "answer"
	TagGetState      ClientTag = "get_state"
	TagPongHeartbeat ClientTag = "pong_heartbeat"
	TagStart         ClientTag = "start"
	TagNext          ClientTag = "next"
	TagEnd           ClientTag = "end"
	TagBackToLobby   ClientTag = "back_to_lobby"
	TagRemoveMember  ClientTag = "remove_member"
)

// Connection is the subset of a transport client a Room needs: the ability
// to push a tagged payload and to force-close the socket (used for kicks
// and room closure). Implemented by internal/v1/transport.Client; defining
// it here keeps room free of any transport import.
type Connection interface {
	Send(event Event, payload any) bool
	Close()
}

// Question is one entry in a room's question bank.
type Question struct {
	Text            string
	Options         [4]string
	CorrectOption   int
	DeadlineSeconds int
}

// QuestionPublic is the client-visible projection of a Question: the
// correct option index is withheld until results.
type QuestionPublic struct {
	Text            string    `json:"text"`
	Options         [4]string `json:"options"`
	DeadlineSeconds int       `json:"deadline_seconds"`
}

func (q Question) Public() QuestionPublic {
	return QuestionPublic{Text: q.Text, Options: q.Options, DeadlineSeconds: q.DeadlineSeconds}
}

// MemberView is the client-visible projection of a Member.
type MemberView struct {
	ID        MemberID `json:"id"`
	Name      string   `json:"name"`
	Role      RoleType `json:"role"`
	Score     int      `json:"score"`
	Waiting   bool     `json:"waiting"`
	Connected bool     `json:"connected"`
}

// Summary describes a public room for the lobby listing.
type Summary struct {
	Code    Code   `json:"code"`
	Name    string `json:"name"`
	Players int    `json:"players"`
}

// RankingEntry is one row of a results or podium ranking.
type RankingEntry struct {
	Member MemberView `json:"member"`
	Score  int        `json:"score"`
}

// answerRecord tracks one member's answer to the currently active question.
type answerRecord struct {
	choice    int // -1 means timed out without answering
	timedOut  bool
	logicalTS uint64
	elapsed   time.Duration
	points    int
}
