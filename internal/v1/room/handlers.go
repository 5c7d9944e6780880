package room

import (
	"github.com/google/uuid"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

type State struct {
	Phase          Phase           `json:"phase"`
	Members        []MemberView    `json:"members"`
	Question       *QuestionPublic `json:"question,omitempty"`
	QuestionNumber int             `json:"question_number,omitempty"`
	TotalQuestions int             `json:"total_questions"`
}

type memberJoinedPayload struct {
	Member  MemberView   `json:"member"`
	Members []MemberView `json:"members"`
}

type waitingMemberPayload struct {
	Member MemberView `json:"member"`
}

type reconnectSuccessPayload struct {
	Member MemberView   `json:"member"`
	State  State `json:"state"`
}

// State returns a snapshot of the room's current phase, membership and
// active question, for the REST get-state endpoint and the WebSocket
// get_state tag alike.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) stateLocked() State {
	sp := State{
		Phase:          r.phase,
		Members:        r.snapshotLocked(),
		TotalQuestions: len(r.questions),
	}
	if q, ok := r.currentQuestionLocked(); ok && r.phase == PhaseQuestion {
		pub := q.Public()
		sp.Question = &pub
		sp.QuestionNumber = r.questionIndex + 1
	}
	return sp
}

// Join registers a brand-new member (not a reconnect) and binds conn to the
// room. It returns the assigned MemberID so the caller (transport) can mint
// an opaque reconnection token around it.
func (r *Room) Join(name string, role RoleType, conn Connection) (MemberID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := MemberID(uuid.NewString())
	m, err := r.addMemberLocked(id, name, role, conn)
	if err != nil {
		return "", err
	}

	if m.waiting {
		r.broadcastLocked(EventWaitingMember, waitingMemberPayload{Member: m.view()})
	} else {
		// The joiner learns of its own arrival from its welcome, so
		// member_joined goes to the other members only.
		r.bus.Unsubscribe(string(id))
		r.broadcastLocked(EventMemberJoined, memberJoinedPayload{Member: m.view(), Members: r.snapshotLocked()})
		r.bus.Subscribe(string(id), subscriberAdapter{conn: conn})
	}

	// The personal welcome event itself is sent by transport, once it has
	// minted the member's reconnection token (see MemberView below).
	return id, nil
}

// MemberView returns the client-visible projection of id, so transport can
// assemble the single welcome event (member, room, state) once it has
// minted the member's opaque reconnection token.
func (r *Room) MemberView(id MemberID) (MemberView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.findMemberLocked(id)
	if !ok {
		return MemberView{}, false
	}
	return m.view(), true
}

// Reconnect rebinds conn to an existing member found via its reconnection
// slot, restoring role, score and waiting status.
func (r *Room) Reconnect(id MemberID, conn Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.slots[id]; !held {
		return trivionerr.New(trivionerr.KindNotConnected, "no pending reconnection for this member")
	}
	m, ok := r.reclaimMemberLocked(id, conn)
	if !ok {
		return trivionerr.New(trivionerr.KindRoomNotFound, "member no longer exists")
	}
	conn.Send(EventReconnectOK, reconnectSuccessPayload{Member: m.view(), State: r.stateLocked()})
	return nil
}

// Leave removes a member immediately, bypassing the reconnection grace
// window, for an explicit leave_room request.
func (r *Room) Leave(id MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closeReconnectSlotLocked(id)
	m := r.removeMemberLocked(id)
	if m == nil {
		return
	}
	r.emptyCheckLocked()
	r.broadcastLocked(EventMemberLeft, memberLeftPayload{Name: m.name, Members: r.snapshotLocked()})
}

// SendStateTo pushes a point-to-point state snapshot to id's connection,
// for an explicit get_state request.
func (r *Room) SendStateTo(id MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.findMemberLocked(id)
	if !ok || m.conn == nil {
		return trivionerr.New(trivionerr.KindNotConnected, "not connected to this room")
	}
	m.conn.Send(EventState, r.stateLocked())
	return nil
}

// BackToLobby is the REST-facing alias for End: both cancel the in-progress
// game and return every member to the lobby without touching scores.
func (r *Room) BackToLobby(adminID MemberID) error {
	return r.End(adminID)
}
