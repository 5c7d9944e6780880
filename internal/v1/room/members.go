package room

import (
	"strings"
	"unicode/utf8"

	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

const maxNameLength = 20

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validNameLocked(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
		return trivionerr.New(trivionerr.KindNameInvalid, "display name must be 1-20 characters")
	}
	return nil
}

// addMemberLocked validates and registers a brand-new member, assigning it
// a fresh MemberID. Reconnects go through reclaimMemberLocked instead.
func (r *Room) addMemberLocked(id MemberID, name string, role RoleType, conn Connection) (*member, error) {
	if err := validNameLocked(name); err != nil {
		return nil, err
	}
	key := normalizeName(name)
	if _, taken := r.byName[key]; taken {
		return nil, trivionerr.New(trivionerr.KindNameTaken, "display name already in use in this room")
	}
	if role == RoleAdministrator {
		for _, m := range r.byID {
			if m.role == RoleAdministrator {
				return nil, trivionerr.New(trivionerr.KindAdminExists, "room already has an administrator")
			}
		}
	}

	waiting := r.phase != PhaseLobby && role == RolePlayer

	m := &member{
		id:        id,
		name:      name,
		role:      role,
		conn:      conn,
		waiting:   waiting,
		joinOrder: r.joinSeq,
	}
	r.joinSeq++
	m.elem = r.order.PushBack(m)
	r.byID[id] = m
	r.byName[key] = id
	r.bus.Subscribe(string(id), subscriberAdapter{conn: conn})
	metrics.RoomMembers.WithLabelValues(string(r.Code)).Inc()
	return m, nil
}

// reclaimMemberLocked re-binds an existing member (found via its
// reconnection slot) to a new connection.
func (r *Room) reclaimMemberLocked(id MemberID, conn Connection) (*member, bool) {
	m, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	r.closeReconnectSlotLocked(id)
	m.conn = conn
	r.bus.Subscribe(string(id), subscriberAdapter{conn: conn})
	return m, true
}

// removeMemberLocked deletes a member outright (explicit leave, kick, or a
// reconnection slot expiring).
func (r *Room) removeMemberLocked(id MemberID) *member {
	m, ok := r.byID[id]
	if !ok {
		return nil
	}
	r.order.Remove(m.elem)
	delete(r.byID, id)
	delete(r.byName, normalizeName(m.name))
	delete(r.pendingAnswers, id)
	r.bus.Unsubscribe(string(id))
	if m.conn != nil {
		m.conn.Close()
	}
	metrics.RoomMembers.WithLabelValues(string(r.Code)).Dec()
	return m
}

func (r *Room) findMemberLocked(id MemberID) (*member, bool) {
	m, ok := r.byID[id]
	return m, ok
}

func (r *Room) adminLocked() (*member, bool) {
	for _, m := range r.byID {
		if m.role == RoleAdministrator {
			return m, true
		}
	}
	return nil, false
}

// activePlayersLocked returns players (not waiting) regardless of their
// current connection state, since a disconnected-but-in-grace player still
// owes an answer or a timeout.
func (r *Room) activePlayersLocked() []*member {
	var out []*member
	for _, m := range r.byID {
		if m.role == RolePlayer && !m.waiting {
			out = append(out, m)
		}
	}
	return out
}
