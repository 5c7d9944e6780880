package room

import "time"

// reconnectGrace is how long a disconnected member's seat is held open
// before it is permanently released. Overridable in tests.
var reconnectGrace = 10 * time.Second

// reconnectSlot records that a member disconnected and may still reclaim
// their seat before deadline.
type reconnectSlot struct {
	deadline time.Time
	timer    *time.Timer
}

// openReconnectSlotLocked marks id as disconnected without removing it from
// the registry, and schedules its eviction after reconnectGrace.
func (r *Room) openReconnectSlotLocked(id MemberID) {
	if existing, ok := r.slots[id]; ok {
		existing.timer.Stop()
	}
	deadline := time.Now().Add(reconnectGrace)
	slot := &reconnectSlot{deadline: deadline}
	slot.timer = time.AfterFunc(reconnectGrace, func() {
		r.expireReconnectSlot(id)
	})
	r.slots[id] = slot
}

// expireReconnectSlot permanently removes a member whose grace window
// elapsed without a reconnect.
func (r *Room) expireReconnectSlot(id MemberID) {
	r.mu.Lock()
	slot, ok := r.slots[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if time.Now().Before(slot.deadline) {
		// A later disconnect replaced the slot this timer was armed for;
		// the newer slot's own timer handles it.
		r.mu.Unlock()
		return
	}
	delete(r.slots, id)
	m := r.removeMemberLocked(id)
	r.emptyCheckLocked()
	views := r.snapshotLocked()
	if m != nil {
		r.broadcastLocked(EventMemberLeft, memberLeftPayload{Name: m.name, Members: views})
	}
	r.mu.Unlock()
}

// closeReconnectSlotLocked cancels a pending eviction, used when a member
// reconnects or leaves explicitly before the grace window expires.
func (r *Room) closeReconnectSlotLocked(id MemberID) {
	if slot, ok := r.slots[id]; ok {
		slot.timer.Stop()
		delete(r.slots, id)
	}
}

// HandleDisconnect is called by the transport layer when a connection
// drops unexpectedly (as opposed to an explicit leave_room). The member
// keeps their seat, score and waiting status for reconnectGrace.
func (r *Room) HandleDisconnect(id MemberID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok || m.conn == nil {
		return
	}
	m.conn = nil
	r.bus.Unsubscribe(string(id))
	r.openReconnectSlotLocked(id)
}

type memberLeftPayload struct {
	Name    string       `json:"name"`
	Members []MemberView `json:"members"`
}
