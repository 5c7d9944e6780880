package room

import (
	"container/list"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"sync"
	"time"

	"github.com/trivionhq/trivion/internal/v1/bus"
)

// passwordSaltLen is the size, in bytes, of the random salt mixed into a
// room's password hash.
const passwordSaltLen = 16

// member is the internal (lock-protected) record for a participant. The
// client-visible projection is MemberView.
type member struct {
	id        MemberID
	name      string
	role      RoleType
	score     int
	waiting   bool
	conn      Connection
	joinOrder int
	lastTS    uint64 // logical timestamp of the most recently accepted answer
	elem      *list.Element
}

func (m *member) view() MemberView {
	return MemberView{
		ID:        m.id,
		Name:      m.name,
		Role:      m.role,
		Score:     m.score,
		Waiting:   m.waiting,
		Connected: m.conn != nil,
	}
}

// subscriberAdapter lets a room.Connection satisfy bus.Sendable without the
// bus package needing to know about rooms or events.
type subscriberAdapter struct {
	conn Connection
}

func (s subscriberAdapter) Send(f bus.Frame) bool {
	return s.conn.Send(Event(f.Tag), f.Payload)
}

// logicalClock is the subset of *clock.Clock the room needs, so tests can
// substitute a deterministic stand-in.
type logicalClock interface {
	Observe(remote uint64) uint64
	Tick() uint64
}

// Room is a single quiz session: its member registry, question bank and
// game coordinator, guarded by one mutex. All exported methods are safe for
// concurrent use.
type Room struct {
	Code         Code
	Name         string
	public       bool
	passwordSalt []byte
	passwordHash []byte

	createdAt time.Time
	onEmpty   func(Code)
	logger    *slog.Logger

	mu sync.Mutex

	order   *list.List // ordered list of *member, oldest first
	byID    map[MemberID]*member
	byName  map[string]MemberID // case-folded name -> id, for uniqueness checks
	joinSeq int

	questions []Question

	phase         Phase
	questionIndex int
	generation    uint64 // bumped whenever pending timers must be invalidated

	pendingAnswers map[MemberID]*answerRecord
	questionSentAt time.Time

	slots map[MemberID]*reconnectSlot

	bus *bus.Bus
	clk logicalClock
}

// New constructs an empty room in the lobby phase. onEmpty is invoked
// (without the room lock held) every time the member registry becomes
// empty, so the registry can decide whether to destroy it.
func New(code Code, name string, public bool, password string, clk logicalClock, forwarder bus.Forwarder, onEmpty func(Code), logger *slog.Logger) *Room {
	salt := newPasswordSalt(password)
	r := &Room{
		Code:           code,
		Name:           name,
		public:         public,
		passwordSalt:   salt,
		passwordHash:   hashPassword(password, salt),
		createdAt:      time.Now(),
		onEmpty:        onEmpty,
		logger:         logger,
		order:          list.New(),
		byID:           make(map[MemberID]*member),
		byName:         make(map[string]MemberID),
		phase:          PhaseLobby,
		questionIndex:  -1,
		pendingAnswers: make(map[MemberID]*answerRecord),
		slots:          make(map[MemberID]*reconnectSlot),
		clk:            clk,
	}
	r.bus = bus.New(string(code), forwarder, r.onSubscriberOverflow)
	return r
}

// newPasswordSalt generates a fresh random salt for a password-protected
// room. Rooms with no password need no salt.
func newPasswordSalt(password string) []byte {
	if password == "" {
		return nil
	}
	salt := make([]byte, passwordSaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic("room: failed to read random bytes for password salt: " + err.Error())
	}
	return salt
}

// hashPassword mixes salt into password before hashing, so that two rooms
// with the same password never share a stored hash.
func hashPassword(password string, salt []byte) []byte {
	if password == "" {
		return nil
	}
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// onSubscriberOverflow is invoked by the bus, outside the room lock, when a
// subscriber's send queue overflowed. The room treats this exactly like a
// network disconnect.
func (r *Room) onSubscriberOverflow(id string) {
	r.HandleDisconnect(MemberID(id))
}

// Public reports whether the room is listed in GET /api/rooms.
func (r *Room) Public() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.public
}

// CheckPassword reports whether attempt matches the room's password. A room
// with no password accepts any attempt, including an empty one.
func (r *Room) CheckPassword(attempt string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.passwordHash) == 0 {
		return true
	}
	sum := hashPassword(attempt, r.passwordSalt)
	return subtle.ConstantTimeCompare(sum, r.passwordHash) == 1
}

// Summary returns the room's public listing row.
func (r *Room) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	players := 0
	for _, m := range r.byID {
		if m.role == RolePlayer {
			players++
		}
	}
	return Summary{Code: r.Code, Name: r.Name, Players: players}
}

// IsEmpty reports whether the room currently holds no members.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID) == 0
}

// snapshotLocked returns a stable MemberView slice in join order. Must be
// called with r.mu held.
func (r *Room) snapshotLocked() []MemberView {
	views := make([]MemberView, 0, r.order.Len())
	for e := r.order.Front(); e != nil; e = e.Next() {
		views = append(views, e.Value.(*member).view())
	}
	return views
}

// broadcastLocked emits an event to every current subscriber. Must be
// called with r.mu held, so that two broadcasts issued back to back from
// the same critical section are delivered to every subscriber in that
// order.
func (r *Room) broadcastLocked(event Event, payload any) {
	r.bus.Emit(string(event), payload)
}

// emptyCheckLocked schedules the onEmpty callback, outside the lock, once
// the member registry has no entries left.
func (r *Room) emptyCheckLocked() {
	if len(r.byID) > 0 || r.onEmpty == nil {
		return
	}
	code := r.Code
	go func() {
		defer func() {
			if rec := recover(); rec != nil && r.logger != nil {
				r.logger.Error("panic in room onEmpty callback", "recover", rec)
			}
		}()
		r.onEmpty(code)
	}()
}
