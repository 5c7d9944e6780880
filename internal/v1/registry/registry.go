// Package registry owns the process-wide table of live rooms: allocating
// unique join codes, creating and destroying rooms, and listing the public
// ones for the lobby.
package registry

import (
	"crypto/rand"
	"log/slog"
	"sync"

	"github.com/trivionhq/trivion/internal/v1/bus"
	"github.com/trivionhq/trivion/internal/v1/clock"
	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/trivionhq/trivion/internal/v1/room"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength     = 6
	maxCodeRetries = 10
)

// ForwarderFactory builds the optional bus.Forwarder for a freshly created
// room (nil when no pub/sub backend is configured).
type ForwarderFactory func(code room.Code) bus.Forwarder

// Registry tracks every live room in this process.
type Registry struct {
	mu    sync.Mutex
	rooms map[room.Code]*room.Room

	forwarderFactory ForwarderFactory
	logger           *slog.Logger
}

// New constructs an empty Registry. forwarderFactory may be nil.
func New(forwarderFactory ForwarderFactory, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:            make(map[room.Code]*room.Room),
		forwarderFactory: forwarderFactory,
		logger:           logger,
	}
}

func randomCode() (room.Code, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return room.Code(out), nil
}

// Create allocates a new room with a unique code, retrying on collision up
// to maxCodeRetries times before giving up with CapacityExhausted.
func (reg *Registry) Create(name string, public bool, password string) (*room.Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := randomCode()
		if err != nil {
			return nil, err
		}
		if _, taken := reg.rooms[code]; taken {
			continue
		}

		var forwarder bus.Forwarder
		if reg.forwarderFactory != nil {
			forwarder = reg.forwarderFactory(code)
		}

		r := room.New(code, name, public, password, clock.New(), forwarder, reg.onRoomEmpty, reg.logger)
		reg.rooms[code] = r
		metrics.ActiveRooms.Inc()
		return r, nil
	}

	return nil, trivionerr.New(trivionerr.KindCapacityExhausted, "could not allocate a unique room code")
}

// Find looks a room up by code.
func (reg *Registry) Find(code room.Code) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[code]
	return r, ok
}

// ListPublic returns a summary of every public room currently live.
func (reg *Registry) ListPublic() []room.Summary {
	reg.mu.Lock()
	rooms := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	out := make([]room.Summary, 0, len(rooms))
	for _, r := range rooms {
		if !r.Public() {
			continue
		}
		out = append(out, r.Summary())
	}
	return out
}

// Destroy removes code from the registry outright.
func (reg *Registry) Destroy(code room.Code) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, existed := reg.rooms[code]; existed {
		metrics.ActiveRooms.Dec()
	}
	delete(reg.rooms, code)
	metrics.RoomMembers.DeleteLabelValues(string(code))
}

// Count reports how many rooms are currently live, for metrics.
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// onRoomEmpty is the callback passed to every room.New: once a room's
// member registry is empty it is dropped from the table. Trivion does not
// add a further grace period here because each member already holds a
// reconnection slot inside the room itself: a disconnected member stays in
// the registry until its grace window elapses, while an explicit leave or
// removal empties it at once.
func (reg *Registry) onRoomEmpty(code room.Code) {
	reg.Destroy(code)
}
