// Package bus implements the broadcast fan-out used by a room to deliver
// server events to every connected subscriber. It mirrors the room
// broadcast pattern the teacher codebase uses (marshal once, fan out over
// per-subscriber bounded queues, never block on a slow reader) but is kept
// independent of any particular transport so it can be unit tested without a
// websocket.
package bus

import (
	"context"
	"sync"
)

// Frame is the wire envelope emitted to subscribers: {"tag": ..., "payload": ...}.
type Frame struct {
	Tag     string `json:"tag"`
	Payload any    `json:"payload,omitempty"`
}

// Sendable is satisfied by anything that can accept a Frame without
// blocking. It returns false when the frame could not be delivered (queue
// full or connection closed), signalling the bus to drop the subscriber.
type Sendable interface {
	Send(f Frame) bool
}

// Forwarder optionally mirrors emitted events to an external pub/sub system
// (e.g. Redis), so that a second process instance or an observability
// sidecar can see room activity. It is best-effort: forwarding failures
// never affect in-process delivery.
type Forwarder interface {
	Forward(ctx context.Context, roomCode string, frame Frame)
}

// Bus fans events out to subscribers registered under an opaque id (the
// room uses the member id). It holds no domain knowledge of rooms or
// members.
type Bus struct {
	roomCode   string
	forwarder  Forwarder
	onOverflow func(id string)

	mu   sync.Mutex
	subs map[string]Sendable
}

// New constructs a Bus for a single room. forwarder may be nil. onOverflow,
// if set, is invoked (outside the bus's lock) whenever a subscriber's queue
// overflowed and the subscriber was dropped; the room uses this to trigger a
// disconnect.
func New(roomCode string, forwarder Forwarder, onOverflow func(id string)) *Bus {
	return &Bus{
		roomCode:   roomCode,
		forwarder:  forwarder,
		onOverflow: onOverflow,
		subs:       make(map[string]Sendable),
	}
}

// Subscribe registers (or replaces) the subscriber for id.
func (b *Bus) Subscribe(id string, s Sendable) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = s
}

// Unsubscribe removes id, if present.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Len reports the current subscriber count.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Emit delivers tag/payload to every current subscriber. Callers that need
// the "events emitted within one lock-held section are delivered in
// emission order" guarantee get it for free: Emit runs synchronously in the
// calling goroutine, and per-subscriber delivery is a simple channel send,
// so two Emit calls made back to back from the same goroutine enqueue in
// that order on every subscriber's queue.
func (b *Bus) Emit(tag string, payload any) {
	frame := Frame{Tag: tag, Payload: payload}

	b.mu.Lock()
	targets := make(map[string]Sendable, len(b.subs))
	for id, s := range b.subs {
		targets[id] = s
	}
	b.mu.Unlock()

	var overflowed []string
	for id, s := range targets {
		if !s.Send(frame) {
			overflowed = append(overflowed, id)
		}
	}

	if len(overflowed) > 0 {
		b.mu.Lock()
		for _, id := range overflowed {
			delete(b.subs, id)
		}
		b.mu.Unlock()
		if b.onOverflow != nil {
			for _, id := range overflowed {
				b.onOverflow(id)
			}
		}
	}

	if b.forwarder != nil {
		go b.forwarder.Forward(context.Background(), b.roomCode, frame)
	}
}
