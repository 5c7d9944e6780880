package room

import (
	"log/slog"
	"sync"

	trivclock "github.com/trivionhq/trivion/internal/v1/clock"
)

// fakeConn is a minimal Connection used across the package's tests.
type fakeConn struct {
	mu     sync.Mutex
	frames []Event
	closed bool
	reject bool
}

func (f *fakeConn) Send(event Event, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject || f.closed {
		return false
	}
	f.frames = append(f.frames, event)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Event, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeConn) last() Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return ""
	}
	return f.frames[len(f.frames)-1]
}

func newTestRoom(name string) *Room {
	return New(Code("TEST01"), name, true, "", trivclock.New(), nil, nil, slog.Default())
}

func sampleQuestion() Question {
	return Question{
		Text:            "2+2?",
		Options:         [4]string{"3", "4", "5", "6"},
		CorrectOption:   1,
		DeadlineSeconds: 10,
	}
}
