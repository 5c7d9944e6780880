package room

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	trivclock "github.com/trivionhq/trivion/internal/v1/clock"
)

func TestCheckPasswordNoPasswordAcceptsAnyAttempt(t *testing.T) {
	r := newTestRoom("Quiz")
	assert.True(t, r.CheckPassword(""))
	assert.True(t, r.CheckPassword("anything"))
}

func TestCheckPasswordRequiresMatch(t *testing.T) {
	r := New(Code("TEST02"), "Quiz", true, "hunter2", trivclock.New(), nil, nil, slog.Default())
	assert.True(t, r.CheckPassword("hunter2"))
	assert.False(t, r.CheckPassword("wrong"))
	assert.False(t, r.CheckPassword(""))
}

func TestPasswordHashIsSaltedPerRoom(t *testing.T) {
	a := New(Code("TEST03"), "Quiz A", true, "same-password", trivclock.New(), nil, nil, slog.Default())
	b := New(Code("TEST04"), "Quiz B", true, "same-password", trivclock.New(), nil, nil, slog.Default())

	assert.NotEqual(t, a.passwordSalt, b.passwordSalt, "each room must draw its own random salt")
	assert.NotEqual(t, a.passwordHash, b.passwordHash, "identical passwords must not produce identical stored hashes")

	assert.True(t, a.CheckPassword("same-password"))
	assert.True(t, b.CheckPassword("same-password"))
}
