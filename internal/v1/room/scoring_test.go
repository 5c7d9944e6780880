package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScorePointsImmediateCorrectAnswer(t *testing.T) {
	pts := scorePoints(true, 0, 10*time.Second)
	assert.Equal(t, 1000, pts)
}

func TestScorePointsAtDeadlineHalvesScore(t *testing.T) {
	pts := scorePoints(true, 10*time.Second, 10*time.Second)
	assert.Equal(t, 500, pts)
}

func TestScorePointsIncorrectIsZero(t *testing.T) {
	pts := scorePoints(false, 0, 10*time.Second)
	assert.Equal(t, 0, pts)
}

func TestScorePointsNeverNegative(t *testing.T) {
	pts := scorePoints(true, 20*time.Second, 10*time.Second)
	assert.GreaterOrEqual(t, pts, 0)
}

func TestRankLockedOrdersByScoreThenTiebreak(t *testing.T) {
	r := newTestRoom("Tiebreaks")
	aID, _ := r.Join("Alice", RolePlayer, &fakeConn{})
	bID, _ := r.Join("Bob", RolePlayer, &fakeConn{})
	cID, _ := r.Join("Carl", RolePlayer, &fakeConn{})

	r.mu.Lock()
	a, _ := r.findMemberLocked(aID)
	b, _ := r.findMemberLocked(bID)
	c, _ := r.findMemberLocked(cID)
	a.score = 500
	b.score = 500
	c.score = 700
	a.lastTS = 5
	b.lastTS = 3
	ranked := r.rankLocked()
	r.mu.Unlock()

	assert.Equal(t, c, ranked[0]) // highest score
	assert.Equal(t, b, ranked[1]) // tie on score, lower logical ts wins
	assert.Equal(t, a, ranked[2])
}

func TestRankLockedUnansweredSortsLastAmongTies(t *testing.T) {
	r := newTestRoom("Tiebreaks")
	aID, _ := r.Join("Alice", RolePlayer, &fakeConn{})
	bID, _ := r.Join("Bob", RolePlayer, &fakeConn{})

	r.mu.Lock()
	a, _ := r.findMemberLocked(aID)
	b, _ := r.findMemberLocked(bID)
	a.score = 0
	b.score = 0
	a.lastTS = 0 // never answered
	b.lastTS = 1
	ranked := r.rankLocked()
	r.mu.Unlock()

	assert.Equal(t, b, ranked[0])
	assert.Equal(t, a, ranked[1])
}
