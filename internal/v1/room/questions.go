package room

import (
	"strings"

	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

const (
	minDeadlineSeconds = 5
	maxDeadlineSeconds = 60
)

// AppendQuestion adds a question to the bank. Only permitted while the room
// is in the lobby; a game in progress has already fixed its question order.
func (r *Room) AppendQuestion(q Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseLobby {
		return trivionerr.New(trivionerr.KindPhaseViolation, "questions can only be added in the lobby")
	}
	if strings.TrimSpace(q.Text) == "" {
		return trivionerr.New(trivionerr.KindNameInvalid, "question text must not be empty")
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return trivionerr.New(trivionerr.KindNameInvalid, "all four options must be non-empty")
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption > 3 {
		return trivionerr.New(trivionerr.KindOptionOutOfRange, "correct_option must be 0-3")
	}
	if q.DeadlineSeconds < minDeadlineSeconds || q.DeadlineSeconds > maxDeadlineSeconds {
		return trivionerr.New(trivionerr.KindNameInvalid, "deadline_seconds must be between 5 and 60")
	}

	r.questions = append(r.questions, q)
	return nil
}

// Questions returns a copy of the question bank.
func (r *Room) Questions() []Question {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Question, len(r.questions))
	copy(out, r.questions)
	return out
}

func (r *Room) currentQuestionLocked() (Question, bool) {
	if r.questionIndex < 0 || r.questionIndex >= len(r.questions) {
		return Question{}, false
	}
	return r.questions[r.questionIndex], true
}
