package room

import (
	"strconv"
	"time"

	"github.com/trivionhq/trivion/internal/v1/metrics"
	"github.com/trivionhq/trivion/internal/v1/trivionerr"
)

// Overridable in tests to avoid multi-second sleeps.
var (
	countdownDuration = 3 * time.Second
	// podiumPositionDelay separates each podium reveal (3rd, then 2nd,
	// then 1st); podiumCompleteDelay is the longer pause before the
	// final podium_complete event.
	podiumPositionDelay = 1 * time.Second
	podiumCompleteDelay = 2 * time.Second
)

type countdownPayload struct {
	Seconds int `json:"seconds"`
}

type questionPayload struct {
	Question  QuestionPublic `json:"question"`
	Number    int            `json:"number"`
	Total     int            `json:"total"`
	Timestamp uint64         `json:"timestamp"`
}

type playerAnsweredPayload struct {
	Answered int `json:"answered"`
	Total    int `json:"total"`
}

type resultsPayload struct {
	Ranking       []RankingEntry `json:"ranking"`
	CorrectOption int            `json:"correct_option"`
	Stats         [4]int         `json:"stats"`
}

type podiumPositionPayload struct {
	Position int        `json:"position"`
	Member   MemberView `json:"member"`
}

type podiumCompletePayload struct {
	Ranking []RankingEntry `json:"ranking"`
}

type gameEndedPayload struct {
	Members []MemberView `json:"members"`
}

// scheduleLocked runs fn after d, only if the room's generation has not
// advanced past gen in the meantime. This is the cooperative-cancellation
// idiom used throughout the coordinator: rather than tracking *time.Timer
// handles for every in-flight callback, every phase transition simply bumps
// r.generation so stale callbacks self-cancel on arrival.
func (r *Room) scheduleLocked(gen uint64, d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if gen != r.generation {
			return
		}
		fn()
	})
}

// Start transitions lobby -> countdown. Requires the caller to be the
// administrator, at least one active player present, and a non-empty
// question bank.
func (r *Room) Start(adminID MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(adminID); err != nil {
		return err
	}
	if r.phase != PhaseLobby {
		return trivionerr.New(trivionerr.KindPhaseViolation, "game already started")
	}
	if len(r.questions) == 0 {
		return trivionerr.New(trivionerr.KindPhaseViolation, "cannot start without at least one question")
	}
	players := 0
	for _, m := range r.byID {
		if m.role == RolePlayer {
			m.waiting = false
			players++
		}
	}
	if players == 0 {
		return trivionerr.New(trivionerr.KindPhaseViolation, "cannot start with no players")
	}

	r.questionIndex = 0
	r.enterCountdownLocked()
	return nil
}

func (r *Room) enterCountdownLocked() {
	r.phase = PhaseCountdown
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseCountdown)).Inc()
	r.generation++
	gen := r.generation
	seconds := int(countdownDuration / time.Second)
	r.broadcastLocked(EventCountdown, countdownPayload{Seconds: seconds})
	r.scheduleLocked(gen, countdownDuration, func() {
		r.enterQuestionLocked()
	})
}

func (r *Room) enterQuestionLocked() {
	q, ok := r.currentQuestionLocked()
	if !ok {
		return
	}
	r.phase = PhaseQuestion
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseQuestion)).Inc()
	r.generation++
	gen := r.generation
	r.pendingAnswers = make(map[MemberID]*answerRecord)
	r.questionSentAt = time.Now()
	ts := r.clk.Tick()

	r.broadcastLocked(EventQuestion, questionPayload{
		Question:  q.Public(),
		Number:    r.questionIndex + 1,
		Total:     len(r.questions),
		Timestamp: ts,
	})

	r.scheduleLocked(gen, time.Duration(q.DeadlineSeconds)*time.Second, func() {
		r.questionDeadlineLocked(gen)
	})
}

// questionDeadlineLocked is invoked by scheduleLocked with r.mu already
// held and gen already validated against r.generation.
func (r *Room) questionDeadlineLocked(gen uint64) {
	r.markAbsentPlayersLocked()
	r.computeResultsLocked()
}

// markAbsentPlayersLocked records a zero-point timeout for every active
// player who never submitted an answer to the current question.
func (r *Room) markAbsentPlayersLocked() {
	q, ok := r.currentQuestionLocked()
	deadline := time.Duration(0)
	if ok {
		deadline = time.Duration(q.DeadlineSeconds) * time.Second
	}
	for _, m := range r.activePlayersLocked() {
		if _, answered := r.pendingAnswers[m.id]; answered {
			continue
		}
		r.pendingAnswers[m.id] = &answerRecord{choice: -1, timedOut: true, elapsed: deadline}
	}
}

// SubmitAnswer records an active player's answer to the current question.
func (r *Room) SubmitAnswer(id MemberID, choice int, clientTimestamp uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase != PhaseQuestion {
		return trivionerr.New(trivionerr.KindPhaseViolation, "no question is currently active")
	}
	m, ok := r.findMemberLocked(id)
	if !ok || m.role != RolePlayer || m.waiting {
		return trivionerr.New(trivionerr.KindNotAuthorized, "only active players may answer")
	}
	if _, already := r.pendingAnswers[id]; already {
		return trivionerr.New(trivionerr.KindAlreadyAnswered, "already answered this question")
	}
	if choice < 0 || choice > 3 {
		return trivionerr.New(trivionerr.KindOptionOutOfRange, "choice must be 0-3")
	}

	q, _ := r.currentQuestionLocked()
	elapsed := time.Since(r.questionSentAt)
	logicalTS := r.clk.Observe(clientTimestamp)
	correct := choice == q.CorrectOption
	points := scorePoints(correct, elapsed, time.Duration(q.DeadlineSeconds)*time.Second)

	r.pendingAnswers[id] = &answerRecord{choice: choice, logicalTS: logicalTS, elapsed: elapsed, points: points}
	m.score += points
	m.lastTS = logicalTS
	metrics.AnswersSubmitted.WithLabelValues(strconv.FormatBool(correct)).Inc()

	answered := len(r.pendingAnswers)
	total := len(r.activePlayersLocked())
	r.broadcastLocked(EventPlayerAnswered, playerAnsweredPayload{Answered: answered, Total: total})

	if answered >= total {
		r.generation++ // invalidate the pending deadline timer
		r.computeResultsLocked()
	}
	return nil
}

func (r *Room) computeResultsLocked() {
	q, _ := r.currentQuestionLocked()
	var stats [4]int
	for _, rec := range r.pendingAnswers {
		if !rec.timedOut && rec.choice >= 0 && rec.choice <= 3 {
			stats[rec.choice]++
		}
	}

	r.phase = PhaseResults
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseResults)).Inc()
	r.generation++
	r.broadcastLocked(EventResults, resultsPayload{
		Ranking:       rankingEntries(r.rankLocked()),
		CorrectOption: q.CorrectOption,
		Stats:         stats,
	})
}

// requireAdminLocked verifies id is the room's current administrator.
func (r *Room) requireAdminLocked(id MemberID) error {
	m, ok := r.findMemberLocked(id)
	if !ok || m.role != RoleAdministrator {
		return trivionerr.New(trivionerr.KindNotAuthorized, "administrator role required")
	}
	return nil
}

// Next advances the game. From results it moves to the next question's
// countdown, or to the podium sequence once the bank is exhausted. From
// leaderboard it starts a fresh game: scores and waiting flags reset.
func (r *Room) Next(adminID MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(adminID); err != nil {
		return err
	}

	switch r.phase {
	case PhaseResults:
		if r.questionIndex+1 < len(r.questions) {
			r.questionIndex++
			r.enterCountdownLocked()
			return nil
		}
		r.enterPodiumLocked()
		return nil
	case PhaseLeaderboard:
		r.resetForNewGameLocked()
		return nil
	default:
		return trivionerr.New(trivionerr.KindPhaseViolation, "next is not valid in the current phase")
	}
}

func (r *Room) enterPodiumLocked() {
	r.phase = PhasePodium
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhasePodium)).Inc()
	r.generation++
	gen := r.generation

	ranking := r.rankLocked()
	r.broadcastLocked(EventPodiumStart, nil)

	top := ranking
	if len(top) > 3 {
		top = top[:3]
	}
	// Reveal bottom-up: third place, then second, then first.
	r.scheduleRevealLocked(gen, top, len(top)-1)
}

// scheduleRevealLocked reveals podium position idx (0 = first place) after
// podiumPositionDelay, then recurses for idx-1; once every position has
// been revealed, it waits the longer podiumCompleteDelay before emitting
// podium_complete and transitioning to the leaderboard.
func (r *Room) scheduleRevealLocked(gen uint64, top []*member, idx int) {
	delay := podiumPositionDelay
	if idx < 0 {
		delay = podiumCompleteDelay
	}
	r.scheduleLocked(gen, delay, func() {
		if idx < 0 {
			r.phase = PhaseLeaderboard
			metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseLeaderboard)).Inc()
			r.broadcastLocked(EventPodiumComplete, podiumCompletePayload{Ranking: rankingEntries(r.rankLocked())})
			return
		}
		r.broadcastLocked(EventPodiumPosition, podiumPositionPayload{
			Position: idx + 1,
			Member:   top[idx].view(),
		})
		r.scheduleRevealLocked(gen, top, idx-1)
	})
}

// resetForNewGameLocked clears scores and waiting flags and returns to the
// lobby, ready for another round with the same membership.
func (r *Room) resetForNewGameLocked() {
	for _, m := range r.byID {
		m.score = 0
		m.waiting = false
		m.lastTS = 0
	}
	r.questionIndex = -1
	r.pendingAnswers = make(map[MemberID]*answerRecord)
	r.phase = PhaseLobby
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseLobby)).Inc()
	r.generation++
	r.broadcastLocked(EventGameEnded, gameEndedPayload{Members: r.snapshotLocked()})
}

// End aborts the game immediately from any phase, returning to the lobby.
// Unlike Next's leaderboard -> lobby transition, End does not reset scores
// or waiting flags: it is an administrator bail-out mid-game, not a
// deliberate "play again".
func (r *Room) End(adminID MemberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(adminID); err != nil {
		return err
	}
	if r.phase == PhaseLobby {
		return trivionerr.New(trivionerr.KindPhaseViolation, "no game in progress")
	}

	r.phase = PhaseLobby
	metrics.RoomPhaseTransitions.WithLabelValues(string(PhaseLobby)).Inc()
	r.questionIndex = -1
	r.pendingAnswers = make(map[MemberID]*answerRecord)
	r.generation++
	r.broadcastLocked(EventGameEnded, gameEndedPayload{Members: r.snapshotLocked()})
	return nil
}

// RemoveMember lets the administrator kick a member outright.
func (r *Room) RemoveMember(adminID, targetID MemberID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireAdminLocked(adminID); err != nil {
		return err
	}
	if targetID == adminID {
		return trivionerr.New(trivionerr.KindNotAuthorized, "administrator cannot remove themself")
	}
	target, ok := r.findMemberLocked(targetID)
	if !ok {
		return trivionerr.New(trivionerr.KindRoomNotFound, "member not found")
	}
	if target.conn != nil {
		target.conn.Send(EventKicked, kickedPayload{Reason: reason})
	}
	r.closeReconnectSlotLocked(targetID)
	r.removeMemberLocked(targetID)
	r.emptyCheckLocked()
	r.broadcastLocked(EventMemberLeft, memberLeftPayload{Name: target.name, Members: r.snapshotLocked()})
	return nil
}

type kickedPayload struct {
	Reason string `json:"reason"`
}
