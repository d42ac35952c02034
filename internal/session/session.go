package session

import (
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/score"

	"sync"
)

// Session is the in-memory aggregate for one running quiz or tournament,
// keyed by access code. All mutation happens under mu; handlers for the same
// session never interleave. The expiry handle is single-owner: every state
// transition cancels it and bumps the generation before arming a new one, so
// a stale callback can never act on moved-on state.
type Session struct {
	code        string
	initiatorID string
	parentCode  string // linked mode when non-empty
	questions   []domain.Question
	createdAt   time.Time
	now         func() time.Time

	mu           sync.Mutex
	status       domain.SessionStatus
	currentIdx   int
	currentID    string
	asked        map[string]struct{}
	timers       map[string]*timerRecord
	locked       bool
	conns        map[string]string // connection id -> participant id
	participants map[string]*domain.Participant
	subscribers  map[chan Event]struct{}

	expiry        *time.Timer
	expiryGen     uint64
	feedbackUntil time.Time
}

// NewSession builds an idle session aggregate. Callers register it with a
// Registry and drive it through a Service.
func NewSession(code, initiatorID, parentCode string, questions []domain.Question, now func() time.Time) *Session {
	return &Session{
		code:         code,
		initiatorID:  initiatorID,
		parentCode:   parentCode,
		questions:    questions,
		createdAt:    now(),
		now:          now,
		status:       domain.StatusPreparing,
		currentIdx:   -1,
		asked:        make(map[string]struct{}),
		timers:       make(map[string]*timerRecord),
		conns:        make(map[string]string),
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan Event]struct{}),
	}
}

// Code returns the session's access code.
func (s *Session) Code() string { return s.code }

// Linked reports whether the session's cadence is driven by a parent
// teacher-paced session.
func (s *Session) Linked() bool { return s.parentCode != "" }

// Status returns the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// IsEmpty reports whether no connection is mapped to the session.
func (s *Session) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns) == 0
}

// HasAnswers reports whether any participant has recorded an answer.
func (s *Session) HasAnswers() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if len(p.Answers) > 0 {
			return true
		}
	}
	return false
}

// questionByID resolves a question and its index, or a negative index.
func (s *Session) questionByID(id string) (domain.Question, int) {
	for i, q := range s.questions {
		if q.ID == id {
			return q, i
		}
	}
	return domain.Question{}, -1
}

// nextUnaskedLocked picks the question to auto-advance to: the first
// not-yet-asked question after the current index, wrapping to the start so a
// controller jump cannot strand unplayed questions. Negative when every
// question has been asked.
func (s *Session) nextUnaskedLocked() int {
	n := len(s.questions)
	for off := 1; off <= n; off++ {
		i := (s.currentIdx + off) % n
		if i < 0 {
			i += n
		}
		if _, done := s.asked[s.questions[i].ID]; !done {
			return i
		}
	}
	return -1
}

// currentQuestionLocked returns the active question, if any.
func (s *Session) currentQuestionLocked() (domain.Question, bool) {
	if s.currentID == "" {
		return domain.Question{}, false
	}
	q, idx := s.questionByID(s.currentID)
	return q, idx >= 0
}

// currentTimerLocked returns the active question's timer record, if any.
func (s *Session) currentTimerLocked() (*timerRecord, bool) {
	if s.currentID == "" {
		return nil, false
	}
	rec, ok := s.timers[s.currentID]
	return rec, ok
}

// cancelExpiryLocked stops any pending expiry callback and invalidates its
// generation. Must precede every transition that changes the current
// question, pauses, or stops the session.
func (s *Session) cancelExpiryLocked() {
	s.expiryGen++
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

// armExpiryLocked schedules fn after d, replacing any pending callback. The
// callback re-checks the generation under the session lock before acting.
func (s *Session) armExpiryLocked(d time.Duration, fn func(gen uint64)) {
	s.cancelExpiryLocked()
	gen := s.expiryGen
	if d < 0 {
		d = 0
	}
	s.expiry = time.AfterFunc(d, func() { fn(gen) })
}

// expiryValidLocked reports whether a callback with the given generation is
// still the owner.
func (s *Session) expiryValidLocked(gen uint64) bool {
	return gen == s.expiryGen
}

// joinLocked registers or re-registers a participant. Matching is by the
// durable participant ID, so a reconnect with a fresh connection ID only
// updates the mapping and keeps score and answer history.
func (s *Session) joinLocked(connID, participantID, displayName, avatar string) *domain.Participant {
	now := s.now()
	p, ok := s.participants[participantID]
	if ok {
		if displayName != "" {
			p.DisplayName = displayName
		}
		if avatar != "" {
			p.Avatar = avatar
		}
	} else {
		p = &domain.Participant{
			ID:          participantID,
			DisplayName: displayName,
			Avatar:      avatar,
			LastUpdated: now,
		}
		s.participants[participantID] = p
	}
	s.conns[connID] = participantID
	return p
}

// disconnectLocked removes only the connection mapping; participant data is
// retained for final scoring and rejoin.
func (s *Session) disconnectLocked(connID string) {
	delete(s.conns, connID)
}

func (s *Session) participantByConnLocked(connID string) (*domain.Participant, bool) {
	pid, ok := s.conns[connID]
	if !ok {
		return nil, false
	}
	p, ok := s.participants[pid]
	return p, ok
}

// Subscribe returns a channel receiving the session's room events. The
// caller must invoke the cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcastLocked fans an event out to all room subscribers without
// blocking; a slow subscriber loses its oldest queued event instead of
// stalling the session.
func (s *Session) broadcastLocked(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

// leaderboardLocked projects the current standings.
func (s *Session) leaderboardLocked() domain.Leaderboard {
	return score.Leaderboard(s.code, s.participants, s.now())
}

// catchUpLocked synthesizes the event sequence a late joiner needs to
// converge with already-connected participants: current question, timer
// snapshot, and, when the window is already closed, the reveal and any
// in-progress feedback countdown.
func (s *Session) catchUpLocked() []Event {
	q, ok := s.currentQuestionLocked()
	if !ok {
		return nil
	}
	now := s.now()
	events := []Event{{
		Name: EventQuestion,
		Payload: QuestionPayload{
			Question: q.Public(),
			Index:    s.currentIdx,
			Total:    len(s.questions),
		},
	}}
	if rec, ok := s.currentTimerLocked(); ok {
		events = append(events, Event{Name: EventTimer, Payload: rec.snapshot(q.ID, now)})
		if rec.status == domain.TimerStopped {
			events = append(events, Event{Name: EventReveal, Payload: revealPayload(q)})
			if s.feedbackUntil.After(now) {
				events = append(events, Event{Name: EventFeedback, Payload: FeedbackPayload{
					QuestionID: q.ID,
					Seconds:    s.feedbackUntil.Sub(now).Seconds(),
				}})
			}
			events = append(events, Event{Name: EventLeaderboard, Payload: s.leaderboardLocked()})
		}
	}
	return events
}

func revealPayload(q domain.Question) RevealPayload {
	correct := make([]int, 0, len(q.Options))
	for i, opt := range q.Options {
		if opt.Correct {
			correct = append(correct, i)
		}
	}
	return RevealPayload{
		QuestionID:     q.ID,
		CorrectOptions: correct,
		Explanation:    q.Explanation,
	}
}
