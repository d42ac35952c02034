package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/score"
)

// Registry owns the active sessions, keyed by access code.
type Registry interface {
	Put(s *Session)
	Get(code string) (*Session, bool)
	Delete(code string)
	List() []*Session
}

// QuestionRepository loads question content from the durable catalog.
type QuestionRepository interface {
	QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error)
}

// ScoreStore persists participant scores. Save failures are logged and
// never fed back into the live flow; HasScore backs the replay guard.
type ScoreStore interface {
	SaveScore(ctx context.Context, accessCode, participantID string, score int) error
	HasScore(ctx context.Context, accessCode, participantID string) (bool, error)
}

// Publisher mirrors room events to an external broker. Optional.
type Publisher interface {
	Publish(event string, payload any) error
}

// Config tunes the session cadence.
type Config struct {
	// Feedback is how long the reveal/explanation is shown after a
	// question closes.
	Feedback time.Duration
	// QuestionGap is the extra delay before an autonomous session
	// dispatches the next question.
	QuestionGap time.Duration
	// Grace is the slack allowed on answers that arrive just after expiry,
	// absorbing transport latency.
	Grace time.Duration
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		Feedback:    5 * time.Second,
		QuestionGap: 2 * time.Second,
		Grace:       500 * time.Millisecond,
	}
}

// Service contains the live session use cases: lifecycle, question
// sequencing, presence, pause/resume, and answer intake.
type Service struct {
	registry  Registry
	questions QuestionRepository
	scores    ScoreStore
	publisher Publisher
	cfg       Config
	now       func() time.Time
}

func NewService(registry Registry, questions QuestionRepository, scores ScoreStore, cfg Config) *Service {
	return &Service{
		registry:  registry,
		questions: questions,
		scores:    scores,
		cfg:       cfg,
		now:       time.Now,
	}
}

// NewServiceWithClock is test-only for deterministic timestamps.
func NewServiceWithClock(registry Registry, questions QuestionRepository, scores ScoreStore, cfg Config, now func() time.Time) *Service {
	svc := NewService(registry, questions, scores, cfg)
	svc.now = now
	return svc
}

// SetPublisher attaches an optional event mirror.
func (svc *Service) SetPublisher(p Publisher) { svc.publisher = p }

// publish fans an event to room subscribers and mirrors it to the broker.
// Callers hold the session lock; the broker call runs outside of it.
func (svc *Service) publish(s *Session, ev Event) {
	s.broadcastLocked(ev)
	if svc.publisher != nil {
		go func() {
			if err := svc.publisher.Publish(s.code+"."+ev.Name, ev.Payload); err != nil {
				log.Printf("[session] event mirror failed for %s/%s: %v", s.code, ev.Name, err)
			}
		}()
	}
}

// Start accepts a start command: it loads the question set, creates the
// session, and, for autonomous sessions, dispatches the first question.
// Starting an access code that is already live returns the live session
// untouched.
func (svc *Service) Start(ctx context.Context, accessCode, initiatorID string, questionIDs []string, parentCode string) error {
	if existing, ok := svc.registry.Get(accessCode); ok {
		if !existing.Status().Terminal() {
			return nil
		}
		svc.registry.Delete(accessCode)
	}

	questions, err := svc.questions.QuestionsByIDs(ctx, questionIDs)
	if err != nil {
		return fmt.Errorf("load questions for %s: %w", accessCode, err)
	}
	if len(questions) == 0 {
		return domain.ErrQuestionNotFound
	}

	s := NewSession(accessCode, initiatorID, parentCode, questions, svc.now)
	s.mu.Lock()
	s.status = domain.StatusRunning
	s.mu.Unlock()
	svc.registry.Put(s)

	log.Printf("[session] started %s with %d questions (linked=%v)", accessCode, len(questions), s.Linked())

	if !s.Linked() {
		return svc.Dispatch(accessCode, initiatorID, 0, "")
	}
	return nil
}

// Dispatch activates a question by positional index or, when targetID is
// non-empty, by explicit identifier (the identifier always wins). It fails
// without mutating state when the session or question cannot be resolved.
func (svc *Service) Dispatch(accessCode, callerID string, index int, targetID string) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(callerID); err != nil {
		return err
	}
	if s.status.Terminal() {
		return domain.ErrSessionEnded
	}
	if s.status == domain.StatusPaused {
		// A question dispatched while paused would arm a countdown whose
		// expiry the paused session discards. Resume first.
		return domain.ErrInvalidTransition
	}
	return svc.dispatchLocked(s, index, targetID)
}

func (s *Session) authorizeLocked(callerID string) error {
	if callerID != s.initiatorID {
		return domain.ErrNotAuthorized
	}
	return nil
}

// dispatchLocked resolves and activates a question. Caller holds s.mu.
func (svc *Service) dispatchLocked(s *Session, index int, targetID string) error {
	var q domain.Question
	if targetID != "" {
		found, idx := s.questionByID(targetID)
		if idx < 0 {
			return domain.ErrQuestionNotFound
		}
		q, index = found, idx
	} else {
		if index < 0 || index >= len(s.questions) {
			return domain.ErrQuestionNotFound
		}
		q = s.questions[index]
	}

	s.cancelExpiryLocked()

	now := svc.now()
	s.currentIdx = index
	s.currentID = q.ID
	s.asked[q.ID] = struct{}{}
	s.locked = false
	s.feedbackUntil = time.Time{}

	seconds := float64(q.AllottedSeconds())
	status := domain.TimerRunning
	if s.Linked() {
		// Linked sessions wait for an explicit timer start from the
		// controller.
		status = domain.TimerPaused
	}
	rec := newTimerRecord(seconds, status, now)
	s.timers[q.ID] = rec

	svc.publish(s, Event{Name: EventQuestion, Payload: QuestionPayload{
		Question: q.Public(),
		Index:    index,
		Total:    len(s.questions),
	}})
	svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(q.ID, now)})

	if status == domain.TimerRunning {
		svc.armQuestionExpiryLocked(s, rec)
	}
	log.Printf("[session] %s dispatched question %s (index %d)", s.code, q.ID, index)
	return nil
}

// armQuestionExpiryLocked schedules the answer-window close for the current
// question's remaining time.
func (svc *Service) armQuestionExpiryLocked(s *Session, rec *timerRecord) {
	d := time.Duration(rec.remaining(svc.now()) * float64(time.Second))
	s.armExpiryLocked(d, func(gen uint64) { svc.onExpired(s, gen) })
}

// onExpired is the timer authority's expiration callback. The generation
// check makes it fire at most once per question activation.
func (svc *Service) onExpired(s *Session, gen uint64) {
	s.mu.Lock()
	if !s.expiryValidLocked(gen) || s.status != domain.StatusRunning {
		s.mu.Unlock()
		return
	}
	svc.expireLocked(s)
	s.mu.Unlock()
}

// expireLocked closes the current answer window: fills default zero answers,
// recomputes totals, broadcasts the reveal and feedback countdown, persists
// scores, and schedules the next step. Caller holds s.mu.
func (svc *Service) expireLocked(s *Session) {
	q, ok := s.currentQuestionLocked()
	rec, hasTimer := s.currentTimerLocked()
	if !ok || !hasTimer {
		return
	}
	now := svc.now()
	s.cancelExpiryLocked()
	rec.stop(now)

	// Participants who never answered get a zero record so the cumulative
	// recompute and the stats see every (participant, question) pair.
	for _, p := range s.participants {
		if _, answered := p.Answer(q.ID); !answered {
			p.Answers = append(p.Answers, domain.AnswerRecord{
				QuestionID:  q.ID,
				SubmittedAt: now,
			})
		}
		p.Score = score.CumulativeScore(p)
	}

	svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(q.ID, now)})
	svc.publish(s, Event{Name: EventReveal, Payload: revealPayload(q)})
	svc.publish(s, Event{Name: EventLeaderboard, Payload: s.leaderboardLocked()})
	svc.publish(s, Event{Name: EventFeedback, Payload: FeedbackPayload{
		QuestionID: q.ID,
		Seconds:    svc.cfg.Feedback.Seconds(),
	}})
	s.feedbackUntil = now.Add(svc.cfg.Feedback)

	svc.persistScores(s)
	svc.armPostQuestionLocked(s)
}

// armPostQuestionLocked schedules what follows a closed answer window:
// completion when nothing is left to ask, otherwise the auto-advance delay
// for autonomous sessions. Caller holds s.mu.
func (svc *Service) armPostQuestionLocked(s *Session) {
	next := s.nextUnaskedLocked()
	if next < 0 {
		s.armExpiryLocked(svc.cfg.Feedback, func(gen uint64) { svc.onComplete(s, gen) })
		return
	}
	if s.Linked() {
		// Linked sessions advance only on explicit controller dispatch.
		return
	}
	s.armExpiryLocked(svc.cfg.Feedback+svc.cfg.QuestionGap, func(gen uint64) { svc.onAdvance(s, gen, next) })
}

func (svc *Service) onAdvance(s *Session, gen uint64, next int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.expiryValidLocked(gen) || s.status != domain.StatusRunning {
		return
	}
	if err := svc.dispatchLocked(s, next, ""); err != nil {
		log.Printf("[session] %s auto-advance failed: %v", s.code, err)
	}
}

func (svc *Service) onComplete(s *Session, gen uint64) {
	s.mu.Lock()
	if !s.expiryValidLocked(gen) || s.status.Terminal() {
		s.mu.Unlock()
		return
	}
	svc.endLocked(s, domain.StatusCompleted)
	s.mu.Unlock()
	svc.registry.Delete(s.code)
}

// endLocked transitions to a terminal state and emits the final
// leaderboard. Caller holds s.mu and handles registry eviction.
func (svc *Service) endLocked(s *Session, status domain.SessionStatus) {
	s.cancelExpiryLocked()
	if rec, ok := s.currentTimerLocked(); ok && rec.status != domain.TimerStopped {
		rec.stop(svc.now())
	}
	s.status = status
	lb := s.leaderboardLocked()
	svc.publish(s, Event{Name: EventEnd, Payload: EndPayload{
		AccessCode:  s.code,
		Status:      status,
		Leaderboard: lb,
	}})
	svc.persistScores(s)
	log.Printf("[session] %s ended with status %s", s.code, status)
}

// persistScores saves every participant's score fire-and-forget. Caller may
// hold s.mu; the store runs outside it.
func (svc *Service) persistScores(s *Session) {
	if svc.scores == nil {
		return
	}
	type entry struct {
		id    string
		score int
	}
	snapshot := make([]entry, 0, len(s.participants))
	for _, p := range s.participants {
		snapshot = append(snapshot, entry{id: p.ID, score: p.Score})
	}
	code := s.code
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, e := range snapshot {
			if err := svc.scores.SaveScore(ctx, code, e.id, e.score); err != nil {
				log.Printf("[session] score save failed for %s/%s: %v", code, e.id, err)
			}
		}
	}()
}

// Stop force-ends a session: it cancels the timer authority, emits the
// final leaderboard, and transitively stops sessions linked to this one.
func (svc *Service) Stop(accessCode, callerID string) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	if err := s.authorizeLocked(callerID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.status.Terminal() {
		s.mu.Unlock()
		return domain.ErrSessionEnded
	}
	svc.endLocked(s, domain.StatusStopped)
	s.mu.Unlock()
	svc.registry.Delete(accessCode)

	for _, child := range svc.registry.List() {
		if child.parentCode != accessCode {
			continue
		}
		child.mu.Lock()
		if !child.status.Terminal() {
			svc.endLocked(child, domain.StatusStopped)
		}
		child.mu.Unlock()
		svc.registry.Delete(child.code)
	}
	return nil
}

// Pause freezes the current question's countdown. Only valid while the
// session is running; anything else is reported to the caller and changes
// nothing.
func (svc *Service) Pause(accessCode, callerID string) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	if err := s.authorizeLocked(callerID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.status != domain.StatusRunning {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	rec, ok := s.currentTimerLocked()
	if !ok {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	now := svc.now()
	s.cancelExpiryLocked()
	// A stopped record stays stopped: pausing during the feedback window
	// only delays advancement, it never reopens the closed answer window.
	closed := rec.status == domain.TimerStopped
	if !closed {
		rec.pause(now)
	}
	s.status = domain.StatusPaused
	remaining := rec.timeLeft
	questionID := s.currentID
	svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(questionID, now)})
	parent := s.parentCode
	s.mu.Unlock()

	log.Printf("[session] paused %s with %.1fs left", accessCode, remaining)
	if parent != "" && !closed {
		svc.propagateTimer(parent, remaining, domain.TimerPaused)
	}
	return nil
}

// Resume restarts a paused countdown. Total available answer time is
// invariant across any number of pause/resume cycles.
func (svc *Service) Resume(accessCode, callerID string) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	if err := s.authorizeLocked(callerID); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.status != domain.StatusPaused {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	rec, ok := s.currentTimerLocked()
	if !ok {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	now := svc.now()
	if rec.status == domain.TimerStopped {
		// Paused during the feedback window: the record is untouched and
		// only the post-question schedule needs re-arming.
		s.status = domain.StatusRunning
		svc.armPostQuestionLocked(s)
		svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(s.currentID, now)})
		s.mu.Unlock()
		log.Printf("[session] resumed %s during feedback", accessCode)
		return nil
	}
	rec.resume(now)
	s.status = domain.StatusRunning
	svc.armQuestionExpiryLocked(s, rec)
	remaining := rec.remaining(now)
	svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(s.currentID, now)})
	parent := s.parentCode
	s.mu.Unlock()

	log.Printf("[session] resumed %s with %.1fs left", accessCode, remaining)
	if parent != "" {
		svc.propagateTimer(parent, remaining, domain.TimerRunning)
	}
	return nil
}

// propagateTimer keeps a linked parent session's timer numerically
// consistent with its child.
func (svc *Service) propagateTimer(parentCode string, timeLeft float64, status domain.TimerStatus) {
	parent, ok := svc.registry.Get(parentCode)
	if !ok {
		return
	}
	parent.mu.Lock()
	defer parent.mu.Unlock()
	rec, ok := parent.currentTimerLocked()
	if !ok || rec.status == domain.TimerStopped {
		return
	}
	now := svc.now()
	// The parent's own expiry handle follows the propagated state, so a
	// deadline armed before the child paused cannot fire afterwards.
	parent.cancelExpiryLocked()
	rec.set(timeLeft, status, now)
	svc.publish(parent, Event{Name: EventTimer, Payload: rec.snapshot(parent.currentID, now)})
	if status == domain.TimerRunning {
		svc.armQuestionExpiryLocked(parent, rec)
	}
}

// SetTimer stores the remaining time for the current question and
// broadcasts it. A zero time closes the answer window immediately; negative
// requests are clamped to zero and logged as a caller error.
func (svc *Service) SetTimer(accessCode, callerID string, timeLeft float64, force domain.TimerStatus) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorizeLocked(callerID); err != nil {
		return err
	}
	if s.status.Terminal() {
		return domain.ErrSessionEnded
	}
	rec, ok := s.currentTimerLocked()
	if !ok {
		return domain.ErrQuestionNotFound
	}
	if timeLeft < 0 {
		log.Printf("[session] %s requested negative timeLeft %.1f; clamping to zero", accessCode, timeLeft)
		timeLeft = 0
	}

	now := svc.now()
	s.cancelExpiryLocked()
	rec.set(timeLeft, force, now)

	if timeLeft == 0 {
		svc.expireLocked(s)
		return nil
	}
	svc.publish(s, Event{Name: EventTimer, Payload: rec.snapshot(s.currentID, now)})
	if rec.status == domain.TimerRunning {
		svc.armQuestionExpiryLocked(s, rec)
	}
	return nil
}

// Lock closes submissions early; Unlock reopens them while time remains.
func (svc *Service) Lock(accessCode, callerID string, locked bool) error {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(callerID); err != nil {
		return err
	}
	s.locked = locked
	svc.publish(s, Event{Name: EventLocked, Payload: LockPayload{QuestionID: s.currentID, Locked: locked}})
	return nil
}

// SubmitAnswer validates and scores an answer for the current question.
// Resubmission before the window closes replaces the prior record and the
// participant's cumulative score is recomputed in full.
func (svc *Service) SubmitAnswer(accessCode, connID, questionID string, value domain.AnswerValue) (AnswerReceipt, error) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return AnswerReceipt{}, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return AnswerReceipt{}, domain.ErrSessionEnded
	}
	p, ok := s.participantByConnLocked(connID)
	if !ok {
		return AnswerReceipt{}, domain.ErrParticipantNotFound
	}
	q, ok := s.currentQuestionLocked()
	if !ok || q.ID != questionID {
		return AnswerReceipt{}, domain.ErrQuestionNotFound
	}
	rec, ok := s.currentTimerLocked()
	if !ok {
		return AnswerReceipt{}, domain.ErrQuestionNotFound
	}
	if s.locked {
		return AnswerReceipt{}, domain.ErrAnswersLocked
	}

	now := svc.now()
	switch rec.status {
	case domain.TimerStopped:
		return AnswerReceipt{}, domain.ErrTimeExpired
	case domain.TimerRunning:
		if rec.overrun(now) > svc.cfg.Grace.Seconds() {
			return AnswerReceipt{}, domain.ErrTimeExpired
		}
	case domain.TimerPaused:
		// Answers stay accepted while the question is paused.
	}

	if err := value.ValidateFor(q); err != nil {
		return AnswerReceipt{}, err
	}

	elapsed := rec.elapsedMs(now)
	result := score.Calculate(q, score.Submission{Value: value, ElapsedMs: elapsed}, len(s.questions))

	record := domain.AnswerRecord{
		QuestionID:  q.ID,
		Value:       value,
		ElapsedMs:   elapsed,
		Correct:     result.Correct,
		Base:        result.Base,
		Penalty:     result.Penalty,
		Normalized:  result.Normalized,
		SubmittedAt: now,
	}
	replaced := false
	for i := range p.Answers {
		if p.Answers[i].QuestionID == q.ID {
			p.Answers[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		p.Answers = append(p.Answers, record)
	}
	p.Score = score.CumulativeScore(p)
	p.LastUpdated = now

	svc.persistScores(s)
	return AnswerReceipt{QuestionID: q.ID, Received: true}, nil
}

// Join registers a participant connection and returns the catch-up events a
// late joiner needs. Reconnection with the same durable participant ID keeps
// score and answer history; only the connection mapping changes.
func (svc *Service) Join(accessCode, connID, participantID, displayName, avatar string) ([]Event, error) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	s.mu.Lock()
	_, known := s.participants[participantID]
	s.mu.Unlock()

	// A participant unknown to the live session but with a persisted score
	// for this access code is replaying a game they already finished.
	if !known && svc.scores != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		played, err := svc.scores.HasScore(ctx, accessCode, participantID)
		cancel()
		if err != nil {
			log.Printf("[session] replay check failed for %s/%s: %v", accessCode, participantID, err)
		} else if played {
			return nil, domain.ErrAlreadyPlayed
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return nil, domain.ErrSessionEnded
	}
	s.joinLocked(connID, participantID, displayName, avatar)
	svc.publish(s, Event{Name: EventLeaderboard, Payload: s.leaderboardLocked()})
	return s.catchUpLocked(), nil
}

// Disconnect drops the connection mapping only; participant data is kept
// for final scoring and rejoin.
func (svc *Service) Disconnect(accessCode, connID string) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return
	}
	s.mu.Lock()
	s.disconnectLocked(connID)
	empty := len(s.conns) == 0
	hasAnswers := false
	for _, p := range s.participants {
		if len(p.Answers) > 0 {
			hasAnswers = true
			break
		}
	}
	terminal := s.status.Terminal()
	s.mu.Unlock()

	// Sessions nobody ever answered in are evicted with the last
	// connection; anything with recorded answers is retained for rejoin.
	if empty && (terminal || !hasAnswers) {
		svc.registry.Delete(accessCode)
	}
}

// Subscribe attaches to a session's room broadcast.
func (svc *Service) Subscribe(accessCode string) (<-chan Event, func(), error) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := s.Subscribe()
	return ch, cancel, nil
}

// Leaderboard computes the current standings on demand.
func (svc *Service) Leaderboard(accessCode string) (domain.Leaderboard, error) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked(), nil
}

// Stats broadcasts the answer-option distribution for a question to the
// session room (controller-triggered).
func (svc *Service) Stats(accessCode, callerID, questionID string) (score.Stats, error) {
	s, ok := svc.registry.Get(accessCode)
	if !ok {
		return score.Stats{}, domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorizeLocked(callerID); err != nil {
		return score.Stats{}, err
	}
	if questionID == "" {
		questionID = s.currentID
	}
	if _, idx := s.questionByID(questionID); idx < 0 {
		return score.Stats{}, domain.ErrQuestionNotFound
	}
	stats := score.AnswerStats(questionID, s.participants)
	svc.publish(s, Event{Name: EventStats, Payload: stats})
	return stats, nil
}
