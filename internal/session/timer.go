package session

import (
	"time"

	"quiz-session-service/internal/domain"
)

// timerRecord is the canonical countdown state for one question. timeLeft is
// the remaining seconds as of updatedAt; while the timer runs, the true
// remainder is derived from the wall clock so drift cannot accumulate across
// pause/resume cycles.
type timerRecord struct {
	status    domain.TimerStatus
	timeLeft  float64
	initial   float64
	updatedAt time.Time
}

func newTimerRecord(seconds float64, status domain.TimerStatus, now time.Time) *timerRecord {
	return &timerRecord{
		status:    status,
		timeLeft:  seconds,
		initial:   seconds,
		updatedAt: now,
	}
}

// remaining computes the seconds left at the given instant.
func (t *timerRecord) remaining(now time.Time) float64 {
	if t.status != domain.TimerRunning {
		return t.timeLeft
	}
	left := t.timeLeft - now.Sub(t.updatedAt).Seconds()
	if left < 0 {
		return 0
	}
	return left
}

// overrun reports how many seconds past zero a running countdown has gone.
// Non-positive while time remains or the timer is not running.
func (t *timerRecord) overrun(now time.Time) float64 {
	if t.status != domain.TimerRunning {
		return 0
	}
	return now.Sub(t.updatedAt).Seconds() - t.timeLeft
}

// elapsedMs reports how much of the answer window has been used.
func (t *timerRecord) elapsedMs(now time.Time) int64 {
	return int64((t.initial - t.remaining(now)) * 1000)
}

// pause freezes the countdown, storing the remainder.
func (t *timerRecord) pause(now time.Time) {
	t.timeLeft = t.remaining(now)
	t.status = domain.TimerPaused
	t.updatedAt = now
}

// resume restarts the countdown from the stored remainder. The accumulated
// paused duration is absorbed by resetting updatedAt, so the total available
// time is invariant under any number of pause/resume cycles.
func (t *timerRecord) resume(now time.Time) {
	t.status = domain.TimerRunning
	t.updatedAt = now
}

// set overwrites the remaining time, keeping the record's status unless one
// is forced.
func (t *timerRecord) set(seconds float64, force domain.TimerStatus, now time.Time) {
	if seconds < 0 {
		seconds = 0
	}
	t.timeLeft = seconds
	if seconds > t.initial {
		t.initial = seconds
	}
	if force != "" {
		t.status = force
	}
	t.updatedAt = now
}

// stop closes the answer window.
func (t *timerRecord) stop(now time.Time) {
	t.timeLeft = 0
	t.status = domain.TimerStopped
	t.updatedAt = now
}

func (t *timerRecord) snapshot(questionID string, now time.Time) domain.TimerSnapshot {
	return domain.TimerSnapshot{
		QuestionID: questionID,
		Status:     t.status,
		TimeLeft:   t.remaining(now),
		Initial:    t.initial,
		UpdatedAt:  now.UnixMilli(),
	}
}
