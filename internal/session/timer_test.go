package session

import (
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func TestTimerRemainingWhileRunning(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newTimerRecord(20, domain.TimerRunning, start)

	if got := rec.remaining(start.Add(5 * time.Second)); got != 15 {
		t.Fatalf("remaining = %v, want 15", got)
	}
	if got := rec.remaining(start.Add(time.Minute)); got != 0 {
		t.Fatalf("remaining past window = %v, want 0", got)
	}
}

func TestTimerPauseResumeInvariance(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newTimerRecord(20, domain.TimerRunning, start)

	// 5s used, then a long pause.
	now := start.Add(5 * time.Second)
	rec.pause(now)
	if rec.timeLeft != 15 {
		t.Fatalf("timeLeft after pause = %v, want 15", rec.timeLeft)
	}

	// The pause duration must not count against the window.
	now = now.Add(10 * time.Minute)
	if got := rec.remaining(now); got != 15 {
		t.Fatalf("remaining while paused = %v, want 15", got)
	}
	rec.resume(now)

	now = now.Add(5 * time.Second)
	if got := rec.remaining(now); got != 10 {
		t.Fatalf("remaining after resume = %v, want 10", got)
	}
	if got := rec.elapsedMs(now); got != 10_000 {
		t.Fatalf("elapsedMs = %d, want 10000", got)
	}
}

func TestTimerSetClampsAndRaisesInitial(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newTimerRecord(20, domain.TimerRunning, start)

	rec.set(-3, "", start)
	if rec.timeLeft != 0 {
		t.Fatalf("timeLeft = %v, want 0 after negative set", rec.timeLeft)
	}

	rec.set(45, domain.TimerPaused, start)
	if rec.initial != 45 {
		t.Fatalf("initial = %v, want raised to 45", rec.initial)
	}
	if rec.status != domain.TimerPaused {
		t.Fatalf("status = %v, want paused", rec.status)
	}
}

func TestTimerOverrun(t *testing.T) {
	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := newTimerRecord(20, domain.TimerRunning, start)

	if got := rec.overrun(start.Add(10 * time.Second)); got > 0 {
		t.Fatalf("overrun with time left = %v, want <= 0", got)
	}
	if got := rec.overrun(start.Add(21 * time.Second)); got != 1 {
		t.Fatalf("overrun = %v, want 1", got)
	}

	rec.pause(start.Add(5 * time.Second))
	if got := rec.overrun(start.Add(time.Hour)); got != 0 {
		t.Fatalf("overrun while paused = %v, want 0", got)
	}
}
