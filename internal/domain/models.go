package domain

import (
	"strings"
	"time"
)

// QuestionType discriminates how a question is answered and scored.
type QuestionType string

const (
	QuestionSingle  QuestionType = "single"
	QuestionMulti   QuestionType = "multi"
	QuestionNumeric QuestionType = "numeric"
)

// Option represents a possible answer for a question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models one timed question in a session. Immutable once loaded.
type Question struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Options     []Option     `json:"options"`
	Seconds     int          `json:"seconds"` // allotted answer time; defaults to 20 if zero
	Explanation string       `json:"explanation,omitempty"`
}

// AllottedSeconds returns the answer window length, applying the default.
func (q Question) AllottedSeconds() int {
	if q.Seconds > 0 {
		return q.Seconds
	}
	return 20
}

// CorrectCount returns how many options are flagged correct.
func (q Question) CorrectCount() int {
	n := 0
	for _, opt := range q.Options {
		if opt.Correct {
			n++
		}
	}
	return n
}

// PublicOption is an option with correctness stripped.
type PublicOption struct {
	Text string `json:"text"`
}

// PublicQuestion is the sanitized view sent to participants.
type PublicQuestion struct {
	ID      string         `json:"id"`
	Text    string         `json:"text"`
	Type    QuestionType   `json:"type"`
	Options []PublicOption `json:"options"`
	Seconds int            `json:"seconds"`
}

// Public strips correctness flags and the explanation so the payload can be
// broadcast while the answer window is open.
func (q Question) Public() PublicQuestion {
	opts := make([]PublicOption, 0, len(q.Options))
	for _, opt := range q.Options {
		opts = append(opts, PublicOption{Text: opt.Text})
	}
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Type:    q.Type,
		Options: opts,
		Seconds: q.AllottedSeconds(),
	}
}

// TimerStatus is the state of a question countdown.
type TimerStatus string

const (
	TimerRunning TimerStatus = "running"
	TimerPaused  TimerStatus = "paused"
	TimerStopped TimerStatus = "stopped"
)

// TimerSnapshot is the broadcast view of a question timer.
type TimerSnapshot struct {
	QuestionID string      `json:"questionId"`
	Status     TimerStatus `json:"status"`
	TimeLeft   float64     `json:"timeLeft"`  // seconds
	Initial    float64     `json:"initial"`   // seconds
	UpdatedAt  int64       `json:"updatedAt"` // unix millis of last authority update
}

// AnswerRecord stores one participant's latest answer to one question.
// It is replaced, never appended, on resubmission before the window closes.
type AnswerRecord struct {
	QuestionID  string      `json:"questionId"`
	Value       AnswerValue `json:"value"`
	ElapsedMs   int64       `json:"elapsedMs"`
	Correct     bool        `json:"correct"`
	Base        int         `json:"base"`
	Penalty     int         `json:"penalty"`
	Normalized  int         `json:"normalized"`
	SubmittedAt time.Time   `json:"submittedAt"`
}

// Participant is a durable player identity within a session, distinct from
// any transient connection.
type Participant struct {
	ID          string
	DisplayName string
	Avatar      string
	Score       int
	Answers     []AnswerRecord
	LastUpdated time.Time
}

// Answer returns the participant's answer record for a question, if any.
func (p *Participant) Answer(questionID string) (AnswerRecord, bool) {
	for _, rec := range p.Answers {
		if rec.QuestionID == questionID {
			return rec, true
		}
	}
	return AnswerRecord{}, false
}

// LeaderboardEntry is a derived, non-owned projection of a participant.
type LeaderboardEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered standings for a session.
type Leaderboard struct {
	AccessCode string             `json:"accessCode"`
	Entries    []LeaderboardEntry `json:"entries"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusPreparing SessionStatus = "preparing"
	StatusRunning   SessionStatus = "running"
	StatusPaused    SessionStatus = "paused"
	StatusStopped   SessionStatus = "stopped"
	StatusCompleted SessionStatus = "completed"
)

// Terminal reports whether the status is an end state.
func (s SessionStatus) Terminal() bool {
	return s == StatusStopped || s == StatusCompleted
}

// NormalizeAvatar canonicalizes avatar references to a path form so clients
// can render them uniformly.
func NormalizeAvatar(avatar string) string {
	if avatar == "" {
		return "/avatars/default.svg"
	}
	if strings.HasPrefix(avatar, "/") || strings.Contains(avatar, "://") {
		return avatar
	}
	name := avatar
	if !strings.Contains(name, ".") {
		name += ".svg"
	}
	return "/avatars/" + name
}
