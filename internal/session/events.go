package session

import "quiz-session-service/internal/domain"

// Event is one outbound message for a session room or a single connection.
type Event struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Outbound event names. The transport forwards these verbatim.
const (
	EventQuestion    = "question"
	EventTimer       = "timer"
	EventReveal      = "reveal"
	EventFeedback    = "feedback"
	EventLeaderboard = "leaderboard"
	EventStats       = "answer_stats"
	EventLocked      = "answers_locked"
	EventEnd         = "session_end"
)

// QuestionPayload is broadcast when a question is dispatched.
type QuestionPayload struct {
	Question domain.PublicQuestion `json:"question"`
	Index    int                   `json:"index"`
	Total    int                   `json:"total"`
}

// RevealPayload is broadcast when a question's answer window closes.
type RevealPayload struct {
	QuestionID     string `json:"questionId"`
	CorrectOptions []int  `json:"correctOptions"`
	Explanation    string `json:"explanation,omitempty"`
}

// FeedbackPayload announces the countdown before the session advances.
type FeedbackPayload struct {
	QuestionID string  `json:"questionId"`
	Seconds    float64 `json:"seconds"`
}

// LockPayload reports the controller locking or unlocking submissions.
type LockPayload struct {
	QuestionID string `json:"questionId"`
	Locked     bool   `json:"locked"`
}

// EndPayload carries the terminal leaderboard and status.
type EndPayload struct {
	AccessCode  string               `json:"accessCode"`
	Status      domain.SessionStatus `json:"status"`
	Leaderboard domain.Leaderboard   `json:"leaderboard"`
}

// AnswerReceipt acknowledges a stored answer to its submitter without
// revealing correctness while the window is open.
type AnswerReceipt struct {
	QuestionID string `json:"questionId"`
	Received   bool   `json:"received"`
}
