package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for an access code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned for operations on a stopped or completed session.
	ErrSessionEnded = errors.New("session already ended")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a dispatched or answered question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotAuthorized is returned when a controller action comes from a
	// caller that is not the session's initiator.
	ErrNotAuthorized = errors.New("caller is not the session initiator")
	// ErrTimeExpired is returned when an answer arrives after the window closed.
	ErrTimeExpired = errors.New("answer window closed")
	// ErrAnswersLocked is returned when the controller locked submissions early.
	ErrAnswersLocked = errors.New("answers are locked")
	// ErrInvalidAnswer flags a malformed or mismatched answer payload.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrInvalidTransition is returned for pause/resume calls in the wrong state.
	ErrInvalidTransition = errors.New("invalid session state for operation")
	// ErrAlreadyPlayed rejects a self-paced replay by a participant with a
	// recorded score for the access code.
	ErrAlreadyPlayed = errors.New("participant already played this session")
)

// RejectReason maps an answer rejection to the wire code clients key on.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrTimeExpired):
		return "TIME_EXPIRED"
	case errors.Is(err, ErrAnswersLocked):
		return "ANSWERS_LOCKED"
	case errors.Is(err, ErrInvalidAnswer):
		return "INVALID_ANSWER"
	case errors.Is(err, ErrNotAuthorized):
		return "NOT_AUTHORIZED"
	case errors.Is(err, ErrAlreadyPlayed):
		return "ALREADY_PLAYED"
	default:
		return "ERROR"
	}
}
