// Package score holds the pure computations of the session core: answer
// scoring, leaderboard projection, and answer-option statistics. Nothing in
// this package touches session state or does I/O.
package score

import (
	"log"
	"math"

	"quiz-session-service/internal/domain"
)

const (
	// MaxBase is the full base score for a perfectly answered question.
	MaxBase = 1000
	// MaxPenalty is the largest time penalty, reached when the whole
	// answer window was used.
	MaxPenalty = 500
)

// Submission is an answer already validated at the boundary, carrying the
// timing the caller measured.
type Submission struct {
	Value     domain.AnswerValue
	ElapsedMs int64
}

// Result breaks a scored answer into its components.
type Result struct {
	Correct    bool
	Base       int
	Penalty    int
	Normalized int
}

// Calculate scores one answer to one question.
//
// The time penalty is linear in the fraction of the answer window used:
// round(min(elapsed/allowed, 1) * 500). The base score is 1000/0 for
// single-correct questions (including multi-correct questions that happen to
// have exactly one correct option); genuine multi-correct questions award
// 1000/k per correct selection and subtract the same per incorrect
// selection, clamped at zero. The final score is normalized by the total
// number of questions so a session's maximum is 1000 regardless of length.
func Calculate(q domain.Question, sub Submission, totalQuestions int) Result {
	if totalQuestions <= 0 {
		log.Printf("[score] invalid totalQuestions=%d for question %s", totalQuestions, q.ID)
		return Result{}
	}

	penalty := 0
	allowedMs := float64(q.AllottedSeconds()) * 1000
	if sub.ElapsedMs > 0 && allowedMs > 0 {
		fraction := math.Min(float64(sub.ElapsedMs)/allowedMs, 1)
		penalty = int(math.Round(fraction * MaxPenalty))
	}
	if penalty < 0 {
		penalty = 0
	} else if penalty > MaxPenalty {
		penalty = MaxPenalty
	}

	base := baseScore(q, sub.Value)

	afterPenalty := base - penalty
	if afterPenalty < 0 {
		afterPenalty = 0
	}
	normalized := int(math.Round(float64(afterPenalty) / float64(totalQuestions)))

	return Result{
		Correct:    base > 0,
		Base:       base,
		Penalty:    penalty,
		Normalized: normalized,
	}
}

func baseScore(q domain.Question, value domain.AnswerValue) int {
	correctCount := q.CorrectCount()
	if len(q.Options) == 0 && q.Type != domain.QuestionNumeric {
		log.Printf("[score] question %s has no options; scoring zero", q.ID)
		return 0
	}
	if correctCount == 0 && q.Type != domain.QuestionNumeric {
		log.Printf("[score] question %s has no correct options; scoring zero", q.ID)
		return 0
	}

	switch q.Type {
	case domain.QuestionSingle:
		return singleScore(q, value)
	case domain.QuestionMulti:
		if correctCount == 1 {
			// A multi question with a single correct option scores like a
			// single-choice question.
			return singleScore(q, value)
		}
		return multiScore(q, value, correctCount)
	default:
		log.Printf("[score] unhandled question type %q for question %s; scoring zero", q.Type, q.ID)
		return 0
	}
}

func singleScore(q domain.Question, value domain.AnswerValue) int {
	selected := value.SelectedIndices()
	if len(selected) != 1 {
		return 0
	}
	idx := selected[0]
	if idx >= 0 && idx < len(q.Options) && q.Options[idx].Correct {
		return MaxBase
	}
	return 0
}

func multiScore(q domain.Question, value domain.AnswerValue, correctCount int) int {
	perOption := float64(MaxBase) / float64(correctCount)
	selected := make(map[int]bool, len(value.SelectedIndices()))
	for _, idx := range value.SelectedIndices() {
		selected[idx] = true
	}
	sum := 0.0
	for idx, opt := range q.Options {
		if !selected[idx] {
			continue
		}
		if opt.Correct {
			sum += perOption
		} else {
			sum -= perOption
		}
	}
	if sum < 0 {
		sum = 0
	}
	return int(math.Round(sum))
}

// CumulativeScore recomputes a participant's total from scratch so answer
// replacement cannot leave a stale contribution behind.
func CumulativeScore(p *domain.Participant) int {
	total := 0
	for _, rec := range p.Answers {
		total += rec.Normalized
	}
	return total
}
