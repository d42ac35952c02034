package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind tags the shape of a submitted answer value.
type AnswerKind string

const (
	AnswerSingle  AnswerKind = "single"
	AnswerMulti   AnswerKind = "multi"
	AnswerNumeric AnswerKind = "numeric"
)

// AnswerValue is a tagged union of the answer shapes a client can submit.
// Exactly one of the value fields is meaningful, selected by Kind.
type AnswerValue struct {
	Kind    AnswerKind `json:"kind"`
	Choice  int        `json:"choice,omitempty"`
	Choices []int      `json:"choices,omitempty"`
	Number  float64    `json:"number,omitempty"`
}

// SingleChoice builds an answer selecting one option index.
func SingleChoice(idx int) AnswerValue {
	return AnswerValue{Kind: AnswerSingle, Choice: idx}
}

// MultiChoice builds an answer selecting a set of option indices.
func MultiChoice(idxs ...int) AnswerValue {
	return AnswerValue{Kind: AnswerMulti, Choices: idxs}
}

// NumericAnswer builds a numeric answer.
func NumericAnswer(v float64) AnswerValue {
	return AnswerValue{Kind: AnswerNumeric, Number: v}
}

// SelectedIndices returns the option indices the answer selects, treating a
// single choice as a one-element set.
func (v AnswerValue) SelectedIndices() []int {
	switch v.Kind {
	case AnswerSingle:
		return []int{v.Choice}
	case AnswerMulti:
		return v.Choices
	default:
		return nil
	}
}

// ValidateFor checks that the answer shape matches the question type and
// that every selected index references an option. Violations are caller
// errors reported before the scoring engine sees the value.
func (v AnswerValue) ValidateFor(q Question) error {
	switch q.Type {
	case QuestionSingle:
		if v.Kind != AnswerSingle {
			return fmt.Errorf("%w: question %s expects a single choice", ErrInvalidAnswer, q.ID)
		}
		if v.Choice < 0 || v.Choice >= len(q.Options) {
			return fmt.Errorf("%w: option index %d out of range", ErrInvalidAnswer, v.Choice)
		}
	case QuestionMulti:
		if v.Kind != AnswerMulti && v.Kind != AnswerSingle {
			return fmt.Errorf("%w: question %s expects option choices", ErrInvalidAnswer, q.ID)
		}
		for _, idx := range v.SelectedIndices() {
			if idx < 0 || idx >= len(q.Options) {
				return fmt.Errorf("%w: option index %d out of range", ErrInvalidAnswer, idx)
			}
		}
	case QuestionNumeric:
		if v.Kind != AnswerNumeric {
			return fmt.Errorf("%w: question %s expects a numeric value", ErrInvalidAnswer, q.ID)
		}
	default:
		// Unknown question types degrade to zero score later; the value
		// itself is not the caller's fault.
	}
	return nil
}

// ParseNumeric converts a raw client string into a numeric answer. Comma
// decimal separators are accepted.
func ParseNumeric(raw string) (AnswerValue, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return AnswerValue{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAnswer, raw)
	}
	return NumericAnswer(f), nil
}

// wireAnswer mirrors AnswerValue for JSON with explicit field presence.
type wireAnswer struct {
	Kind    AnswerKind `json:"kind"`
	Choice  *int       `json:"choice,omitempty"`
	Choices []int      `json:"choices,omitempty"`
	Number  *float64   `json:"number,omitempty"`
}

// UnmarshalJSON validates the tag and field pairing at the boundary.
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	var w wireAnswer
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case AnswerSingle:
		if w.Choice == nil {
			return fmt.Errorf("%w: single answer missing choice", ErrInvalidAnswer)
		}
		*v = SingleChoice(*w.Choice)
	case AnswerMulti:
		*v = MultiChoice(w.Choices...)
	case AnswerNumeric:
		if w.Number == nil {
			return fmt.Errorf("%w: numeric answer missing number", ErrInvalidAnswer)
		}
		*v = NumericAnswer(*w.Number)
	default:
		return fmt.Errorf("%w: unknown answer kind %q", ErrInvalidAnswer, w.Kind)
	}
	return nil
}
