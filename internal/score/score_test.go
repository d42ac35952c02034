package score

import (
	"testing"
	"time"

	"quiz-session-service/internal/domain"
)

func singleQuestion() domain.Question {
	return domain.Question{
		ID:   "q1",
		Type: domain.QuestionSingle,
		Options: []domain.Option{
			{Text: "a"},
			{Text: "b", Correct: true},
			{Text: "c"},
		},
		Seconds: 20,
	}
}

func multiQuestion() domain.Question {
	return domain.Question{
		ID:   "q2",
		Type: domain.QuestionMulti,
		Options: []domain.Option{
			{Text: "a", Correct: true},
			{Text: "b"},
			{Text: "c", Correct: true},
			{Text: "d"},
		},
		Seconds: 30,
	}
}

func TestCalculateSingleCorrectHalfWindow(t *testing.T) {
	res := Calculate(singleQuestion(), Submission{
		Value:     domain.SingleChoice(1),
		ElapsedMs: 10_000,
	}, 2)

	if !res.Correct {
		t.Fatalf("expected correct answer")
	}
	if res.Base != 1000 {
		t.Errorf("base = %d, want 1000", res.Base)
	}
	if res.Penalty != 250 {
		t.Errorf("penalty = %d, want 250", res.Penalty)
	}
	if res.Normalized != 375 {
		t.Errorf("normalized = %d, want 375 (round(750/2))", res.Normalized)
	}
}

func TestCalculateSingleWrong(t *testing.T) {
	res := Calculate(singleQuestion(), Submission{
		Value:     domain.SingleChoice(0),
		ElapsedMs: 1_000,
	}, 2)

	if res.Correct {
		t.Fatalf("expected wrong answer")
	}
	if res.Normalized != 0 {
		t.Errorf("normalized = %d, want 0", res.Normalized)
	}
}

func TestCalculatePenaltyCapsAtFullWindow(t *testing.T) {
	res := Calculate(singleQuestion(), Submission{
		Value:     domain.SingleChoice(1),
		ElapsedMs: 90_000, // well past the 20s window
	}, 1)

	if res.Penalty != MaxPenalty {
		t.Errorf("penalty = %d, want %d", res.Penalty, MaxPenalty)
	}
	if res.Normalized != 500 {
		t.Errorf("normalized = %d, want 500", res.Normalized)
	}
}

func TestCalculateInstantAnswerNoPenalty(t *testing.T) {
	res := Calculate(singleQuestion(), Submission{
		Value:     domain.SingleChoice(1),
		ElapsedMs: 0,
	}, 1)

	if res.Penalty != 0 {
		t.Errorf("penalty = %d, want 0", res.Penalty)
	}
	if res.Normalized != 1000 {
		t.Errorf("normalized = %d, want 1000", res.Normalized)
	}
}

func TestCalculateMultiExactSet(t *testing.T) {
	res := Calculate(multiQuestion(), Submission{
		Value: domain.MultiChoice(0, 2),
	}, 1)

	if !res.Correct {
		t.Fatalf("expected exact set to be correct")
	}
	if res.Base != 1000 {
		t.Errorf("base = %d, want 1000", res.Base)
	}
}

func TestCalculateMultiPartialAndMixed(t *testing.T) {
	// One of two correct options selected: half the base.
	res := Calculate(multiQuestion(), Submission{Value: domain.MultiChoice(0)}, 1)
	if res.Base != 500 {
		t.Errorf("partial base = %d, want 500", res.Base)
	}

	// One correct plus one wrong cancel out; the floor is zero.
	res = Calculate(multiQuestion(), Submission{Value: domain.MultiChoice(0, 1)}, 1)
	if res.Base != 0 {
		t.Errorf("mixed base = %d, want 0", res.Base)
	}
	res = Calculate(multiQuestion(), Submission{Value: domain.MultiChoice(1, 3)}, 1)
	if res.Base != 0 {
		t.Errorf("all-wrong base = %d, want 0", res.Base)
	}
}

func TestCalculateMultiWithOneCorrectOptionScoresLikeSingle(t *testing.T) {
	q := domain.Question{
		ID:   "q3",
		Type: domain.QuestionMulti,
		Options: []domain.Option{
			{Text: "a", Correct: true},
			{Text: "b"},
		},
	}

	res := Calculate(q, Submission{Value: domain.MultiChoice(0)}, 1)
	if res.Base != 1000 {
		t.Errorf("base = %d, want 1000", res.Base)
	}
	res = Calculate(q, Submission{Value: domain.MultiChoice(0, 1)}, 1)
	if res.Base != 0 {
		t.Errorf("over-selection base = %d, want 0", res.Base)
	}
}

func TestCalculateEmptySelection(t *testing.T) {
	res := Calculate(multiQuestion(), Submission{Value: domain.MultiChoice()}, 1)
	if res.Correct || res.Base != 0 {
		t.Errorf("empty selection scored %+v, want zero", res)
	}
}

func TestCalculateUnhandledTypeScoresZero(t *testing.T) {
	q := domain.Question{ID: "q4", Type: domain.QuestionNumeric}
	res := Calculate(q, Submission{Value: domain.NumericAnswer(42)}, 1)
	if res.Correct || res.Base != 0 || res.Normalized != 0 {
		t.Errorf("numeric question scored %+v, want zero", res)
	}
}

func TestCalculateNoCorrectOptions(t *testing.T) {
	q := domain.Question{
		ID:      "q5",
		Type:    domain.QuestionSingle,
		Options: []domain.Option{{Text: "a"}, {Text: "b"}},
	}
	res := Calculate(q, Submission{Value: domain.SingleChoice(0)}, 1)
	if res.Base != 0 {
		t.Errorf("base = %d, want 0 for question with no correct options", res.Base)
	}
}

func TestCumulativeScoreRecomputesFromRecords(t *testing.T) {
	p := &domain.Participant{
		ID: "p1",
		Answers: []domain.AnswerRecord{
			{QuestionID: "q1", Normalized: 375},
			{QuestionID: "q2", Normalized: 500},
		},
	}
	if got := CumulativeScore(p); got != 875 {
		t.Fatalf("cumulative = %d, want 875", got)
	}

	// Replacing a record changes the total; nothing stale survives.
	p.Answers[0].Normalized = 0
	if got := CumulativeScore(p); got != 500 {
		t.Fatalf("cumulative after replacement = %d, want 500", got)
	}
}

func TestLeaderboardOrderingAndTieBreaks(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	participants := map[string]*domain.Participant{
		"a": {ID: "a", DisplayName: "ada", Score: 500, LastUpdated: base.Add(2 * time.Second)},
		"b": {ID: "b", DisplayName: "bob", Score: 800, LastUpdated: base},
		"c": {ID: "c", DisplayName: "cleo", Score: 500, LastUpdated: base.Add(time.Second)},
		"d": {ID: "d", DisplayName: "dan", Score: 500, LastUpdated: base.Add(2 * time.Second)},
	}

	lb := Leaderboard("CODE1", participants, base.Add(time.Minute))

	if lb.AccessCode != "CODE1" {
		t.Fatalf("access code = %q", lb.AccessCode)
	}
	got := make([]string, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		got = append(got, e.ID)
	}
	// b leads on score; c reached 500 first; a and d tie on time and fall
	// back to display name.
	want := []string{"b", "c", "a", "d"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestAnswerStats(t *testing.T) {
	participants := map[string]*domain.Participant{
		"a": {ID: "a", Answers: []domain.AnswerRecord{{QuestionID: "q1", Value: domain.SingleChoice(1)}}},
		"b": {ID: "b", Answers: []domain.AnswerRecord{{QuestionID: "q1", Value: domain.SingleChoice(1)}}},
		"c": {ID: "c", Answers: []domain.AnswerRecord{{QuestionID: "q1", Value: domain.SingleChoice(0)}}},
		"d": {ID: "d", Answers: []domain.AnswerRecord{{QuestionID: "q2", Value: domain.SingleChoice(0)}}},
	}

	stats := AnswerStats("q1", participants)
	if stats.Answered != 3 {
		t.Fatalf("answered = %d, want 3", stats.Answered)
	}
	if stats.Counts[1] != 2 || stats.Counts[0] != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}
}

func TestAnswerStatsSkipsFillInRecords(t *testing.T) {
	// Records appended at window close for non-answerers have no value.
	participants := map[string]*domain.Participant{
		"a": {ID: "a", Answers: []domain.AnswerRecord{{QuestionID: "q1"}}},
		"b": {ID: "b", Answers: []domain.AnswerRecord{{QuestionID: "q1"}}},
		"c": {ID: "c", Answers: []domain.AnswerRecord{{QuestionID: "q1", Value: domain.SingleChoice(0)}}},
	}

	stats := AnswerStats("q1", participants)
	if stats.Answered != 1 {
		t.Fatalf("answered = %d, want 1", stats.Answered)
	}
	if stats.Counts[0] != 1 || len(stats.Counts) != 1 {
		t.Fatalf("counts = %v", stats.Counts)
	}
}
