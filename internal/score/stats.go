package score

import "quiz-session-service/internal/domain"

// Stats tallies how participants answered one question.
type Stats struct {
	QuestionID string      `json:"questionId"`
	Counts     map[int]int `json:"counts"` // option index -> selections
	Answered   int         `json:"answered"`
}

// AnswerStats aggregates the option distribution for a question across all
// participants. Numeric answers contribute to Answered but not to Counts.
func AnswerStats(questionID string, participants map[string]*domain.Participant) Stats {
	stats := Stats{QuestionID: questionID, Counts: make(map[int]int)}
	for _, p := range participants {
		rec, ok := p.Answer(questionID)
		if !ok || rec.Value.Kind == "" {
			// Window-close fill-in records carry no answer value and do
			// not count as answers.
			continue
		}
		stats.Answered++
		for _, idx := range rec.Value.SelectedIndices() {
			stats.Counts[idx]++
		}
	}
	return stats
}
