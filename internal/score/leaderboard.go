package score

import (
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// Leaderboard derives ranked standings from the participants of a session.
// Entries are ordered by score descending; ties go to the participant whose
// score was reached earlier, then to display name ascending, so repeated
// computations over the same state always agree.
func Leaderboard(accessCode string, participants map[string]*domain.Participant, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Avatar:      domain.NormalizeAvatar(p.Avatar),
			Score:       p.Score,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := participants[entries[i].ID]
		pj := participants[entries[j].ID]
		if pi != nil && pj != nil && !pi.LastUpdated.Equal(pj.LastUpdated) {
			return pi.LastUpdated.Before(pj.LastUpdated)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	return domain.Leaderboard{
		AccessCode: accessCode,
		Entries:    entries,
		UpdatedAt:  now,
	}
}
