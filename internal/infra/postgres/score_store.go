package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

// ScoreStore persists final per-participant scores. Writes are upserts so
// the fire-and-forget saves during a session converge on the latest total.
type ScoreStore struct {
	pool *pgxpool.Pool
}

func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

func (s *ScoreStore) SaveScore(ctx context.Context, accessCode, participantID string, score int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_scores (access_code, participant_id, score, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (access_code, participant_id)
		DO UPDATE SET score = EXCLUDED.score, updated_at = now()`,
		accessCode, participantID, score)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	return nil
}

// HasScore reports whether a participant already has a recorded score for
// the access code.
func (s *ScoreStore) HasScore(ctx context.Context, accessCode, participantID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM session_scores
			WHERE access_code = $1 AND participant_id = $2
		)`, accessCode, participantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check score: %w", err)
	}
	return exists, nil
}

// ScoresBySession returns the stored totals for one access code, best first.
func (s *ScoreStore) ScoresBySession(ctx context.Context, accessCode string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, score FROM session_scores
		WHERE access_code = $1 ORDER BY score DESC`, accessCode)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var id string
		var score int
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out[id] = score
	}
	return out, rows.Err()
}
