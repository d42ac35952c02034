package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// ScoreStore keeps per-session scores in a Redis sorted set, one set per
// access code, so standings survive a service restart and can be read by
// other consumers.
// Scores are stored as: ZADD session:{accessCode}:scores {score} {participantID}
type ScoreStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewScoreStore(client *redis.Client, ttl time.Duration) *ScoreStore {
	return &ScoreStore{client: client, ttl: ttl}
}

func (s *ScoreStore) SaveScore(ctx context.Context, accessCode, participantID string, score int) error {
	key := s.key(accessCode)
	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: participantID})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// HasScore reports whether a participant already has a recorded score for
// the access code.
func (s *ScoreStore) HasScore(ctx context.Context, accessCode, participantID string) (bool, error) {
	_, err := s.client.ZScore(ctx, s.key(accessCode), participantID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TopScores returns up to n participants ordered by score descending.
func (s *ScoreStore) TopScores(ctx context.Context, accessCode string, n int64) ([]redis.Z, error) {
	return s.client.ZRevRangeWithScores(ctx, s.key(accessCode), 0, n-1).Result()
}

// DeleteScores removes a session's persisted standings.
func (s *ScoreStore) DeleteScores(ctx context.Context, accessCode string) error {
	return s.client.Del(ctx, s.key(accessCode)).Err()
}

func (s *ScoreStore) key(accessCode string) string {
	return "session:" + accessCode + ":scores"
}
