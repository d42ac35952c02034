package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"time"

	"quiz-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionRepository caches questions in Redis (one JSON value per question)
// and falls back to a loader on cache miss, so several service instances can
// share one warm cache.
// Questions are stored as: SET question:{questionID} {json} EX {ttl}
type QuestionRepository struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionRepository(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionRepository) QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	found := make(map[string]domain.Question, len(ids))
	missing := make([]string, 0)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		// Treat a cache outage as a full miss; the loader is the source
		// of truth.
		values = make([]interface{}, len(ids))
	}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		found[q.ID] = q
	}

	if len(missing) > 0 {
		key := strings.Join(missing, ",")
		result, err, _ := r.sf.Do(key, func() (interface{}, error) {
			questions, err := r.loader.LoadQuestions(ctx, missing)
			if err != nil {
				return nil, err
			}
			ttl := r.ttlWithJitter()
			pipe := r.client.Pipeline()
			for _, q := range questions {
				payload, err := json.Marshal(q)
				if err != nil {
					continue
				}
				pipe.Set(ctx, r.key(q.ID), payload, ttl)
			}
			_, _ = pipe.Exec(ctx)
			return questions, nil
		})
		if err != nil {
			return nil, err
		}
		for _, q := range result.([]domain.Question) {
			found[q.ID] = q
		}
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := found[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *QuestionRepository) key(questionID string) string {
	return "question:" + questionID
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
