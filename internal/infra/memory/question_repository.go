package memory

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"quiz-session-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// QuestionRepository caches questions with TTL so repeated session starts
// over the same catalog do not hammer the backing store.
type QuestionRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestion
}

type cachedQuestion struct {
	question  domain.Question
	expiresAt time.Time
}

func NewQuestionRepository(loader QuestionLoader, ttl time.Duration) *QuestionRepository {
	return &QuestionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuestion),
	}
}

// QuestionsByIDs returns the questions in the order requested. Cache misses
// are loaded in one batch; concurrent starts over the same missing set share
// a single load.
func (r *QuestionRepository) QuestionsByIDs(ctx context.Context, ids []string) ([]domain.Question, error) {
	now := r.clock()

	found := make(map[string]domain.Question, len(ids))
	missing := make([]string, 0)

	r.mu.RLock()
	for _, id := range ids {
		if entry, ok := r.cache[id]; ok && entry.expiresAt.After(now) {
			found[id] = entry.question
		} else {
			missing = append(missing, id)
		}
	}
	r.mu.RUnlock()

	if len(missing) > 0 {
		key := strings.Join(missing, ",")
		result, err, _ := r.sf.Do(key, func() (interface{}, error) {
			questions, err := r.loader.LoadQuestions(ctx, missing)
			if err != nil {
				return nil, err
			}
			now := r.clock()
			r.mu.Lock()
			for _, q := range questions {
				r.cache[q.ID] = cachedQuestion{
					question:  q,
					expiresAt: now.Add(r.ttlWithJitter()),
				}
			}
			r.mu.Unlock()
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

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// StaticQuestionLoader is a loader backed by an in-memory map (useful for
// tests/demos).
type StaticQuestionLoader struct {
	questions map[string]domain.Question
}

func NewStaticQuestionLoader(questions map[string]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{questions: questions}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, ids []string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := l.questions[id]
		if !ok {
			return nil, domain.ErrQuestionNotFound
		}
		out = append(out, q)
	}
	return out, nil
}
