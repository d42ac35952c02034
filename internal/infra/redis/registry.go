package redis

import (
	"context"
	"sync"
	"time"

	"quiz-session-service/internal/session"
	"github.com/redis/go-redis/v9"
)

// Registry is a Redis-aware implementation of session.Registry.
// Notes:
//   - Sessions stay in a local map because they carry live timers and
//     in-process subscriber channels.
//   - Redis marks session liveness so other instances and operators can see
//     which access codes are active (and could be extended to route
//     cross-instance pub/sub).
type Registry struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewRegistry(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*session.Session),
	}
}

func (r *Registry) Put(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Code()] = s
	// best-effort liveness marker
	_ = r.client.Set(context.Background(), r.key(s.Code()), "1", r.ttl).Err()
}

func (r *Registry) Get(code string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

func (r *Registry) Delete(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[code]; !ok {
		return
	}
	delete(r.sessions, code)
	_ = r.client.Del(context.Background(), r.key(code)).Err()
}

func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) key(code string) string {
	return "session:live:" + code
}
