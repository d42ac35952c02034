package memory

import (
	"sync"

	"quiz-session-service/internal/session"
)

// Registry is the in-memory implementation of session.Registry. Sessions
// carry live timers and subscriber channels, so the process that runs them
// is their single home; the registry is just the code-to-session index.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

func (r *Registry) Put(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.Code()] = s
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
	delete(r.sessions, code)
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
