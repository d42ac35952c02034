package memory

import (
	"testing"
	"time"

	"quiz-session-service/internal/session"
)

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()

	s := session.NewSession("CODE1", "teacher-1", "", nil, time.Now)
	reg.Put(s)
	if got, ok := reg.Get("CODE1"); !ok || got != s {
		t.Fatalf("expected session present")
	}

	child := session.NewSession("CODE2", "teacher-1", "CODE1", nil, time.Now)
	reg.Put(child)
	if got := reg.List(); len(got) != 2 {
		t.Fatalf("list = %d sessions, want 2", len(got))
	}

	reg.Delete("CODE1")
	if _, ok := reg.Get("CODE1"); ok {
		t.Fatalf("expected session removed")
	}
	if got := reg.List(); len(got) != 1 || got[0].Code() != "CODE2" {
		t.Fatalf("list after delete = %d sessions", len(got))
	}
}
