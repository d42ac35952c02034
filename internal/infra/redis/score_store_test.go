package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestScoreStoreSaveAndRank(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := NewScoreStore(newClient(mr), time.Minute)
	ctx := context.Background()

	if err := store.SaveScore(ctx, "CODE1", "p1", 375); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveScore(ctx, "CODE1", "p2", 800); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Replacement, not accumulation.
	if err := store.SaveScore(ctx, "CODE1", "p1", 500); err != nil {
		t.Fatalf("resave: %v", err)
	}

	top, err := store.TopScores(ctx, "CODE1", 10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("entries = %d, want 2", len(top))
	}
	if top[0].Member != "p2" || top[0].Score != 800 {
		t.Fatalf("top entry = %+v", top[0])
	}
	if top[1].Member != "p1" || top[1].Score != 500 {
		t.Fatalf("second entry = %+v", top[1])
	}

	if played, err := store.HasScore(ctx, "CODE1", "p1"); err != nil || !played {
		t.Fatalf("HasScore p1 = %v, %v, want true", played, err)
	}
	if played, err := store.HasScore(ctx, "CODE1", "p9"); err != nil || played {
		t.Fatalf("HasScore p9 = %v, %v, want false", played, err)
	}

	if err := store.DeleteScores(ctx, "CODE1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("session:CODE1:scores") {
		t.Fatalf("expected score key removed")
	}
}
