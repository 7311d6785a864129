package tasks

import (
	"testing"
	"time"
)

func TestAbandonStale(t *testing.T) {
	store := NewStore()
	now := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Create("old", "email_send", nil)
	store.Create("done", "email_send", nil)
	store.Complete("done", nil)

	now = now.Add(20 * time.Minute)
	store.Create("fresh", "calendar_create", nil)

	now = now.Add(5 * time.Minute)
	ids := AbandonStale(store, 10*time.Minute)
	if len(ids) != 1 || ids[0] != "old" {
		t.Fatalf("abandoned: got %v, want [old]", ids)
	}

	old, _ := store.Get("old")
	if old.Status != TaskFailed {
		t.Errorf("old status: got %s, want failed", old.Status)
	}
	if old.Reason == "" {
		t.Error("expected a failure reason")
	}

	fresh, _ := store.Get("fresh")
	if fresh.Status != TaskPending {
		t.Errorf("fresh status: got %s, want pending", fresh.Status)
	}

	done, _ := store.Get("done")
	if done.Status != TaskCompleted {
		t.Errorf("done status: got %s, want completed", done.Status)
	}
}

func TestAbandonStaleDisabled(t *testing.T) {
	store := NewStore()
	store.Create("a", "email_send", nil)
	if ids := AbandonStale(store, 0); ids != nil {
		t.Errorf("expected nil, got %v", ids)
	}
}
