package sessions

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/intents"
)

func newTestRegistry() *Registry {
	return NewRegistry(intents.NewClassifier(nil), dialog.Options{})
}

func TestOpenGet(t *testing.T) {
	r := newTestRegistry()
	s := r.Open()
	if !strings.HasPrefix(s.ID, "sess_") {
		t.Errorf("ID = %q, want sess_ prefix", s.ID)
	}
	if s.Status != SessionActive {
		t.Errorf("Status = %q, want %q", s.Status, SessionActive)
	}

	got, err := r.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("Get ID = %q, want %q", got.ID, s.ID)
	}
}

func TestGetNotFound(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Get("sess_nonexistent")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if _, err := r.Turn("sess_nonexistent", "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Turn err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	r := newTestRegistry()
	a := r.Open()
	b := r.Open()

	if _, err := r.Turn(a.ID, "send email to john@example.com"); err != nil {
		t.Fatalf("Turn: %v", err)
	}

	// The subject answer in b must not complete a's pending email.
	turn, err := r.Turn(b.ID, "subject is project update")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if turn.FollowUp {
		t.Error("session b answered session a's task")
	}

	sa, _ := r.Get(a.ID)
	if sa.Pending != 1 {
		t.Errorf("session a pending = %d, want 1", sa.Pending)
	}
	if sa.TurnCount != 1 {
		t.Errorf("session a turns = %d, want 1", sa.TurnCount)
	}
}

func TestDoPropagatesError(t *testing.T) {
	r := newTestRegistry()
	s := r.Open()
	boom := errors.New("boom")
	err := r.Do(s.ID, func(*dialog.Orchestrator) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestEachVisitsEverySession(t *testing.T) {
	r := newTestRegistry()
	want := map[string]bool{r.Open().ID: true, r.Open().ID: true, r.Open().ID: true}

	seen := map[string]bool{}
	r.Each(func(id string, o *dialog.Orchestrator) {
		if o == nil {
			t.Errorf("nil orchestrator for %s", id)
		}
		seen[id] = true
	})
	if len(seen) != len(want) {
		t.Errorf("visited %d sessions, want %d", len(seen), len(want))
	}
	for id := range want {
		if !seen[id] {
			t.Errorf("session %s not visited", id)
		}
	}
}

func TestClose(t *testing.T) {
	r := newTestRegistry()
	s := r.Open()
	if err := r.Close(s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := r.Get(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after close err = %v", err)
	}
	if err := r.Close(s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close err = %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestListSortedByUpdate(t *testing.T) {
	r := newTestRegistry()
	tick := time.Date(2026, time.March, 8, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	first := r.Open()
	second := r.Open()
	if _, err := r.Turn(first.ID, "what's the weather"); err != nil {
		t.Fatal(err)
	}

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Errorf("order = [%s %s], want most recently updated first", list[0].ID, list[1].ID)
	}
}

func TestConcurrentTurns(t *testing.T) {
	r := newTestRegistry()
	s := r.Open()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Turn(s.ID, "what's the weather"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, _ := r.Get(s.ID)
	if got.TurnCount != 20 {
		t.Errorf("TurnCount = %d, want 20", got.TurnCount)
	}
}
