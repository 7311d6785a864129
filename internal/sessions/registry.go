package sessions

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	mu   sync.Mutex // serializes turns within the session
	meta Session
	orch *dialog.Orchestrator
}

// Registry owns the live sessions. Each session has its own task store and
// orchestrator; calls into one session are serialized while different sessions
// proceed in parallel.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	classifier *intents.Classifier
	opts       dialog.Options
	now        func() time.Time
}

// NewRegistry creates a Registry. opts is the template for every session's
// orchestrator; SessionID is filled in per session.
func NewRegistry(classifier *intents.Classifier, opts dialog.Options) *Registry {
	return &Registry{
		sessions:   make(map[string]*entry),
		classifier: classifier,
		opts:       opts,
		now:        time.Now,
	}
}

// Open starts a new session and returns its metadata.
func (r *Registry) Open() *Session {
	now := r.now()
	id := generateSessionID()

	opts := r.opts
	opts.SessionID = id
	e := &entry{
		meta: Session{ID: id, CreatedAt: now, UpdatedAt: now, Status: SessionActive},
		orch: dialog.New(r.classifier, tasks.NewStore(), opts),
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.mu.Unlock()

	slog.Info("session opened", "session_id", id)
	s := e.meta
	return &s
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e, nil
}

// Get returns a snapshot of the session's metadata.
func (r *Registry) Get(id string) (*Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// List returns all open sessions sorted by UpdatedAt descending.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.snapshot())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Do runs fn against the session's orchestrator while holding the session lock.
func (r *Registry) Do(id string, fn func(o *dialog.Orchestrator) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.orch); err != nil {
		return err
	}
	e.meta.UpdatedAt = r.now()
	return nil
}

// Turn handles one utterance in the given session.
func (r *Registry) Turn(id, utterance string) (dialog.Turn, error) {
	var turn dialog.Turn
	err := r.Do(id, func(o *dialog.Orchestrator) error {
		turn = o.Turn(utterance)
		return nil
	})
	if err != nil {
		return dialog.Turn{}, err
	}

	e, _ := r.lookup(id)
	if e != nil {
		e.mu.Lock()
		e.meta.TurnCount++
		e.mu.Unlock()
	}
	return turn, nil
}

// Each calls fn for every open session, one at a time, under that session's lock.
func (r *Registry) Each(fn func(id string, o *dialog.Orchestrator)) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		// A session closed since the snapshot is skipped.
		_ = r.Do(id, func(o *dialog.Orchestrator) error {
			fn(id, o)
			return nil
		})
	}
}

// Close removes a session. Its pending tasks are discarded.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.mu.Lock()
	e.meta.Status = SessionClosed
	e.mu.Unlock()
	slog.Info("session closed", "session_id", id)
	return nil
}

// Len reports the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// snapshot must be called with e.mu held.
func (e *entry) snapshot() *Session {
	s := e.meta
	s.Pending = len(e.orch.Store().Active(""))
	return &s
}
