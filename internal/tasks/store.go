package tasks

import (
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"
)

// Store keeps the tasks and context of a single conversation in memory.
//
// Store is not safe for concurrent use; callers serialize access per session.
// Tasks handed out are copies, so mutating them never changes the store.
type Store struct {
	tasks   map[string]*Task
	context map[string]any
	seq     uint64
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks:   make(map[string]*Task),
		context: make(map[string]any),
		now:     time.Now,
	}
}

// Create registers a pending task. An empty id is replaced by a generated one.
// Creating with an existing id replaces the previous record.
func (s *Store) Create(id, taskType string, data map[string]string) *Task {
	if id == "" {
		id = GenerateTaskID()
	}
	now := s.now()
	s.seq++
	t := &Task{
		ID:        id,
		Type:      taskType,
		Status:    TaskPending,
		Data:      maps.Clone(data),
		CreatedAt: now,
		UpdatedAt: now,
		Seq:       s.seq,
	}
	if t.Data == nil {
		t.Data = map[string]string{}
	}
	s.tasks[id] = t
	slog.Debug("task created", "id", id, "type", taskType)
	return t.clone()
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (*Task, bool) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// Update merges fields into the task data and, when status is non-empty, moves the
// task to that status. UpdatedAt is always refreshed. It returns false for unknown ids.
func (s *Store) Update(id string, status TaskStatus, fields map[string]string) bool {
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	if status != "" {
		t.Status = status
	}
	t.merge(fields, s.now())
	slog.Debug("task updated", "id", id, "status", t.Status, "fields", len(fields))
	return true
}

// Complete marks the task completed, recording result when it is non-nil.
func (s *Store) Complete(id string, result any) bool {
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Status = TaskCompleted
	if result != nil {
		t.Result = result
	}
	t.UpdatedAt = s.now()
	slog.Debug("task completed", "id", id, "type", t.Type)
	return true
}

// Fail marks the task failed with reason. Only cancellation and the stale
// sweep move tasks here.
func (s *Store) Fail(id, reason string) bool {
	t, ok := s.tasks[id]
	if !ok {
		return false
	}
	t.Status = TaskFailed
	t.Reason = reason
	t.UpdatedAt = s.now()
	slog.Debug("task failed", "id", id, "reason", reason)
	return true
}

// Active returns pending and in-progress tasks keyed by id, restricted to
// taskType when it is non-empty.
func (s *Store) Active(taskType string) map[string]*Task {
	out := make(map[string]*Task)
	for id, t := range s.tasks {
		if !t.Status.Active() {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		out[id] = t.clone()
	}
	return out
}

// LatestActive returns the active task created last, restricted to taskType when
// it is non-empty. Equal creation times fall back to creation order.
func (s *Store) LatestActive(taskType string) (*Task, bool) {
	var best *Task
	for _, t := range s.tasks {
		if !t.Status.Active() {
			continue
		}
		if taskType != "" && t.Type != taskType {
			continue
		}
		if best == nil || newer(t, best) {
			best = t
		}
	}
	if best == nil {
		return nil, false
	}
	return best.clone(), true
}

func newer(a, b *Task) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

// List returns every task, oldest first.
func (s *Store) List() []*Task {
	out := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// SetContext stores a session-scoped value.
func (s *Store) SetContext(key string, value any) {
	s.context[key] = value
}

// Context returns the session value for key, or def when unset.
func (s *Store) Context(key string, def any) any {
	if v, ok := s.context[key]; ok {
		return v
	}
	return def
}

// ClearCompleted drops completed and failed tasks and returns how many were removed.
func (s *Store) ClearCompleted() int {
	removed := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() {
			delete(s.tasks, id)
			removed++
		}
	}
	slog.Debug("cleared terminal tasks", "count", removed)
	return removed
}

// Summary renders the active tasks for prompts and logs.
func (s *Store) Summary() string {
	var active []*Task
	for _, t := range s.tasks {
		if t.Status.Active() {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return "No active tasks."
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Seq < active[j].Seq })

	var b strings.Builder
	b.WriteString("Active tasks:")
	for _, t := range active {
		fmt.Fprintf(&b, "\n- %s (%s): %s", t.Type, t.Status, formatData(t.Data))
	}
	return b.String()
}

func formatData(data map[string]string) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + data[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
