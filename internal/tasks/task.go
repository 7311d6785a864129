// Package tasks holds in-flight slot-filling tasks and the per-session context map.
package tasks

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Active reports whether s still awaits input.
func (s TaskStatus) Active() bool {
	return s == TaskPending || s == TaskInProgress
}

// Terminal reports whether s is swept by ClearCompleted.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one multi-turn request being filled in.
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"task_type"`
	Status    TaskStatus        `json:"status"`
	Data      map[string]string `json:"data"`
	Result    any               `json:"result,omitempty"`
	Reason    string            `json:"reason,omitempty"` // why the task failed
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Seq       uint64            `json:"seq"` // creation order within the store
}

// merge copies fields into Data; incoming values win on conflict.
func (t *Task) merge(fields map[string]string, now time.Time) {
	if t.Data == nil {
		t.Data = make(map[string]string, len(fields))
	}
	maps.Copy(t.Data, fields)
	t.UpdatedAt = now
}

func (t *Task) clone() *Task {
	c := *t
	c.Data = maps.Clone(t.Data)
	if c.Data == nil {
		c.Data = map[string]string{}
	}
	return &c
}

// GenerateTaskID creates a unique task identifier.
func GenerateTaskID() string {
	u := uuid.New().String()
	return "task_" + strings.ReplaceAll(u[:8], "-", "")
}
