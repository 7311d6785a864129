// Package sessions keeps one dialog per conversation so that concurrent
// conversations never see each other's pending tasks.
package sessions

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

// Session holds metadata about a conversation session.
type Session struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Status    SessionStatus `json:"status"`
	TurnCount int           `json:"turn_count"`
	Pending   int           `json:"pending_tasks"`
}

func generateSessionID() string {
	u := uuid.New().String()
	return "sess_" + strings.ReplaceAll(u[:8], "-", "")
}
