// Package history keeps a durable log of handled turns in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dohr-michael/jarvis/internal/events"
)

// Entry is one recorded turn.
type Entry struct {
	ID            int64             `json:"id"`
	SessionID     string            `json:"session_id"`
	Utterance     string            `json:"utterance"`
	Intent        string            `json:"intent"`
	Confidence    float64           `json:"confidence"`
	FollowUp      bool              `json:"follow_up"`
	Valid         bool              `json:"valid"`
	TaskID        string            `json:"task_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Missing       []string          `json:"missing,omitempty"`
	Clarification string            `json:"clarification,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Store is a SQLite-backed turn log.
type Store struct {
	db    *sql.DB
	path  string
	unsub func()
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One writer; the bus delivers events on separate goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id    TEXT NOT NULL,
			utterance     TEXT NOT NULL,
			intent        TEXT NOT NULL,
			confidence    REAL NOT NULL,
			follow_up     INTEGER NOT NULL,
			valid         INTEGER NOT NULL,
			task_id       TEXT,
			fields        TEXT,
			missing       TEXT,
			clarification TEXT,
			created_at    INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
	`)
	return err
}

// Record appends e. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return 0, fmt.Errorf("encode fields: %w", err)
	}
	missing, err := json.Marshal(e.Missing)
	if err != nil {
		return 0, fmt.Errorf("encode missing: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (session_id, utterance, intent, confidence, follow_up, valid,
			task_id, fields, missing, clarification, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Utterance, e.Intent, e.Confidence, e.FollowUp, e.Valid,
		e.TaskID, string(fields), string(missing), e.Clarification, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert turn: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit turns, newest first. An empty sessionID spans all sessions.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, session_id, utterance, intent, confidence, follow_up, valid,
		task_id, fields, missing, clarification, created_at FROM turns`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                       Entry
			taskID, fields, missing sql.NullString
			clarification           sql.NullString
			created                 int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Utterance, &e.Intent, &e.Confidence,
			&e.FollowUp, &e.Valid, &taskID, &fields, &missing, &clarification, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		e.TaskID = taskID.String
		e.Clarification = clarification.String
		e.CreatedAt = time.Unix(0, created)
		if fields.Valid && fields.String != "" {
			_ = json.Unmarshal([]byte(fields.String), &e.Fields)
		}
		if missing.Valid && missing.String != "" {
			_ = json.Unmarshal([]byte(missing.String), &e.Missing)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Attach records every turn.handled event published on bus until Close.
func (s *Store) Attach(bus *events.Bus) {
	s.unsub = bus.Subscribe(func(e events.Event) {
		p, ok := events.ExtractPayload[events.TurnPayload](e)
		if !ok {
			return
		}
		entry := Entry{
			SessionID:     e.SessionID,
			Utterance:     p.Utterance,
			Intent:        p.Intent,
			Confidence:    p.Confidence,
			FollowUp:      p.FollowUp,
			Valid:         p.Valid,
			TaskID:        p.TaskID,
			Fields:        p.Fields,
			Missing:       p.Missing,
			Clarification: p.Clarification,
			CreatedAt:     e.Timestamp,
		}
		if _, err := s.Record(context.Background(), entry); err != nil {
			slog.Warn("history record failed", "session_id", e.SessionID, "error", err)
		}
	}, events.EventTurnHandled)
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close detaches from the bus and closes the database.
func (s *Store) Close() error {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	return s.db.Close()
}
