// Package sweeper periodically drops finished tasks from every session and
// abandons tasks that have waited too long for an answer.
package sweeper

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/sessions"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

// Report is the outcome of sweeping one session.
type Report struct {
	SessionID string   `json:"session_id"`
	Removed   int      `json:"removed"`
	Abandoned []string `json:"abandoned,omitempty"`
}

// Sweep clears terminal tasks from store, then fails active tasks idle longer
// than staleAfter. Abandoned tasks stay visible as failed until the next sweep.
func Sweep(store *tasks.Store, staleAfter time.Duration) Report {
	removed := store.ClearCompleted()
	abandoned := tasks.AbandonStale(store, staleAfter)
	return Report{Removed: removed, Abandoned: abandoned}
}

// Config holds dependencies for the sweeper.
type Config struct {
	Registry   *sessions.Registry
	Bus        *events.Bus // nil-safe
	Schedule   string
	StaleAfter time.Duration // 0 disables abandoning
}

// Sweeper runs Sweep over every open session on a cron schedule.
type Sweeper struct {
	registry   *sessions.Registry
	bus        *events.Bus
	cron       *CronExpr
	staleAfter time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates a Sweeper. The schedule is validated here so bad config fails at startup.
func New(cfg Config) (*Sweeper, error) {
	expr, err := ParseCron(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("sweeper schedule: %w", err)
	}
	return &Sweeper{
		registry:   cfg.Registry,
		bus:        cfg.Bus,
		cron:       expr,
		staleAfter: cfg.StaleAfter,
		done:       make(chan struct{}),
	}, nil
}

// Start begins the schedule loop.
func (s *Sweeper) Start() {
	slog.Info("sweeper started", "schedule", s.cron.String(), "stale_after", s.staleAfter)
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	slog.Info("sweeper stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()
	for {
		now := time.Now()
		timer := time.NewTimer(s.cron.Next(now).Sub(now))
		select {
		case <-s.done:
			timer.Stop()
			return
		case <-timer.C:
			s.SweepAll()
		}
	}
}

// SweepAll sweeps every open session and returns the reports of sessions where
// something changed.
func (s *Sweeper) SweepAll() []Report {
	var reports []Report
	s.registry.Each(func(id string, o *dialog.Orchestrator) {
		r := Sweep(o.Store(), s.staleAfter)
		r.SessionID = id
		if r.Removed == 0 && len(r.Abandoned) == 0 {
			return
		}
		reports = append(reports, r)
		s.publish(r)
	})
	if len(reports) > 0 {
		slog.Info("sweep done", "sessions", len(reports))
	}
	return reports
}

func (s *Sweeper) publish(r Report) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.NewTypedEvent(events.SourceSweeper, r.SessionID, events.TasksSweptPayload{
		Removed:   r.Removed,
		Abandoned: r.Abandoned,
	}))
}
