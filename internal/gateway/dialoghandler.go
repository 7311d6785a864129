package gateway

import (
	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/sessions"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

// sessionDialog implements ws.Dialog over the session registry. The HTTP
// handlers go through it too, so both transports behave the same.
type sessionDialog struct {
	registry *sessions.Registry
}

type taskList struct {
	Tasks   []*tasks.Task `json:"tasks"`
	Summary string        `json:"summary"`
}

type cancelResult struct {
	Cancelled bool        `json:"cancelled"`
	Task      *tasks.Task `json:"task,omitempty"`
}

func (d *sessionDialog) OpenSession() (string, error) {
	return d.registry.Open().ID, nil
}

func (d *sessionDialog) Turn(sessionID, utterance string) (any, error) {
	return d.turn(sessionID, utterance)
}

func (d *sessionDialog) turn(sessionID, utterance string) (dialog.Turn, error) {
	return d.registry.Turn(sessionID, utterance)
}

func (d *sessionDialog) Tasks(sessionID string) (any, error) {
	return d.tasks(sessionID)
}

func (d *sessionDialog) tasks(sessionID string) (taskList, error) {
	var out taskList
	err := d.registry.Do(sessionID, func(o *dialog.Orchestrator) error {
		out.Tasks = o.Store().List()
		out.Summary = o.Store().Summary()
		return nil
	})
	return out, err
}

func (d *sessionDialog) Cancel(sessionID, reason string) (any, error) {
	return d.cancel(sessionID, reason)
}

func (d *sessionDialog) cancel(sessionID, reason string) (cancelResult, error) {
	if reason == "" {
		reason = "cancelled via gateway"
	}
	var out cancelResult
	err := d.registry.Do(sessionID, func(o *dialog.Orchestrator) error {
		out.Task, out.Cancelled = o.Cancel(reason)
		return nil
	})
	return out, err
}
