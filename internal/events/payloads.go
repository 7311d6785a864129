package events

import (
	"encoding/json"
	"time"
)

// EventPayload is implemented by every typed payload.
type EventPayload interface {
	EventType() EventType
}

type IntentClassifiedPayload struct {
	Utterance  string  `json:"utterance"`
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

func (IntentClassifiedPayload) EventType() EventType { return EventIntentClassified }

type ClarificationPayload struct {
	TaskID        string            `json:"task_id"`
	Intent        string            `json:"intent"`
	Missing       []string          `json:"missing"`
	Fields        map[string]string `json:"fields,omitempty"`
	Clarification string            `json:"clarification"`
}

func (ClarificationPayload) EventType() EventType { return EventClarificationRequested }

// TaskPayload is shared by the task lifecycle events; Kind selects the event type.
type TaskPayload struct {
	Kind   EventType         `json:"-"`
	TaskID string            `json:"task_id"`
	Intent string            `json:"intent"`
	Status string            `json:"status"`
	Fields map[string]string `json:"fields,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

func (p TaskPayload) EventType() EventType { return p.Kind }

type TasksSweptPayload struct {
	Removed   int      `json:"removed"`
	Abandoned []string `json:"abandoned,omitempty"`
}

func (TasksSweptPayload) EventType() EventType { return EventTasksSwept }

// TurnPayload summarizes one handled utterance.
type TurnPayload struct {
	Utterance     string            `json:"utterance"`
	Intent        string            `json:"intent"`
	Confidence    float64           `json:"confidence"`
	FollowUp      bool              `json:"follow_up"`
	Valid         bool              `json:"valid"`
	TaskID        string            `json:"task_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
	Missing       []string          `json:"missing,omitempty"`
	Clarification string            `json:"clarification,omitempty"`
}

func (TurnPayload) EventType() EventType { return EventTurnHandled }

// NewTypedEvent builds an event from a typed payload.
func NewTypedEvent(source EventSource, sessionID string, payload EventPayload) Event {
	return Event{
		ID:        nextEventID(),
		SessionID: sessionID,
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ExtractPayload decodes e.Payload into T.
func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var out T
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}
