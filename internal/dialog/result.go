// Package dialog drives slot filling across turns: it checks extracted slots
// against an intent's requirements, asks for what is missing and merges answers
// into the pending task until it is complete.
package dialog

import "github.com/dohr-michael/jarvis/internal/intents"

// Result is the outcome of validating one utterance.
type Result struct {
	Intent        intents.Intent `json:"intent"`
	TaskID        string         `json:"task_id,omitempty"`
	Valid         bool           `json:"is_valid"`
	Missing       []string       `json:"missing_fields"`
	Fields        intents.Fields `json:"extracted_fields"`
	Clarification string         `json:"clarification,omitempty"`
}

// Turn is what Orchestrator.Turn did with an utterance.
type Turn struct {
	Utterance  string         `json:"utterance"`
	Intent     intents.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
	FollowUp   bool           `json:"follow_up"` // answered a pending clarification
	Cancelled  bool           `json:"cancelled"`
	Result     Result         `json:"result"`
	// Reply is the text to say back: a clarification, a cancellation
	// acknowledgement, or the task description handed downstream.
	Reply string `json:"reply"`
}
