// Package intents provides the rule-based intent catalog, classifier and slot extractor.
package intents

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrUnknownIntent is returned by ParseIntent for tags outside the catalog.
var ErrUnknownIntent = errors.New("unknown intent")

// Intent is the closed set of things a user can ask for.
type Intent string

const (
	CalendarCreate Intent = "calendar_create"
	CalendarCheck  Intent = "calendar_check"
	CalendarSearch Intent = "calendar_search"
	EmailSend      Intent = "email_send"
	EmailRead      Intent = "email_read"
	Weather        Intent = "weather"
	AppLaunch      Intent = "app_launch"
	Terminal       Intent = "terminal"
	WebSearch      Intent = "web_search"
	MemoryLookup   Intent = "memory_lookup"
	General        Intent = "general"
)

// Slot names shared across intents.
const (
	SlotTitle   = "title"
	SlotTime    = "time"
	SlotDate    = "date"
	SlotTo      = "to"
	SlotSubject = "subject"
	SlotContent = "content"
	SlotCommand = "command"
	SlotQuery   = "query"
	SlotAppName = "app_name"
)

// Fields maps slot names to extracted values.
type Fields map[string]string

// Clone returns an independent copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Definition is the static data an intent owns.
type Definition struct {
	Intent   Intent
	Rules    []*regexp.Regexp  // classification rules, evaluated against lower-cased text
	Required []string          // required slots, in the order clarifications are asked
	Prompts  map[string]string // slot -> clarification question
}

// catalog is evaluated in this order; earlier entries win confidence ties.
var catalog = []Definition{
	{
		Intent: CalendarCreate,
		Rules: compile(
			`\b(schedule|create|add|plan|set up)\b.*\b(meeting|event|appointment|reminder)\b`,
			`\b(tomorrow|today|next week|next month)\b.*\b(at|@)\b.*\d+`,
			`\bremind me\b.*\b(about|to)\b`,
			`\b(gym|workout|dinner|lunch|meeting)\b.*\b(at|@)\b.*\d+`,
			`\bgoing to\b.*\b(gym|meeting|appointment)`,
			`\b(calendar|schedule)\b.*\b(for|at)\b`,
		),
		Required: []string{SlotTitle},
		Prompts: map[string]string{
			SlotTitle: "What should I call this event?",
			SlotDate:  "What date is this for? (e.g., tomorrow, today, 2024-03-08)",
			SlotTime:  "What time should this be scheduled for? (e.g., 3:00 PM, 15:00)",
		},
	},
	{
		Intent: CalendarCheck,
		Rules: compile(
			`\b(check|show|what's|whats)\b.*\b(calendar|schedule|events|meetings)\b`,
			`\b(what do i have|what's on my)\b.*\b(calendar|schedule)\b`,
			`\b(upcoming|next)\b.*\b(events|meetings|appointments)\b`,
			`\b(free|available|busy)\b.*\b(today|tomorrow|next week)\b`,
		),
	},
	{
		Intent: CalendarSearch,
		Rules: compile(
			`\b(find|search|look for)\b.*\b(event|meeting|appointment)\b`,
			`\b(when was|when is)\b.*\b(meeting|event|appointment)\b`,
		),
		Required: []string{SlotQuery},
		Prompts: map[string]string{
			SlotQuery: "Which event are you looking for?",
		},
	},
	{
		Intent: EmailSend,
		Rules: compile(
			`\b(send|write|compose)\b.*\b(email|message|mail)\b`,
			`\b(email|mail)\b.*\b(to|about)\b`,
			`\btell\b.*\b(via email|by email)\b`,
		),
		Required: []string{SlotTo, SlotSubject},
		Prompts: map[string]string{
			SlotTo:      "Who should I send this email to?",
			SlotSubject: "What should the subject line be?",
			SlotContent: "What should the email say?",
		},
	},
	{
		Intent: EmailRead,
		Rules: compile(
			`\b(check|read|show)\b.*\b(email|emails|mail|inbox)\b`,
			`\b(any new|latest)\b.*\b(email|mail|messages)\b`,
		),
	},
	{
		Intent: Weather,
		Rules: compile(
			`\b(weather|temperature|forecast)\b`,
			`\b(how's|what's|whats)\b.*\b(weather|temperature)\b`,
			`\b(rain|sunny|cloudy|hot|cold)\b.*\b(today|tomorrow|outside)\b`,
		),
	},
	{
		Intent: AppLaunch,
		Rules: compile(
			`\b(open|launch|start|run)\b.*\b(app|application|program)\b`,
			`\b(open|launch|start)\b\s+\w+\.(app|exe|com)\b`,
			`\bopen\b\s+(chrome|firefox|safari|spotify|slack|discord|teams)\b`,
		),
		Required: []string{SlotAppName},
		Prompts: map[string]string{
			SlotAppName: "Which application would you like me to open?",
		},
	},
	{
		Intent: Terminal,
		Rules: compile(
			`\b(run|execute|terminal|command)\b`,
			`\b(bash|shell|cmd)\b`,
			`\bgit\b.*\b(status|commit|push|pull)\b`,
			`\b(ls|cd|mkdir|rm|cp|mv)\b`,
			`\b(npm|pip|docker)\b`,
			`\brun\s+\w+`,
			`\bls\b.*\bon\b`,
			// speech-to-text often hears "ls" as "ellis"
			`\bellis\b`,
		),
		Required: []string{SlotCommand},
		Prompts: map[string]string{
			SlotCommand: "What command should I run?",
		},
	},
	{
		Intent: WebSearch,
		Rules: compile(
			`\b(search|google|look up|find)\b.*\b(for|about|on)\b`,
			`\b(what is|who is|how to)\b`,
			`\b(browse|web|internet)\b.*\b(search|for)\b`,
		),
		Required: []string{SlotQuery},
		Prompts: map[string]string{
			SlotQuery: "What would you like me to search for?",
		},
	},
	{
		Intent: MemoryLookup,
		Rules: compile(
			`\b(remember|recall|what did)\b.*\b(say|tell|mention)\b`,
			`\b(previous|earlier|before)\b.*\b(conversation|discussion)\b`,
			`\b(context|history|past)\b`,
		),
		Required: []string{SlotQuery},
		Prompts: map[string]string{
			SlotQuery: "What should I look up from our past conversations?",
		},
	},
}

var general = Definition{Intent: General}

var byIntent = func() map[Intent]*Definition {
	m := make(map[Intent]*Definition, len(catalog)+1)
	for i := range catalog {
		m[catalog[i].Intent] = &catalog[i]
	}
	m[General] = &general
	return m
}()

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Definitions returns the catalog in classification order, General last.
func Definitions() []Definition {
	out := make([]Definition, 0, len(catalog)+1)
	out = append(out, catalog...)
	return append(out, general)
}

// Lookup returns the definition of i.
func Lookup(i Intent) (Definition, bool) {
	d, ok := byIntent[i]
	if !ok {
		return Definition{}, false
	}
	return *d, true
}

// ParseIntent validates a tag against the catalog.
func ParseIntent(s string) (Intent, error) {
	if _, ok := byIntent[Intent(s)]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownIntent, s)
	}
	return Intent(s), nil
}

// RequiredSlots returns the slots i needs before it can run. Unknown intents need nothing.
func RequiredSlots(i Intent) []string {
	d, ok := byIntent[i]
	if !ok || len(d.Required) == 0 {
		return []string{}
	}
	return append([]string(nil), d.Required...)
}

// Prompt returns the clarification question for slot on intent i.
func Prompt(i Intent, slot string) (string, bool) {
	d, ok := byIntent[i]
	if !ok {
		return "", false
	}
	q, ok := d.Prompts[slot]
	return q, ok
}

func (i Intent) String() string { return string(i) }
