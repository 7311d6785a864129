package dialog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/jarvis/internal/intents"
)

// Phrasebook overrides clarification questions per intent and slot.
//
//	email_send:
//	  subject: "What's this email about?"
type Phrasebook map[intents.Intent]map[string]string

// LoadPhrasebook reads a YAML phrasebook. Unknown intents are rejected so typos surface early.
func LoadPhrasebook(path string) (Phrasebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phrasebook: %w", err)
	}
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse phrasebook: %w", err)
	}
	pb := make(Phrasebook, len(raw))
	for name, slots := range raw {
		i, err := intents.ParseIntent(name)
		if err != nil {
			return nil, fmt.Errorf("phrasebook: %w", err)
		}
		pb[i] = slots
	}
	return pb, nil
}

func (pb Phrasebook) question(i intents.Intent, slot string) (string, bool) {
	if q, ok := pb[i][slot]; ok && q != "" {
		return q, true
	}
	return intents.Prompt(i, slot)
}

// Clarify builds the question for the missing slots. One missing slot gets its
// question followed by what is already known; several are joined with "And".
func (pb Phrasebook) Clarify(i intents.Intent, missing []string, known intents.Fields) string {
	if len(missing) == 1 {
		slot := missing[0]
		msg, ok := pb.question(i, slot)
		if !ok {
			msg = fmt.Sprintf("I need to know the %s.", slot)
		}
		if len(known) > 0 {
			msg += " I have: " + summarize(known)
		}
		return msg
	}

	questions := make([]string, len(missing))
	for n, slot := range missing {
		q, ok := pb.question(i, slot)
		if !ok {
			q = fmt.Sprintf("What is the %s?", slot)
		}
		questions[n] = q
	}
	return "I need a bit more information: " + strings.Join(questions, " And ")
}

// summarize renders fields as "k: v, k: v" with keys sorted.
func summarize(f intents.Fields) string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for n, k := range keys {
		parts[n] = k + ": " + f[k]
	}
	return strings.Join(parts, ", ")
}
