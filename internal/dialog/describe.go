package dialog

import (
	"fmt"

	"github.com/dohr-michael/jarvis/internal/intents"
)

// Describe renders a validated field set as the instruction handed to the
// downstream agent. Calendar events default to tomorrow at 09:00.
func Describe(i intents.Intent, f intents.Fields) string {
	get := func(k, def string) string {
		if v, ok := f[k]; ok && v != "" {
			return v
		}
		return def
	}

	switch {
	case f[intents.SlotTitle] != "":
		return fmt.Sprintf("Create calendar event: title='%s', date='%s', time='%s'",
			f[intents.SlotTitle], get(intents.SlotDate, "tomorrow"), get(intents.SlotTime, "09:00"))
	case f[intents.SlotTo] != "":
		return fmt.Sprintf("Send email to %s with subject '%s' and content '%s'",
			f[intents.SlotTo], get(intents.SlotSubject, ""), get(intents.SlotContent, ""))
	case f[intents.SlotQuery] != "":
		return "Search for: " + f[intents.SlotQuery]
	case f[intents.SlotCommand] != "":
		return "Run command: " + f[intents.SlotCommand]
	case f[intents.SlotAppName] != "":
		return "Open application: " + f[intents.SlotAppName]
	case len(f) == 0:
		return "Handle request: " + string(i)
	default:
		return fmt.Sprintf("Execute %s with fields: %s", i, summarize(f))
	}
}
