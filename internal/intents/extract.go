package intents

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// slotRule turns a regexp match into a slot value. A rule that returns "" is
// treated as no match and the next rule is tried.
type slotRule struct {
	re    *regexp.Regexp
	value func(m []string) string
}

func group(n int) func([]string) string {
	return func(m []string) string { return strings.TrimSpace(m[n]) }
}

// firstMatch applies rules in order and returns the first non-empty value.
func firstMatch(rules []slotRule, text string) (string, bool) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := r.value(m); v != "" {
			return v, true
		}
	}
	return "", false
}

// Title precedence: known activity noun, then "going to X", then verb phrase.
var titleRules = []slotRule{
	{regexp.MustCompile(`\b(gym|workout|meeting|lunch|dinner|appointment|call)\b`), group(0)},
	{regexp.MustCompile(`\bgoing to\s+(?:the\s+)?(\w+)`), group(1)},
	{regexp.MustCompile(`\b(?:schedule|create|add|plan|book)\s+(?:an?\s+|the\s+)?(.+?)(?:\s+(?:at|for|on|today|tomorrow)\b|$)`), group(1)},
}

// Time precedence: H:MM with optional meridiem, H with meridiem, bare "at H".
var timeRules = []slotRule{
	{regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(am|pm)?\b`), func(m []string) string {
		return formatTime(m[1], m[2], m[3])
	}},
	{regexp.MustCompile(`\b(\d{1,2})\s*(am|pm)\b`), func(m []string) string {
		return formatTime(m[1], "00", m[2])
	}},
	{regexp.MustCompile(`\bat\s+(\d{1,2})\b(?:[^:\d]|$)`), func(m []string) string {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 7 {
			h += 12
		}
		return fmt.Sprintf("%02d:00", h)
	}},
}

var recipientRe = regexp.MustCompile(`[\w.\-+]+@[\w.\-]+\.\w+`)

var subjectRules = []slotRule{
	{regexp.MustCompile(`\bsubject\s*(?:is|:|=)\s*(.+?)(?:\s+(?:and|saying)\b|[.?!]|$)`), group(1)},
	{regexp.MustCompile(`\bwith (?:the )?subject\s+(.+?)(?:\s+(?:and|saying)\b|[.?!]|$)`), group(1)},
	{regexp.MustCompile(`\babout\s+(.+?)(?:\s+(?:and|saying)\b|[.?!]|$)`), group(1)},
}

var contentRules = []slotRule{
	{regexp.MustCompile(`\bsaying\s+(.+?)(?:[.?!]|$)`), group(1)},
	{regexp.MustCompile(`\b(?:body|message|content)\s*(?:is|:)\s*(.+?)(?:[.?!]|$)`), group(1)},
}

var webQueryRules = []slotRule{
	{regexp.MustCompile(`search for (.+?)(?:\.|$)`), group(1)},
	{regexp.MustCompile(`look up (.+?)(?:\.|$)`), group(1)},
	{regexp.MustCompile(`find (.+?)(?:\.|$)`), group(1)},
	{regexp.MustCompile(`google (.+?)(?:\.|$)`), group(1)},
}

var calendarQueryRules = []slotRule{
	{regexp.MustCompile(`\b(?:find|search for|look for)\s+(?:my\s+|the\s+)?(.+?)(?:[.?]|$)`), group(1)},
	{regexp.MustCompile(`\bwhen (?:is|was)\s+(?:my\s+|the\s+)?(.+?)(?:[.?]|$)`), group(1)},
}

var memoryQueryRules = []slotRule{
	{regexp.MustCompile(`\bwhat did (?:i|you|we) (?:say|tell|mention)(?: you| me)?\s+about\s+(.+?)(?:[.?]|$)`), group(1)},
	{regexp.MustCompile(`\b(?:remember|recall)\s+(?:what\s+)?(.+?)(?:[.?]|$)`), group(1)},
}

var appNameRules = []slotRule{
	{regexp.MustCompile(`\b(?:open|launch|start)\s+(?:the\s+)?(.+?)(?:\s+(?:app|application|program))?(?:[.?!]|$)`), group(1)},
}

// ExtractFields pulls slot values for intent i out of text. Slots that cannot be
// filled are absent from the result; extraction never fails.
func (c *Classifier) ExtractFields(text string, i Intent) Fields {
	lower := strings.ToLower(text)
	fields := Fields{}

	set := func(slot string, rules []slotRule, in string) {
		if v, ok := firstMatch(rules, in); ok {
			fields[slot] = v
		}
	}

	switch i {
	case CalendarCreate:
		set(SlotTitle, titleRules, lower)
		set(SlotTime, timeRules, lower)
		if d, ok := c.resolveDate(lower); ok {
			fields[SlotDate] = d
		}
	case EmailSend:
		if strings.Contains(text, "@") {
			if addr := recipientRe.FindString(text); addr != "" {
				fields[SlotTo] = addr
			}
		}
		set(SlotSubject, subjectRules, lower)
		set(SlotContent, contentRules, lower)
	case Terminal:
		// Interpretation of the command is left to the downstream agent.
		fields[SlotCommand] = text
	case WebSearch:
		set(SlotQuery, webQueryRules, lower)
	case CalendarSearch:
		set(SlotQuery, calendarQueryRules, lower)
	case MemoryLookup:
		set(SlotQuery, memoryQueryRules, lower)
	case AppLaunch:
		set(SlotAppName, appNameRules, lower)
	}
	return fields
}

func (c *Classifier) resolveDate(lower string) (string, bool) {
	now := c.clock.Now()
	switch {
	case strings.Contains(lower, "tomorrow"):
		return now.AddDate(0, 0, 1).Format("2006-01-02"), true
	case strings.Contains(lower, "today"):
		return now.Format("2006-01-02"), true
	}
	return "", false
}

// formatTime normalizes an hour/minute/meridiem triple to HH:MM. Out-of-range
// values are passed through unchecked.
func formatTime(hour, minute, meridiem string) string {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return ""
	}
	switch {
	case meridiem == "pm" && h < 12:
		h += 12
	case meridiem == "am" && h == 12:
		h = 0
	}
	if minute == "" {
		minute = "00"
	}
	return fmt.Sprintf("%02d:%s", h, minute)
}
