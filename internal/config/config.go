package config

import "time"

// Config is the root configuration for Jarvis.
type Config struct {
	Gateway  GatewayConfig `json:"gateway"`
	Events   EventsConfig  `json:"events"`
	LogLevel string        `json:"log_level"` // debug, info, warn, error
	Dialog   DialogConfig  `json:"dialog"`
	Sweeper  SweeperConfig `json:"sweeper"`
	History  HistoryConfig `json:"history"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int `json:"buffer_size"`
}

// DialogConfig tunes the clarification dialog.
type DialogConfig struct {
	ClarificationsFile string   `json:"clarifications_file,omitempty"` // YAML phrasebook overriding prompts
	CancelPhrases      []string `json:"cancel_phrases,omitempty"`      // empty = built-in list
}

// SweeperConfig schedules cleanup of finished and abandoned tasks.
type SweeperConfig struct {
	Schedule   string   `json:"schedule"`              // cron expression or descriptor like "@every 5m"
	StaleAfter Duration `json:"stale_after,omitempty"` // 0 = never abandon idle tasks
}

// HistoryConfig configures the turn log.
type HistoryConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // default true
	Path    string `json:"path"`              // default $JARVIS_PATH/history.db
}

// IsEnabled reports whether the history log should be opened.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
