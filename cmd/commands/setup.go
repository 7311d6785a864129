package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/config"
	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/events"
)

// logLevel is shared so a config reload can change verbosity in place.
var logLevel = new(slog.LevelVar)

// loadConfig reads the config named by --config, falling back to defaults when
// the file is absent, and installs the slog handler.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logLevel.Set(cfg.SlogLevel())
	if cmd.Bool("debug") {
		logLevel.Set(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}

// dialogOptions builds the orchestrator template from config.
func dialogOptions(cfg *config.Config, bus *events.Bus) (dialog.Options, error) {
	opts := dialog.Options{Bus: bus, CancelPhrases: cfg.Dialog.CancelPhrases}
	if p := cfg.Dialog.ClarificationsFile; p != "" {
		pb, err := dialog.LoadPhrasebook(p)
		if err != nil {
			return dialog.Options{}, err
		}
		opts.Phrasebook = pb
	}
	return opts, nil
}
