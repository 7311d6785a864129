// Command jarvis runs the slot-filling dialog locally or as a gateway.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dohr-michael/jarvis/cmd/commands"
	"github.com/dohr-michael/jarvis/internal/config"
)

func main() {
	// Variables from .env feed ${{ .Env.X }} templates in config.jsonc.
	if err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("dotenv not loaded", "path", config.DotenvPath(), "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().Run(ctx, os.Args); err != nil {
		slog.Error("jarvis failed", "error", err)
		stop()
		os.Exit(1)
	}
}
