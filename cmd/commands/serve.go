package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/config"
	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/gateway"
	"github.com/dohr-michael/jarvis/internal/heartbeat"
	"github.com/dohr-michael/jarvis/internal/history"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/sessions"
	"github.com/dohr-michael/jarvis/internal/sweeper"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the Jarvis gateway server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// CLI flags override config
	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = int(cmd.Int("port"))
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cfg.History.IsEnabled() {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer h.Close()
		h.Attach(bus)
		slog.Info("history enabled", "path", h.Path())
	}

	opts, err := dialogOptions(cfg, bus)
	if err != nil {
		return err
	}
	classifier := intents.NewClassifier(nil)
	registry := sessions.NewRegistry(classifier, opts)

	sw, err := sweeper.New(sweeper.Config{
		Registry:   registry,
		Bus:        bus,
		Schedule:   cfg.Sweeper.Schedule,
		StaleAfter: cfg.Sweeper.StaleAfter.Duration(),
	})
	if err != nil {
		return err
	}
	sw.Start()
	defer sw.Stop()

	server := gateway.NewServer(bus, registry, classifier, cfg.Gateway.Host, cfg.Gateway.Port)
	server.SetStaleAfter(cfg.Sweeper.StaleAfter.Duration())

	// SIGHUP re-reads .env and config; only the log level applies without a restart.
	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.OnReload(func(c *config.Config) {
		logLevel.Set(c.SlogLevel())
	})
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	hb := heartbeat.NewWriter(config.HeartbeatPath(), addr, heartbeat.DefaultInterval, registry.Len)
	if err := hb.Start(); err != nil {
		slog.Warn("heartbeat disabled", "error", err)
	}
	defer hb.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	for {
		select {
		case <-hup:
			if err := reloader.Reload(); err != nil {
				slog.Error("config reload failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	}
}
