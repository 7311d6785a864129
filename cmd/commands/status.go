package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/config"
	"github.com/dohr-michael/jarvis/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show whether a local gateway is running",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "max-age",
				Usage: "Heartbeats older than this are reported stale",
				Value: 2 * heartbeat.DefaultInterval,
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			return printStatus(os.Stdout, config.HeartbeatPath(), cmd.Duration("max-age"))
		},
	}
}

func printStatus(w io.Writer, path string, maxAge time.Duration) error {
	status, hb, err := heartbeat.Check(path, maxAge)
	if err != nil {
		return err
	}

	switch status {
	case heartbeat.StatusDead:
		fmt.Fprintln(w, "Gateway: not running")
	case heartbeat.StatusStale:
		fmt.Fprintf(w, "Gateway: stale (pid %d, last beat %s ago)\n",
			hb.PID, time.Since(hb.Timestamp).Truncate(time.Second))
	default:
		fmt.Fprintf(w, "Gateway: running on %s (pid %d)\n", hb.Addr, hb.PID)
		fmt.Fprintf(w, "  Uptime:   %s\n", hb.Uptime())
		fmt.Fprintf(w, "  Sessions: %d\n", hb.Sessions)
	}
	return nil
}
