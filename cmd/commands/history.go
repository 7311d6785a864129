package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/history"
)

// NewHistoryCommand returns the history subcommand.
func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recently handled turns",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "session",
				Aliases: []string{"s"},
				Usage:   "Only show turns of this session",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Number of turns to show",
				Value:   20,
			},
		},
		Action: runHistory,
	}
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	h, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	entries, err := h.Recent(ctx, cmd.String("session"), int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No turns recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSESSION\tINTENT\tVALID\tUTTERANCE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
			e.CreatedAt.Format("2006-01-02 15:04"),
			e.SessionID,
			e.Intent,
			e.Valid,
			e.Utterance,
		)
	}
	return w.Flush()
}
