package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	wsclient "github.com/dohr-michael/jarvis/clients/ws"
	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/events"
	"github.com/dohr-michael/jarvis/internal/history"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/sessions"
)

// NewChatCommand returns the chat subcommand.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive dialog on stdin (/tasks shows pending tasks, /quit exits)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "gateway",
				Usage: "Gateway WebSocket URL (empty = run the dialog in-process)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print intent, confidence and extracted fields for each turn",
			},
		},
		Action: runChat,
	}
}

// turnFunc handles one utterance; tasksFunc renders the pending tasks.
type (
	turnFunc  func(utterance string) (dialog.Turn, error)
	tasksFunc func() (string, error)
)

func runChat(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if url := cmd.String("gateway"); url != "" {
		c, err := wsclient.Dial(ctx, url)
		if err != nil {
			return fmt.Errorf("connect to gateway: %w", err)
		}
		defer c.Close()
		sid, err := c.OpenSession()
		if err != nil {
			return fmt.Errorf("open session: %w", err)
		}
		fmt.Fprintf(os.Stderr, "session: %s\n", sid)

		turn := func(u string) (dialog.Turn, error) {
			var t dialog.Turn
			err := c.SendMessage(sid, u, &t)
			return t, err
		}
		tasks := func() (string, error) {
			var list struct {
				Summary string `json:"summary"`
			}
			err := c.ListTasks(sid, &list)
			return list.Summary, err
		}
		return chatLoop(ctx, os.Stdin, os.Stdout, turn, tasks, chatPrompt(), cmd.Bool("verbose"))
	}

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	if cfg.History.IsEnabled() {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			slog.Warn("history disabled", "path", cfg.History.Path, "error", err)
		} else {
			defer h.Close()
			h.Attach(bus)
		}
	}

	opts, err := dialogOptions(cfg, bus)
	if err != nil {
		return err
	}
	registry := sessions.NewRegistry(intents.NewClassifier(nil), opts)
	sid := registry.Open().ID

	turn := func(u string) (dialog.Turn, error) { return registry.Turn(sid, u) }
	tasks := func() (string, error) {
		var summary string
		err := registry.Do(sid, func(o *dialog.Orchestrator) error {
			summary = o.Store().Summary()
			return nil
		})
		return summary, err
	}
	return chatLoop(ctx, os.Stdin, os.Stdout, turn, tasks, chatPrompt(), cmd.Bool("verbose"))
}

// chatPrompt is empty when stdin is piped so scripted output stays clean.
func chatPrompt() string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "> "
	}
	return ""
}

func chatLoop(ctx context.Context, in io.Reader, out io.Writer, turn turnFunc, tasks tasksFunc, prompt string, verbose bool) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "/quit", "/exit":
			return nil
		case "/tasks":
			summary, err := tasks()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, summary)
		default:
			t, err := turn(line)
			if err != nil {
				return err
			}
			if verbose {
				fmt.Fprintf(out, "[%s %.2f follow_up=%v] %v\n", t.Intent, t.Confidence, t.FollowUp, t.Result.Fields)
			}
			fmt.Fprintln(out, t.Reply)
		}
		fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}
