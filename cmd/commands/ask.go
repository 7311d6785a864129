package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/dialog"
	"github.com/dohr-michael/jarvis/internal/intents"
	"github.com/dohr-michael/jarvis/internal/tasks"
)

// NewAskCommand returns the ask subcommand.
func NewAskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Classify one utterance and print the intent, slots and reply",
		ArgsUsage: "<utterance>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "intent",
				Usage: "Skip classification and validate against this intent",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the result as JSON",
			},
		},
		Action: runAsk,
	}
}

type askResult struct {
	Intent     intents.Intent `json:"intent"`
	Confidence float64        `json:"confidence"`
	dialog.Result
	Reply string `json:"reply"`
}

func runAsk(_ context.Context, cmd *cli.Command) error {
	utterance := strings.Join(cmd.Args().Slice(), " ")
	if utterance == "" {
		return fmt.Errorf("usage: jarvis ask <utterance>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, err := dialogOptions(cfg, nil)
	if err != nil {
		return err
	}

	classifier := intents.NewClassifier(nil)
	o := dialog.New(classifier, tasks.NewStore(), opts)

	var res askResult
	if name := cmd.String("intent"); name != "" {
		i, err := intents.ParseIntent(name)
		if err != nil {
			return err
		}
		res.Intent, res.Confidence = i, 1
		res.Result = o.ValidateAndExtract(utterance, i)
		if res.Valid {
			res.Reply = dialog.Describe(i, res.Fields)
		} else {
			res.Reply = res.Clarification
		}
	} else {
		t := o.Turn(utterance)
		res.Intent, res.Confidence, res.Result, res.Reply = t.Intent, t.Confidence, t.Result, t.Reply
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("intent:     %s\n", res.Intent)
	fmt.Printf("confidence: %.2f\n", res.Confidence)
	fmt.Printf("valid:      %v\n", res.Valid)
	if len(res.Fields) > 0 {
		fmt.Printf("fields:     %v\n", map[string]string(res.Fields))
	}
	if len(res.Missing) > 0 {
		fmt.Printf("missing:    %s\n", strings.Join(res.Missing, ", "))
	}
	fmt.Println(res.Reply)
	return nil
}
