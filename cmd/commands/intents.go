package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/jarvis/internal/intents"
)

// NewIntentsCommand returns the intents subcommand.
func NewIntentsCommand() *cli.Command {
	return &cli.Command{
		Name:   "intents",
		Usage:  "List known intents and their required slots",
		Action: runIntents,
	}
}

func runIntents(_ context.Context, _ *cli.Command) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INTENT\tRULES\tREQUIRED")
	for _, d := range intents.Definitions() {
		required := strings.Join(d.Required, ", ")
		if required == "" {
			required = "-"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\n", d.Intent, len(d.Rules), required)
	}
	return w.Flush()
}
