package outbox

import (
	"github.com/spf13/cobra"
)

// Cmd is the outbox command group
var Cmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and drain the event outbox",
	Long: `Inspect the event outbox and deliver pending events by hand.

The worker drains the outbox continuously; these commands are for
operators and for installations that run without it.`,
}

func init() {
	Cmd.AddCommand(runOnceCmd)
	Cmd.AddCommand(statsCmd)
	Cmd.AddCommand(exhaustedCmd)
}
