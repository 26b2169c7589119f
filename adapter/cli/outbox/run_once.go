package outbox

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
)

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Deliver one batch of eligible events",
	Long: `Claim one batch of eligible events and publish them.

Failed publishes are recorded on the event and retried with
exponential backoff by the next run.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}

		result, err := a.Dispatcher.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, result)
		}

		out := cmd.OutOrStdout()
		if result.Claimed == 0 {
			fmt.Fprintln(out, "Nothing to deliver.")
			return nil
		}
		fmt.Fprintf(out, "Claimed %d, published %d, failed %d", result.Claimed, result.Published, result.Failed)
		if result.Exhausted > 0 {
			fmt.Fprintf(out, " (%d exhausted)", result.Exhausted)
		}
		fmt.Fprintln(out)
		return nil
	},
}
