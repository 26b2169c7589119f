package outbox

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show outbox statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}

		stats, err := a.OutboxRepo.Statistics(cmd.Context())
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, stats)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Outbox")
		fmt.Fprintf(out, "  Total:      %d\n", stats.Total)
		fmt.Fprintf(out, "  Pending:    %d\n", stats.Pending)
		fmt.Fprintf(out, "  Retrying:   %d\n", stats.Retrying)
		fmt.Fprintf(out, "  Exhausted:  %d\n", stats.Exhausted)
		fmt.Fprintf(out, "  Published:  %d\n", stats.Published)
		fmt.Fprintf(out, "  Avg retries: %.2f\n", stats.AvgRetryCount)
		if stats.OldestPending != nil {
			fmt.Fprintf(out, "  Oldest pending: %s (%s ago)\n",
				stats.OldestPending.Format(time.RFC3339),
				time.Since(*stats.OldestPending).Round(time.Second))
		}
		return nil
	},
}
