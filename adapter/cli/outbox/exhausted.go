package outbox

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
)

var exhaustedLimit int

// exhaustedEvent is the JSON shape of one exhausted event.
type exhaustedEvent struct {
	ID          int64     `json:"id"`
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error"`
	CreatedAt   time.Time `json:"created_at"`
}

var exhaustedCmd = &cobra.Command{
	Use:   "exhausted",
	Short: "List events that ran out of retries",
	Long: `List events that failed on every retry. They are never
delivered again without operator action.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}

		msgs, err := a.OutboxRepo.ListExhausted(cmd.Context(), exhaustedLimit)
		if err != nil {
			return err
		}

		if cli.JSONOutput() {
			events := make([]exhaustedEvent, 0, len(msgs))
			for _, m := range msgs {
				events = append(events, exhaustedEvent{
					ID:          m.ID,
					EventID:     m.EventID.String(),
					EventType:   m.EventType,
					AggregateID: m.AggregateID.String(),
					RetryCount:  m.RetryCount,
					LastError:   m.LastError,
					CreatedAt:   m.CreatedAt,
				})
			}
			return cli.PrintJSON(cmd, events)
		}

		out := cmd.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "No exhausted events.")
			return nil
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "#%d %s %s booking %s after %d tries: %s\n",
				m.ID, m.CreatedAt.Format(time.RFC3339), m.EventType, m.AggregateID, m.RetryCount, m.LastError)
		}
		return nil
	},
}

func init() {
	exhaustedCmd.Flags().IntVarP(&exhaustedLimit, "limit", "n", 50, "maximum number of events to list")
}
