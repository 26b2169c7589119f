package booking

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	"github.com/felixgeelhaar/reservo/internal/booking/application/queries"
)

var showEvents bool

var showCmd = &cobra.Command{
	Use:   "show <booking-id>",
	Short: "Show a booking",
	Long: `Show a booking, its visit once completed, and with --events the
delivery state of every event it emitted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := cli.ParseID(args[0], "booking ID")
		if err != nil {
			return err
		}

		dto, err := a.GetBookingHandler.Handle(cmd.Context(), queries.GetBookingQuery{
			BookingID:     id,
			IncludeEvents: showEvents,
		})
		if err != nil {
			return err
		}
		return cli.PrintBooking(cmd, "Booking", dto)
	},
}

var slotCmd = &cobra.Command{
	Use:   "slot <slot-id>",
	Short: "Show whether a slot is free",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}
		id, err := cli.ParseID(args[0], "slot ID")
		if err != nil {
			return err
		}

		status, err := a.GetSlotStatusHandler.Handle(cmd.Context(), queries.GetSlotStatusQuery{SlotID: id})
		if err != nil {
			return err
		}
		if cli.JSONOutput() {
			return cli.PrintJSON(cmd, status)
		}

		out := cmd.OutOrStdout()
		if status.Available {
			fmt.Fprintf(out, "Slot %s is free\n", status.SlotID)
			return nil
		}
		fmt.Fprintf(out, "Slot %s is held by booking %s (%s)\n", status.SlotID, status.BookingID, status.Status)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVarP(&showEvents, "events", "e", false, "include outbox delivery state")
}
