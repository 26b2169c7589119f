package booking

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
)

var (
	reviewRating int
	reviewText   string
)

var reviewCmd = &cobra.Command{
	Use:   "review <booking-id>",
	Short: "Rate the visit of a completed booking",
	Long: `Rate the visit of a completed booking from 1 to 5.

A visit takes one review; a second one is rejected.`,
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

		review := commands.AddReviewCommand{
			BookingID: id,
			Rating:    reviewRating,
			Review:    reviewText,
		}
		if actor != "" {
			if review.ActorID, err = cli.ParseID(actor, "actor ID"); err != nil {
				return err
			}
		}

		if _, err := a.AddReviewHandler.Handle(cmd.Context(), review); err != nil {
			return err
		}
		return printResult(cmd, a, "Reviewed", id)
	},
}

func init() {
	reviewCmd.Flags().IntVarP(&reviewRating, "rating", "r", 0, "rating from 1 to 5")
	reviewCmd.Flags().StringVar(&reviewText, "text", "", "review text")
	reviewCmd.Flags().StringVar(&actor, "actor", "", "user ID recorded on the emitted event")
	_ = reviewCmd.MarkFlagRequired("rating")
}
