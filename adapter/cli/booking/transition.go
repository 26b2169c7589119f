package booking

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

var (
	cancelReason     string
	completeDuration int
	completePrice    string
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <booking-id>",
	Short: "Confirm a created booking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "Confirmed", func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error) {
			return a.TransitionHandler.Confirm(ctx, target)
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <booking-id>",
	Short: "Cancel a booking and free its slot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "Cancelled", func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error) {
			return a.TransitionHandler.Cancel(ctx, commands.CancelCommand{
				TransitionCommand: target,
				Reason:            cancelReason,
			})
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <booking-id>",
	Short: "Complete a confirmed booking and record the visit",
	Long: `Complete a confirmed booking and record the visit.

Without --duration or --price the visit takes the booked values.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "Completed", func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error) {
			return a.TransitionHandler.Complete(ctx, commands.CompleteCommand{
				TransitionCommand:     target,
				ActualDurationMinutes: completeDuration,
				ActualPrice:           completePrice,
			})
		})
	},
}

var noShowCmd = &cobra.Command{
	Use:   "no-show <booking-id>",
	Short: "Mark a confirmed booking as a no-show",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return transition(cmd, args[0], "Marked no-show", func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error) {
			return a.TransitionHandler.MarkNoShow(ctx, target)
		})
	},
}

var paymentCmd = &cobra.Command{
	Use:   "payment <booking-id> <status>",
	Short: "Move the payment status",
	Long: `Move the payment status of a booking.

Allowed moves:
  unpaid  -> pending, paid, failed
  pending -> paid, failed
  failed  -> pending, paid
  paid    -> refunded`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := args[1]
		return transition(cmd, args[0], "Payment updated", func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error) {
			return a.TransitionHandler.UpdatePaymentStatus(ctx, commands.PaymentCommand{
				TransitionCommand: target,
				Status:            status,
			})
		})
	},
}

type transitionFunc func(ctx context.Context, a *cli.App, target commands.TransitionCommand) (*domain.Booking, error)

func transition(cmd *cobra.Command, arg, title string, fn transitionFunc) error {
	a, err := cli.RequireApp()
	if err != nil {
		return err
	}
	target, err := transitionTarget(arg)
	if err != nil {
		return err
	}

	b, err := runTransition(cmd.Context(), a, target, func(ctx context.Context) (*domain.Booking, error) {
		return fn(ctx, a, target)
	})
	if err != nil {
		return err
	}
	return printResult(cmd, a, title, b.ID())
}

func init() {
	for _, c := range []*cobra.Command{confirmCmd, cancelCmd, completeCmd, noShowCmd, paymentCmd} {
		addTransitionFlags(c)
	}

	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "reason, appended to the internal notes")
	completeCmd.Flags().IntVar(&completeDuration, "duration", 0, "actual duration in minutes")
	completeCmd.Flags().StringVar(&completePrice, "price", "", "actual price charged")
}
