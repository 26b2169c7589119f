package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
	"github.com/felixgeelhaar/reservo/internal/booking/application/queries"
	"github.com/felixgeelhaar/reservo/internal/booking/domain"
)

// Commands returns the booking commands. They hang off the root command
// directly: reservo reserve, reservo confirm <id>, and so on.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		reserveCmd,
		confirmCmd,
		cancelCmd,
		completeCmd,
		noShowCmd,
		paymentCmd,
		reviewCmd,
		showCmd,
		slotCmd,
	}
}

// Flags shared by every transition command.
var (
	expectVersion int64
	actor         string
)

func addTransitionFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&expectVersion, "expect-version", commands.AnyVersion,
		"fail unless the booking is at this version (-1 reloads and retries on conflict)")
	cmd.Flags().StringVar(&actor, "actor", "", "user ID recorded on the emitted events")
}

// transitionTarget parses the booking argument and the shared flags.
func transitionTarget(arg string) (commands.TransitionCommand, error) {
	id, err := cli.ParseID(arg, "booking ID")
	if err != nil {
		return commands.TransitionCommand{}, err
	}
	target := commands.TransitionCommand{
		BookingID:       id,
		ExpectedVersion: expectVersion,
	}
	if actor != "" {
		if target.ActorID, err = cli.ParseID(actor, "actor ID"); err != nil {
			return commands.TransitionCommand{}, err
		}
	}
	return target, nil
}

// runTransition applies fn once when a version was given. Without one it
// reloads and retries on optimistic conflicts.
func runTransition(ctx context.Context, a *cli.App, target commands.TransitionCommand,
	fn func(ctx context.Context) (*domain.Booking, error)) (*domain.Booking, error) {
	if target.ExpectedVersion != commands.AnyVersion {
		return fn(ctx)
	}

	var result *domain.Booking
	err := commands.RetryOnConflict(ctx, a.ConflictRetries, func(ctx context.Context) error {
		b, err := fn(ctx)
		if err != nil {
			return err
		}
		result = b
		return nil
	})
	return result, err
}

// printResult reloads the booking and prints it under title.
func printResult(cmd *cobra.Command, a *cli.App, title string, id uuid.UUID) error {
	dto, err := a.GetBookingHandler.Handle(cmd.Context(), queries.GetBookingQuery{BookingID: id})
	if err != nil {
		return err
	}
	return cli.PrintBooking(cmd, title, dto)
}
