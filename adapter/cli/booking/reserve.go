package booking

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/adapter/cli"
	"github.com/felixgeelhaar/reservo/internal/booking/application/commands"
)

var (
	reserveAccount     string
	reserveSlot        string
	reserveClient      string
	reserveService     string
	reservePrice       string
	reserveCurrency    string
	reserveAt          string
	reserveDuration    int
	reserveSource      string
	reserveClientName  string
	reserveClientPhone string
	reserveServiceName string
	reserveNotes       string
	reserveKey         string
	reserveMeta        map[string]string
)

var reserveCmd = &cobra.Command{
	Use:   "reserve",
	Short: "Reserve a slot",
	Long: `Reserve a slot for a client.

The slot is locked while the booking and its booking.created event
are written. A slot already held by a created or confirmed booking
is rejected with exit code 4.

Examples:
  reservo reserve --account $ACC --slot $SLOT --client $CLIENT \
    --service $SVC --price 1500 --at 2026-11-02T10:00:00Z
  reservo reserve ... --key tg-update-8812   # safe to repeat`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := cli.RequireApp()
		if err != nil {
			return err
		}

		reserve, err := buildReserveCommand()
		if err != nil {
			return err
		}

		result, err := a.ReserveSlotHandler.Handle(cmd.Context(), reserve)
		if err != nil {
			return err
		}

		title := "Reserved"
		if result.Replayed {
			title = "Already reserved with this key"
		}
		return printResult(cmd, a, title, result.Booking.ID())
	},
}

func buildReserveCommand() (commands.ReserveSlotCommand, error) {
	var (
		reserve commands.ReserveSlotCommand
		err     error
	)
	if reserve.AccountID, err = cli.ParseID(reserveAccount, "account ID"); err != nil {
		return reserve, err
	}
	if reserve.SlotID, err = cli.ParseID(reserveSlot, "slot ID"); err != nil {
		return reserve, err
	}
	if reserve.ClientUserID, err = cli.ParseID(reserveClient, "client ID"); err != nil {
		return reserve, err
	}
	if reserve.ServiceID, err = cli.ParseID(reserveService, "service ID"); err != nil {
		return reserve, err
	}
	if reserve.ScheduledAt, err = time.Parse(time.RFC3339, reserveAt); err != nil {
		return reserve, errors.Wrapf(err, "invalid --at %q, want RFC3339", reserveAt)
	}

	reserve.Price = reservePrice
	reserve.Currency = reserveCurrency
	reserve.DurationMinutes = reserveDuration
	reserve.Source = reserveSource
	reserve.ClientName = reserveClientName
	reserve.ClientPhone = reserveClientPhone
	reserve.ServiceName = reserveServiceName
	reserve.Notes = reserveNotes
	reserve.IdempotencyKey = reserveKey
	reserve.Metadata = reserveMeta
	return reserve, nil
}

func init() {
	f := reserveCmd.Flags()
	f.StringVar(&reserveAccount, "account", "", "account ID")
	f.StringVar(&reserveSlot, "slot", "", "slot ID")
	f.StringVar(&reserveClient, "client", "", "client user ID")
	f.StringVar(&reserveService, "service", "", "service ID")
	f.StringVar(&reservePrice, "price", "", "price, e.g. 1500 or 1499.90")
	f.StringVar(&reserveCurrency, "currency", "", "ISO currency code (default RUB)")
	f.StringVar(&reserveAt, "at", "", "start time, RFC3339")
	f.IntVarP(&reserveDuration, "duration", "d", 60, "duration in minutes")
	f.StringVar(&reserveSource, "source", "", "booking source (telegram, web, api, admin, import)")
	f.StringVar(&reserveClientName, "client-name", "", "client display name")
	f.StringVar(&reserveClientPhone, "client-phone", "", "client phone")
	f.StringVar(&reserveServiceName, "service-name", "", "service display name")
	f.StringVar(&reserveNotes, "notes", "", "notes visible to the client")
	f.StringVar(&reserveKey, "key", "", "idempotency key")
	f.StringToStringVar(&reserveMeta, "meta", nil, "metadata as key=value pairs")

	for _, name := range []string{"account", "slot", "client", "service", "price", "at"} {
		_ = reserveCmd.MarkFlagRequired(name)
	}
}
