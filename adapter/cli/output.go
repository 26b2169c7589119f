package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/reservo/internal/booking/application/queries"
)

// ParseID parses a UUID argument.
func ParseID(arg, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(arg))
	if err != nil {
		return uuid.Nil, errors.Wrapf(err, "invalid %s %q", what, arg)
	}
	return id, nil
}

// PrintJSON writes v indented to the command output.
func PrintJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintBooking writes a booking as text, or as JSON with --json.
func PrintBooking(cmd *cobra.Command, title string, b *queries.BookingDTO) error {
	if jsonOutput {
		return PrintJSON(cmd, b)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, title)
	fmt.Fprintln(out, strings.Repeat("-", 40))
	fmt.Fprintf(out, "  ID:        %s\n", b.ID)
	fmt.Fprintf(out, "  Slot:      %s\n", b.SlotID)
	fmt.Fprintf(out, "  Status:    %s (payment %s)\n", b.Status, b.PaymentStatus)
	fmt.Fprintf(out, "  When:      %s, %d min\n", b.ScheduledAt.Format(time.RFC3339), b.DurationMinutes)
	fmt.Fprintf(out, "  Price:     %s %s\n", b.Price, b.Currency)
	fmt.Fprintf(out, "  Version:   %d\n", b.Version)
	if b.ClientName != "" {
		fmt.Fprintf(out, "  Client:    %s\n", b.ClientName)
	}
	if b.InternalNotes != "" {
		fmt.Fprintf(out, "  Notes:     %s\n", b.InternalNotes)
	}
	if b.Visit != nil {
		printVisit(out, b.Visit)
	}
	if len(b.Events) > 0 {
		fmt.Fprintln(out, "  Events:")
		for _, e := range b.Events {
			printEvent(out, e)
		}
	}
	return nil
}

func printVisit(out io.Writer, v *queries.VisitDTO) {
	fmt.Fprintf(out, "  Visit:     %d min, %s\n", v.ActualDurationMinutes, v.ActualPrice)
	if v.Rating != nil {
		fmt.Fprintf(out, "  Review:    %d/5 %s\n", *v.Rating, v.Review)
	}
}

func printEvent(out io.Writer, e queries.EventDTO) {
	line := fmt.Sprintf("    #%d %-34s %-9s retries %d/%d", e.ID, e.EventType, e.State, e.RetryCount, e.MaxRetries)
	if e.NextAttemptAt != nil {
		line += " next " + e.NextAttemptAt.Format(time.RFC3339)
	}
	if e.LastError != "" {
		line += " (" + e.LastError + ")"
	}
	fmt.Fprintln(out, line)
}
