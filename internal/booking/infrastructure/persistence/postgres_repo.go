package persistence

import (
	"time"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

// NUMERIC and JSONB are read back as text.
const pgBookingColumns = `id, account_id, slot_id, client_user_id, service_id, price::text, currency,
	duration_minutes, scheduled_at, status, payment_status, source, client_name, client_phone,
	service_name, notes, internal_notes, metadata::text, idempotency_key, version,
	created_at, updated_at, confirmed_at, cancelled_at, completed_at`

const pgVisitColumns = `booking_id, account_id, client_user_id, actual_duration_minutes,
	actual_price::text, currency, rating, review, reviewed_at, visited_at`

var postgresDialect = dialect{
	insertBooking: `
		INSERT INTO bookings (
			id, account_id, slot_id, client_user_id, service_id, price, currency,
			duration_minutes, scheduled_at, status, payment_status, source, client_name, client_phone,
			service_name, notes, internal_notes, metadata, idempotency_key, version,
			created_at, updated_at, confirmed_at, cancelled_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18::jsonb, $19, $20, $21, $22, $23, $24, $25
		)
		ON CONFLICT (idempotency_key) DO NOTHING`,

	updateBooking: `
		UPDATE bookings SET
			version = $2 + 1,
			status = $3,
			payment_status = $4,
			internal_notes = $5,
			metadata = $6::jsonb,
			updated_at = $7,
			confirmed_at = $8,
			cancelled_at = $9,
			completed_at = $10
		WHERE id = $1 AND version = $2`,

	findBookingByID:  `SELECT ` + pgBookingColumns + ` FROM bookings WHERE id = $1`,
	findBookingByKey: `SELECT ` + pgBookingColumns + ` FROM bookings WHERE idempotency_key = $1`,
	findActiveBySlot: `SELECT ` + pgBookingColumns + ` FROM bookings
		WHERE slot_id = $1 AND status IN ('created', 'confirmed')
		ORDER BY created_at LIMIT 1`,
	existsActiveForSlot: `SELECT EXISTS (
		SELECT 1 FROM bookings WHERE slot_id = $1 AND status IN ('created', 'confirmed'))`,

	upsertVisit: `
		INSERT INTO visit_history (
			booking_id, account_id, client_user_id, actual_duration_minutes,
			actual_price, currency, rating, review, reviewed_at, visited_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (booking_id) DO UPDATE SET
			rating = EXCLUDED.rating,
			review = EXCLUDED.review,
			reviewed_at = EXCLUDED.reviewed_at
		WHERE visit_history.rating IS NULL`,

	findVisitByBookingID: `SELECT ` + pgVisitColumns + ` FROM visit_history WHERE booking_id = $1`,

	encodeTime:    func(t time.Time) any { return t.UTC() },
	encodeTimePtr: func(t *time.Time) any { return database.TimePtrUTC(t) },

	scanBooking: func(row database.Row) (bookingRow, error) {
		var (
			r        bookingRow
			s        = &r.snapshot
			metadata string
		)
		err := row.Scan(
			&s.ID, &s.AccountID, &s.SlotID, &s.ClientUserID, &s.ServiceID, &r.amount, &r.currency,
			&s.DurationMinutes, &s.ScheduledAt, &r.status, &r.paymentStatus, &r.source,
			&s.ClientName, &s.ClientPhone, &s.ServiceName, &s.Notes, &s.InternalNotes, &metadata,
			&r.key, &s.Version, &s.CreatedAt, &s.UpdatedAt, &s.ConfirmedAt, &s.CancelledAt, &s.CompletedAt,
		)
		if err != nil {
			return bookingRow{}, err
		}
		r.metadata = []byte(metadata)
		s.ConfirmedAt = database.TimePtrUTC(s.ConfirmedAt)
		s.CancelledAt = database.TimePtrUTC(s.CancelledAt)
		s.CompletedAt = database.TimePtrUTC(s.CompletedAt)
		return r, nil
	},

	scanVisit: func(row database.Row) (visitRow, error) {
		var r visitRow
		err := row.Scan(
			&r.bookingID, &r.accountID, &r.clientUserID, &r.durationMinutes,
			&r.amount, &r.currency, &r.rating, &r.review, &r.reviewedAt, &r.visitedAt,
		)
		if err != nil {
			return visitRow{}, err
		}
		r.reviewedAt = database.TimePtrUTC(r.reviewedAt)
		return r, nil
	},
}
