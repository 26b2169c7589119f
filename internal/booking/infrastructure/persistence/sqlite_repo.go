package persistence

import (
	"database/sql"
	"time"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

const liteBookingColumns = `id, account_id, slot_id, client_user_id, service_id, price, currency,
	duration_minutes, scheduled_at, status, payment_status, source, client_name, client_phone,
	service_name, notes, internal_notes, metadata, idempotency_key, version,
	created_at, updated_at, confirmed_at, cancelled_at, completed_at`

const liteVisitColumns = `booking_id, account_id, client_user_id, actual_duration_minutes,
	actual_price, currency, rating, review, reviewed_at, visited_at`

// sqliteDialect stores instants as Unix milliseconds.
var sqliteDialect = dialect{
	insertBooking: `
		INSERT INTO bookings (` + liteBookingColumns + `)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13, ?14, ?15, ?16, ?17,
			?18, ?19, ?20, ?21, ?22, ?23, ?24, ?25)
		ON CONFLICT (idempotency_key) DO NOTHING`,

	updateBooking: `
		UPDATE bookings SET
			version = ?2 + 1,
			status = ?3,
			payment_status = ?4,
			internal_notes = ?5,
			metadata = ?6,
			updated_at = ?7,
			confirmed_at = ?8,
			cancelled_at = ?9,
			completed_at = ?10
		WHERE id = ?1 AND version = ?2`,

	findBookingByID:  `SELECT ` + liteBookingColumns + ` FROM bookings WHERE id = ?1`,
	findBookingByKey: `SELECT ` + liteBookingColumns + ` FROM bookings WHERE idempotency_key = ?1`,
	findActiveBySlot: `SELECT ` + liteBookingColumns + ` FROM bookings
		WHERE slot_id = ?1 AND status IN ('created', 'confirmed')
		ORDER BY created_at LIMIT 1`,
	existsActiveForSlot: `SELECT EXISTS (
		SELECT 1 FROM bookings WHERE slot_id = ?1 AND status IN ('created', 'confirmed'))`,

	upsertVisit: `
		INSERT INTO visit_history (` + liteVisitColumns + `)
		VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10)
		ON CONFLICT (booking_id) DO UPDATE SET
			rating = excluded.rating,
			review = excluded.review,
			reviewed_at = excluded.reviewed_at
		WHERE visit_history.rating IS NULL`,

	findVisitByBookingID: `SELECT ` + liteVisitColumns + ` FROM visit_history WHERE booking_id = ?1`,

	encodeTime:    func(t time.Time) any { return database.ToMillis(t) },
	encodeTimePtr: func(t *time.Time) any { return database.NullMillis(t) },

	scanBooking: func(row database.Row) (bookingRow, error) {
		var (
			r                               bookingRow
			s                               = &r.snapshot
			metadata                        string
			scheduledAt, created, updated   int64
			confirmed, cancelled, completed sql.NullInt64
		)
		err := row.Scan(
			&s.ID, &s.AccountID, &s.SlotID, &s.ClientUserID, &s.ServiceID, &r.amount, &r.currency,
			&s.DurationMinutes, &scheduledAt, &r.status, &r.paymentStatus, &r.source,
			&s.ClientName, &s.ClientPhone, &s.ServiceName, &s.Notes, &s.InternalNotes, &metadata,
			&r.key, &s.Version, &created, &updated, &confirmed, &cancelled, &completed,
		)
		if err != nil {
			return bookingRow{}, err
		}
		r.metadata = []byte(metadata)
		s.ScheduledAt = database.FromMillis(scheduledAt)
		s.CreatedAt = database.FromMillis(created)
		s.UpdatedAt = database.FromMillis(updated)
		s.ConfirmedAt = database.TimePtrFromMillis(confirmed)
		s.CancelledAt = database.TimePtrFromMillis(cancelled)
		s.CompletedAt = database.TimePtrFromMillis(completed)
		return r, nil
	},

	scanVisit: func(row database.Row) (visitRow, error) {
		var (
			r          visitRow
			reviewedAt sql.NullInt64
			visitedAt  int64
		)
		err := row.Scan(
			&r.bookingID, &r.accountID, &r.clientUserID, &r.durationMinutes,
			&r.amount, &r.currency, &r.rating, &r.review, &reviewedAt, &visitedAt,
		)
		if err != nil {
			return visitRow{}, err
		}
		r.reviewedAt = database.TimePtrFromMillis(reviewedAt)
		r.visitedAt = database.FromMillis(visitedAt)
		return r, nil
	},
}
