package outbox

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

// NewSQLiteRepository creates the SQLite realization. SQLite has no row
// locks, so a claim is a single UPDATE that leases the rows through
// claimed_by/claimed_until; rows under a live lease are skipped.
func NewSQLiteRepository(conn database.Connection) *SQLRepository {
	return &SQLRepository{conn: conn, dialect: sqliteDialect}
}

var sqliteDialect = dialect{
	insert: `
		INSERT INTO outbox_events (
			event_id, aggregate_id, aggregate_type, event_type, payload,
			correlation_id, causation_id, user_id, created_at, retry_count, max_retries
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)
		RETURNING id`,

	claim: `
		UPDATE outbox_events SET claimed_by = ?1, claimed_until = ?2
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL
			  AND retry_count < max_retries
			  AND (retry_count = 0 OR last_retry_at IS NULL
			       OR last_retry_at + MIN(1 << MIN(retry_count, 9), 300) * 1000 <= ?3)
			  AND (claimed_until IS NULL OR claimed_until <= ?3)
			ORDER BY retry_count > 0, id
			LIMIT ?4
		)
		RETURNING ` + messageColumns,

	markPublished: `
		UPDATE outbox_events
		SET published_at = COALESCE(published_at, ?2),
			last_error = NULL,
			claimed_until = CASE WHEN claimed_by = ?3 THEN NULL ELSE claimed_until END,
			claimed_by = CASE WHEN claimed_by = ?3 THEN NULL ELSE claimed_by END
		WHERE id = ?1`,

	recordFailure: `
		UPDATE outbox_events
		SET retry_count = retry_count + 1, last_error = ?2, last_retry_at = ?3, claimed_by = NULL, claimed_until = NULL
		WHERE id = ?1 AND published_at IS NULL AND claimed_by = ?4`,

	listExhausted: `SELECT ` + messageColumns + ` FROM outbox_events
		WHERE published_at IS NULL AND retry_count >= max_retries ORDER BY id LIMIT ?1`,

	findByID: `SELECT ` + messageColumns + ` FROM outbox_events WHERE id = ?1`,

	listByAggregate: `SELECT ` + messageColumns + ` FROM outbox_events WHERE aggregate_id = ?1 ORDER BY id`,

	statistics: statisticsQuery,

	deleteOld: `DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < ?1`,

	encodeTime: func(t time.Time) any { return database.ToMillis(t) },

	scanMessage: func(row database.Row) (*Message, error) {
		var (
			m                    Message
			payload              string
			corr, caus, user     uuid.NullUUID
			lastError            sql.NullString
			createdAt            int64
			publishedAt, retryAt sql.NullInt64
		)
		err := row.Scan(
			&m.ID, &m.EventID, &m.AggregateID, &m.AggregateType, &m.EventType, &payload,
			&corr, &caus, &user, &createdAt, &publishedAt,
			&m.RetryCount, &m.MaxRetries, &lastError, &retryAt,
		)
		if err != nil {
			return nil, err
		}
		m.Payload = []byte(payload)
		m.CorrelationID, m.CausationID, m.UserID = corr.UUID, caus.UUID, user.UUID
		m.CreatedAt = database.FromMillis(createdAt)
		m.PublishedAt = database.TimePtrFromMillis(publishedAt)
		m.LastRetryAt = database.TimePtrFromMillis(retryAt)
		m.LastError = nullString(lastError)
		return &m, nil
	},

	scanStatistics: func(row database.Row) (Statistics, error) {
		var (
			s      Statistics
			oldest sql.NullInt64
		)
		err := row.Scan(&s.Total, &s.Pending, &s.Published, &s.Retrying, &s.Exhausted, &s.AvgRetryCount, &oldest)
		s.OldestPending = database.TimePtrFromMillis(oldest)
		return s, err
	},
}
