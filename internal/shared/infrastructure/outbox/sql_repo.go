package outbox

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/shared/application"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

const messageColumns = `id, event_id, aggregate_id, aggregate_type, event_type, payload,
	correlation_id, causation_id, user_id, created_at, published_at,
	retry_count, max_retries, last_error, last_retry_at`

// dialect holds the statements and time encoding of one driver.
type dialect struct {
	insert          string
	claim           string
	markPublished   string
	recordFailure   string
	listExhausted   string
	findByID        string
	listByAggregate string
	statistics      string
	deleteOld       string

	encodeTime     func(time.Time) any
	scanMessage    func(database.Row) (*Message, error)
	scanStatistics func(database.Row) (Statistics, error)
}

// SQLRepository implements Repository on a database.Connection. Every method
// runs in the transaction carried by ctx when there is one.
type SQLRepository struct {
	conn    database.Connection
	dialect dialect
}

// NewRepository picks the realization for conn's driver.
func NewRepository(conn database.Connection) (*SQLRepository, error) {
	switch conn.Driver() {
	case database.DriverPostgres:
		return NewPostgresRepository(conn), nil
	case database.DriverSQLite:
		return NewSQLiteRepository(conn), nil
	}
	return nil, errors.Wrapf(database.ErrUnknownDriver, "outbox repository for %q", conn.Driver())
}

func (r *SQLRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLRepository) Save(ctx context.Context, msg *Message) error {
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = DefaultMaxRetries
	}
	err := r.executor(ctx).QueryRow(ctx, r.dialect.insert,
		msg.EventID,
		msg.AggregateID,
		msg.AggregateType,
		msg.EventType,
		string(msg.Payload),
		nullUUID(msg.CorrelationID),
		nullUUID(msg.CausationID),
		nullUUID(msg.UserID),
		r.dialect.encodeTime(msg.CreatedAt),
		msg.RetryCount,
		msg.MaxRetries,
	).Scan(&msg.ID)
	return errors.Wrapf(err, "insert outbox event %s", msg.EventID)
}

// SaveBatch joins the caller's transaction, or opens one of its own.
func (r *SQLRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return application.WithUnitOfWork(ctx, database.NewUnitOfWork(r.conn), func(ctx context.Context) error {
		for _, msg := range msgs {
			if err := r.Save(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLRepository) ClaimBatch(ctx context.Context, req ClaimRequest) ([]*Message, error) {
	if req.Limit <= 0 {
		return nil, nil
	}
	msgs, err := r.queryMessages(ctx, r.dialect.claim,
		req.Owner,
		r.dialect.encodeTime(req.Now.Add(req.Lease)),
		r.dialect.encodeTime(req.Now),
		req.Limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "claim outbox batch")
	}
	// RETURNING does not keep the subquery's order.
	slices.SortFunc(msgs, claimOrder)
	return msgs, nil
}

func claimOrder(a, b *Message) int {
	aRetry, bRetry := a.RetryCount > 0, b.RetryCount > 0
	switch {
	case aRetry == bRetry:
		return int(a.ID - b.ID)
	case aRetry:
		return 1
	default:
		return -1
	}
}

func (r *SQLRepository) MarkPublished(ctx context.Context, id int64, owner string, at time.Time) error {
	_, err := r.executor(ctx).Exec(ctx, r.dialect.markPublished, id, r.dialect.encodeTime(at), owner)
	return errors.Wrapf(err, "mark outbox event %d published", id)
}

func (r *SQLRepository) RecordFailure(ctx context.Context, id int64, owner, errMsg string, at time.Time) error {
	res, err := r.executor(ctx).Exec(ctx, r.dialect.recordFailure,
		id,
		TruncateError(errMsg),
		r.dialect.encodeTime(at),
		owner,
	)
	if err != nil {
		return errors.Wrapf(err, "record outbox failure %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "record outbox failure %d", id)
	}
	if n == 0 {
		return errors.Wrapf(ErrLeaseLost, "record outbox failure %d for %s", id, owner)
	}
	return nil
}

func (r *SQLRepository) ListExhausted(ctx context.Context, limit int) ([]*Message, error) {
	msgs, err := r.queryMessages(ctx, r.dialect.listExhausted, limit)
	return msgs, errors.Wrap(err, "list exhausted outbox events")
}

func (r *SQLRepository) FindByID(ctx context.Context, id int64) (*Message, error) {
	msg, err := r.dialect.scanMessage(r.executor(ctx).QueryRow(ctx, r.dialect.findByID, id))
	if database.IsNoRows(err) {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find outbox event %d", id)
	}
	return msg, nil
}

func (r *SQLRepository) ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*Message, error) {
	msgs, err := r.queryMessages(ctx, r.dialect.listByAggregate, aggregateID)
	return msgs, errors.Wrapf(err, "list outbox events of %s", aggregateID)
}

func (r *SQLRepository) Statistics(ctx context.Context) (Statistics, error) {
	stats, err := r.dialect.scanStatistics(r.executor(ctx).QueryRow(ctx, r.dialect.statistics))
	return stats, errors.Wrap(err, "outbox statistics")
}

func (r *SQLRepository) DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error) {
	res, err := r.executor(ctx).Exec(ctx, r.dialect.deleteOld, r.dialect.encodeTime(publishedBefore))
	if err != nil {
		return 0, errors.Wrap(err, "delete old outbox events")
	}
	return res.RowsAffected()
}

func (r *SQLRepository) queryMessages(ctx context.Context, query string, args ...any) ([]*Message, error) {
	rows, err := r.executor(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := r.dialect.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

func nullString(s sql.NullString) string {
	if !s.Valid {
		return ""
	}
	return s.String
}

// statisticsQuery is portable between both drivers.
const statisticsQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN published_at IS NULL AND retry_count = 0 AND retry_count < max_retries THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN published_at IS NOT NULL THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN published_at IS NULL AND retry_count > 0 AND retry_count < max_retries THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN published_at IS NULL AND retry_count >= max_retries THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(retry_count), 0),
		MIN(CASE WHEN published_at IS NULL AND retry_count < max_retries THEN created_at END)
	FROM outbox_events`
