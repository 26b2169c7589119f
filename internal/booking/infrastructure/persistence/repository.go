// Package persistence stores bookings and visits on either SQL driver.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

// dialect holds the statements and row codec of one driver.
type dialect struct {
	insertBooking        string
	updateBooking        string
	findBookingByID      string
	findBookingByKey     string
	findActiveBySlot     string
	existsActiveForSlot  string
	upsertVisit          string
	findVisitByBookingID string

	encodeTime    func(time.Time) any
	encodeTimePtr func(*time.Time) any
	scanBooking   func(database.Row) (bookingRow, error)
	scanVisit     func(database.Row) (visitRow, error)
}

// bookingRow is a scanned row before domain conversion.
type bookingRow struct {
	snapshot      domain.Snapshot
	amount        string
	currency      string
	status        string
	paymentStatus string
	source        string
	metadata      []byte
	key           sql.NullString
}

func (r bookingRow) toBooking() (*domain.Booking, error) {
	s := r.snapshot

	price, err := sharedDomain.ParseMoney(r.amount, r.currency)
	if err != nil {
		return nil, errors.Wrapf(err, "booking %s price", s.ID)
	}
	if s.Status, err = domain.ParseStatus(r.status); err != nil {
		return nil, errors.Wrapf(err, "booking %s", s.ID)
	}
	if s.PaymentStatus, err = domain.ParsePaymentStatus(r.paymentStatus); err != nil {
		return nil, errors.Wrapf(err, "booking %s", s.ID)
	}
	if s.Source, err = domain.ParseSource(r.source); err != nil {
		return nil, errors.Wrapf(err, "booking %s", s.ID)
	}
	if len(r.metadata) > 0 {
		if err := json.Unmarshal(r.metadata, &s.Metadata); err != nil {
			return nil, errors.Wrapf(err, "booking %s metadata", s.ID)
		}
	}
	s.Price = price
	s.IdempotencyKey = r.key.String
	return domain.RehydrateBooking(s), nil
}

type visitRow struct {
	bookingID, accountID, clientUserID uuid.UUID
	durationMinutes                    int
	amount                             string
	currency                           string
	rating                             sql.NullInt64
	review                             string
	reviewedAt                         *time.Time
	visitedAt                          time.Time
}

// BookingRepository implements domain.Repository on a database.Connection.
type BookingRepository struct {
	conn    database.Connection
	dialect dialect
}

// NewBookingRepository picks the realization for conn's driver.
func NewBookingRepository(conn database.Connection) (*BookingRepository, error) {
	d, err := dialectFor(conn)
	if err != nil {
		return nil, err
	}
	return &BookingRepository{conn: conn, dialect: d}, nil
}

func dialectFor(conn database.Connection) (dialect, error) {
	switch conn.Driver() {
	case database.DriverPostgres:
		return postgresDialect, nil
	case database.DriverSQLite:
		return sqliteDialect, nil
	}
	return dialect{}, errors.Wrapf(database.ErrUnknownDriver, "booking repository for %q", conn.Driver())
}

func (r *BookingRepository) executor(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *BookingRepository) InsertIfAbsent(ctx context.Context, b *domain.Booking) (*domain.Booking, bool, error) {
	s := b.Snapshot()
	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return nil, false, err
	}

	d := r.dialect
	res, err := r.executor(ctx).Exec(ctx, d.insertBooking,
		s.ID, s.AccountID, s.SlotID, s.ClientUserID, s.ServiceID,
		formatAmount(s.Price), s.Price.Currency(), s.DurationMinutes, d.encodeTime(s.ScheduledAt),
		string(s.Status), string(s.PaymentStatus), string(s.Source),
		s.ClientName, s.ClientPhone, s.ServiceName, s.Notes, s.InternalNotes, metadata,
		nullKey(s.IdempotencyKey), s.Version,
		d.encodeTime(s.CreatedAt), d.encodeTime(s.UpdatedAt),
		d.encodeTimePtr(s.ConfirmedAt), d.encodeTimePtr(s.CancelledAt), d.encodeTimePtr(s.CompletedAt),
	)
	if database.IsUniqueViolation(err) {
		return nil, false, &domain.ValidationError{Field: "id", Reason: "booking " + s.ID.String() + " already exists"}
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "insert booking %s", s.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, errors.Wrap(err, "insert booking")
	}
	if n == 1 {
		return b, true, nil
	}

	// Another request with the same idempotency key won.
	stored, err := r.FindByIdempotencyKey(ctx, s.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return stored, false, nil
}

func (r *BookingRepository) UpdateWithVersion(ctx context.Context, b *domain.Booking, expectedVersion int64) error {
	s := b.Snapshot()
	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return err
	}

	d := r.dialect
	res, err := r.executor(ctx).Exec(ctx, d.updateBooking,
		s.ID, expectedVersion,
		string(s.Status), string(s.PaymentStatus), s.InternalNotes, metadata,
		d.encodeTime(s.UpdatedAt),
		d.encodeTimePtr(s.ConfirmedAt), d.encodeTimePtr(s.CancelledAt), d.encodeTimePtr(s.CompletedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "update booking %s", s.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update booking %s", s.ID)
	}
	if n == 0 {
		return errors.Wrapf(domain.ErrOptimisticConflict, "booking %s at version %d", s.ID, expectedVersion)
	}
	return nil
}

func (r *BookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.findOne(ctx, r.dialect.findBookingByID, id)
}

func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Booking, error) {
	if key == "" {
		return nil, domain.ErrBookingNotFound
	}
	return r.findOne(ctx, r.dialect.findBookingByKey, key)
}

func (r *BookingRepository) FindActiveBySlot(ctx context.Context, slotID uuid.UUID) (*domain.Booking, error) {
	return r.findOne(ctx, r.dialect.findActiveBySlot, slotID)
}

func (r *BookingRepository) ExistsActiveForSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := r.executor(ctx).QueryRow(ctx, r.dialect.existsActiveForSlot, slotID).Scan(&exists)
	return exists, errors.Wrapf(err, "check active booking for slot %s", slotID)
}

func (r *BookingRepository) findOne(ctx context.Context, query string, arg any) (*domain.Booking, error) {
	row, err := r.dialect.scanBooking(r.executor(ctx).QueryRow(ctx, query, arg))
	if database.IsNoRows(err) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find booking by %v", arg)
	}
	return row.toBooking()
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "encode booking metadata")
	}
	return string(data), nil
}

// formatAmount renders a price as text so NUMERIC and TEXT columns both take
// it without a float round trip.
func formatAmount(m sharedDomain.Money) string {
	return m.Amount().StringFixed(2)
}

func nullKey(key string) sql.NullString {
	return sql.NullString{String: key, Valid: key != ""}
}

// VisitHistoryRepository implements domain.VisitHistoryRepository.
type VisitHistoryRepository struct {
	conn    database.Connection
	dialect dialect
}

// NewVisitHistoryRepository picks the realization for conn's driver.
func NewVisitHistoryRepository(conn database.Connection) (*VisitHistoryRepository, error) {
	d, err := dialectFor(conn)
	if err != nil {
		return nil, err
	}
	return &VisitHistoryRepository{conn: conn, dialect: d}, nil
}

// Save inserts the visit, or records its review while the stored row has
// none. Overwriting a stored review is an InvalidTransitionError.
func (r *VisitHistoryRepository) Save(ctx context.Context, v *domain.VisitHistory) error {
	d := r.dialect
	var rating sql.NullInt64
	if v.Rating() != nil {
		rating = sql.NullInt64{Int64: int64(*v.Rating()), Valid: true}
	}
	exec := database.ExecutorFromContext(ctx, r.conn)
	res, err := exec.Exec(ctx, d.upsertVisit,
		v.BookingID(), v.AccountID(), v.ClientUserID(), v.ActualDurationMinutes(),
		formatAmount(v.ActualPrice()), v.ActualPrice().Currency(),
		rating, v.Review(), d.encodeTimePtr(v.ReviewedAt()), d.encodeTime(v.VisitedAt()),
	)
	if err != nil {
		return errors.Wrapf(err, "save visit history %s", v.BookingID())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "save visit history %s", v.BookingID())
	}
	if n == 0 {
		return &domain.InvalidTransitionError{Subject: "visit", From: "reviewed", Trigger: "review"}
	}
	return nil
}

func (r *VisitHistoryRepository) FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*domain.VisitHistory, error) {
	exec := database.ExecutorFromContext(ctx, r.conn)
	row, err := r.dialect.scanVisit(exec.QueryRow(ctx, r.dialect.findVisitByBookingID, bookingID))
	if database.IsNoRows(err) {
		return nil, domain.ErrVisitNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find visit history %s", bookingID)
	}
	return row.toVisit()
}

func (r visitRow) toVisit() (*domain.VisitHistory, error) {
	price, err := sharedDomain.ParseMoney(r.amount, r.currency)
	if err != nil {
		return nil, errors.Wrapf(err, "visit %s price", r.bookingID)
	}
	var rating *int
	if r.rating.Valid {
		v := int(r.rating.Int64)
		rating = &v
	}
	return domain.RehydrateVisitHistory(
		r.bookingID, r.accountID, r.clientUserID,
		r.durationMinutes, price, rating, r.review,
		r.reviewedAt, r.visitedAt,
	), nil
}
