package app

import (
	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/booking/infrastructure/persistence"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/lock"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/reservo/pkg/clock"
)

// RepositoryFactory creates repositories based on the database driver.
type RepositoryFactory struct {
	conn   database.Connection
	driver database.Driver
	clock  clock.Clock
}

// NewRepositoryFactory creates a new repository factory.
func NewRepositoryFactory(conn database.Connection, clk clock.Clock) *RepositoryFactory {
	return &RepositoryFactory{
		conn:   conn,
		driver: conn.Driver(),
		clock:  clk,
	}
}

// BookingRepository creates a booking repository for the configured driver.
func (f *RepositoryFactory) BookingRepository() (*persistence.BookingRepository, error) {
	repo, err := persistence.NewBookingRepository(f.conn)
	if err != nil {
		return nil, errors.Wrapf(err, "booking repository on %s", f.driver)
	}
	return repo, nil
}

// VisitHistoryRepository creates a visit repository for the configured driver.
func (f *RepositoryFactory) VisitHistoryRepository() (*persistence.VisitHistoryRepository, error) {
	repo, err := persistence.NewVisitHistoryRepository(f.conn)
	if err != nil {
		return nil, errors.Wrapf(err, "visit history repository on %s", f.driver)
	}
	return repo, nil
}

// OutboxRepository creates an outbox repository for the configured driver.
func (f *RepositoryFactory) OutboxRepository() (outbox.Repository, error) {
	repo, err := outbox.NewRepository(f.conn)
	if err != nil {
		return nil, errors.Wrapf(err, "outbox repository on %s", f.driver)
	}
	return repo, nil
}

// LockTable creates the table tier of the lock store.
func (f *RepositoryFactory) LockTable() (*lock.SQLStore, error) {
	store, err := lock.NewSQLStore(f.conn, f.clock)
	if err != nil {
		return nil, errors.Wrapf(err, "lock table on %s", f.driver)
	}
	return store, nil
}

// UnitOfWork creates a unit of work bound to the connection.
func (f *RepositoryFactory) UnitOfWork() *database.UnitOfWork {
	return database.NewUnitOfWork(f.conn)
}
