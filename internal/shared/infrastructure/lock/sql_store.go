package lock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/pkg/clock"
)

// SQLStore is the fallback lock tier on the distributed_locks table. It runs
// on the connection directly, never inside a caller's transaction, so a lock
// outlives the unit of work it protects.
type SQLStore struct {
	conn    database.Connection
	clock   clock.Clock
	dialect dialect
}

type dialect struct {
	deleteExpiredKey string
	insert           string
	release          string
	extend           string
	cleanup          string
	findActive       string
	encode           func(time.Time) any
	scan             func(database.Row) (*Lock, error)
}

var postgresDialect = dialect{
	deleteExpiredKey: `DELETE FROM distributed_locks WHERE lock_key = $1 AND expires_at <= $2`,
	insert: `INSERT INTO distributed_locks (lock_key, locked_by, locked_at, expires_at)
		VALUES ($1, $2, $3, $4) ON CONFLICT (lock_key) DO NOTHING`,
	release:    `DELETE FROM distributed_locks WHERE lock_key = $1 AND locked_by = $2`,
	extend:     `UPDATE distributed_locks SET expires_at = $3 WHERE lock_key = $1 AND locked_by = $2 AND expires_at > $4`,
	cleanup:    `DELETE FROM distributed_locks WHERE expires_at <= $1`,
	findActive: `SELECT lock_key, locked_by, locked_at, expires_at FROM distributed_locks WHERE lock_key = $1 AND expires_at > $2`,
	encode:     func(t time.Time) any { return t.UTC() },
	scan: func(row database.Row) (*Lock, error) {
		var l Lock
		if err := row.Scan(&l.Key, &l.Owner, &l.LockedAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		l.LockedAt = l.LockedAt.UTC()
		l.ExpiresAt = l.ExpiresAt.UTC()
		return &l, nil
	},
}

var sqliteDialect = dialect{
	deleteExpiredKey: `DELETE FROM distributed_locks WHERE lock_key = ? AND expires_at <= ?`,
	insert: `INSERT INTO distributed_locks (lock_key, locked_by, locked_at, expires_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (lock_key) DO NOTHING`,
	release:    `DELETE FROM distributed_locks WHERE lock_key = ? AND locked_by = ?`,
	extend:     `UPDATE distributed_locks SET expires_at = ?3 WHERE lock_key = ?1 AND locked_by = ?2 AND expires_at > ?4`,
	cleanup:    `DELETE FROM distributed_locks WHERE expires_at <= ?`,
	findActive: `SELECT lock_key, locked_by, locked_at, expires_at FROM distributed_locks WHERE lock_key = ? AND expires_at > ?`,
	encode:     func(t time.Time) any { return database.ToMillis(t) },
	scan: func(row database.Row) (*Lock, error) {
		var (
			l                   Lock
			lockedAt, expiresAt int64
		)
		if err := row.Scan(&l.Key, &l.Owner, &lockedAt, &expiresAt); err != nil {
			return nil, err
		}
		l.LockedAt = database.FromMillis(lockedAt)
		l.ExpiresAt = database.FromMillis(expiresAt)
		return &l, nil
	},
}

// NewSQLStore creates a fallback store for conn's driver.
func NewSQLStore(conn database.Connection, clk clock.Clock) (*SQLStore, error) {
	var d dialect
	switch conn.Driver() {
	case database.DriverPostgres:
		d = postgresDialect
	case database.DriverSQLite:
		d = sqliteDialect
	default:
		return nil, errors.Wrapf(database.ErrUnknownDriver, "lock store for %q", conn.Driver())
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &SQLStore{conn: conn, clock: clk, dialect: d}, nil
}

// TryAcquire clears an expired row for key and then inserts a fresh one if
// the key is free.
func (s *SQLStore) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()

	if _, err := s.conn.Exec(ctx, s.dialect.deleteExpiredKey, key, s.dialect.encode(now)); err != nil {
		return false, errors.Wrapf(err, "delete expired lock %s", key)
	}

	res, err := s.conn.Exec(ctx, s.dialect.insert, key, owner, s.dialect.encode(now), s.dialect.encode(now.Add(ttl)))
	if err != nil {
		return false, errors.Wrapf(err, "insert lock %s", key)
	}
	return affected(res)
}

func (s *SQLStore) Release(ctx context.Context, key, owner string) (bool, error) {
	res, err := s.conn.Exec(ctx, s.dialect.release, key, owner)
	if err != nil {
		return false, errors.Wrapf(err, "release lock %s", key)
	}
	return affected(res)
}

// Extend moves the expiry of a lock that owner still holds.
func (s *SQLStore) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	now := s.clock.Now()
	res, err := s.conn.Exec(ctx, s.dialect.extend, key, owner, s.dialect.encode(now.Add(ttl)), s.dialect.encode(now))
	if err != nil {
		return false, errors.Wrapf(err, "extend lock %s", key)
	}
	return affected(res)
}

// CleanupExpired deletes every expired row and reports how many went.
func (s *SQLStore) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := s.conn.Exec(ctx, s.dialect.cleanup, s.dialect.encode(s.clock.Now()))
	if err != nil {
		return 0, errors.Wrap(err, "cleanup expired locks")
	}
	return res.RowsAffected()
}

// FindActive returns the live lock on key, or ErrLockNotFound.
func (s *SQLStore) FindActive(ctx context.Context, key string) (*Lock, error) {
	row := s.conn.QueryRow(ctx, s.dialect.findActive, key, s.dialect.encode(s.clock.Now()))
	l, err := s.dialect.scan(row)
	if database.IsNoRows(err) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find lock %s", key)
	}
	return l, nil
}

func affected(res database.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n > 0, nil
}
