package database

import (
	"context"

	"github.com/cockroachdb/errors"
)

// UnitOfWork implements application.UnitOfWork on top of any Connection.
// The transaction travels in the returned context.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a UnitOfWork bound to conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin starts a transaction, or joins the one already in ctx without taking
// ownership of it.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if info, ok := TxInfoFromContext(ctx); ok {
		return WithTx(ctx, info.Tx, false), nil
	}

	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	return WithTx(ctx, tx, true), nil
}

// Commit commits the transaction when this unit started it.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return errors.Wrap(info.Tx.Commit(ctx), "commit transaction")
}

// Rollback rolls the transaction back when this unit started it.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	info, ok := TxInfoFromContext(ctx)
	if !ok {
		return ErrNoTransaction
	}
	if !info.Owned {
		return nil
	}
	return info.Tx.Rollback(ctx)
}
