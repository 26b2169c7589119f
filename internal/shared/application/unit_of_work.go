package application

import (
	"context"
	"fmt"
)

// UnitOfWork scopes a set of writes to one transaction carried in the context.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc is a function that executes within a unit of work.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn inside a unit of work. Any exit that does not reach
// Commit, including a panic in fn, rolls back. A panic is re-raised after the
// rollback.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = uow.Rollback(txCtx)
		if r := recover(); r != nil {
			panic(fmt.Sprintf("unit of work rolled back after panic: %v", r))
		}
	}()

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := uow.Commit(txCtx); err != nil {
		return err
	}
	committed = true
	return nil
}
