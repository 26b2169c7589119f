package application_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/shared/application"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database/dbtest"
)

type notes struct {
	conn database.Connection
}

func newNotes(t *testing.T) (*notes, application.UnitOfWork) {
	t.Helper()
	conn := dbtest.SQLite(t)
	_, err := conn.Exec(context.Background(), `CREATE TABLE uow_notes (body TEXT NOT NULL)`)
	require.NoError(t, err)
	return &notes{conn: conn}, database.NewUnitOfWork(conn)
}

func (n *notes) add(ctx context.Context, body string) error {
	_, err := database.ExecutorFromContext(ctx, n.conn).Exec(ctx, `INSERT INTO uow_notes (body) VALUES (?1)`, body)
	return err
}

func (n *notes) count(t *testing.T) int {
	t.Helper()
	var c int
	require.NoError(t, n.conn.QueryRow(context.Background(), `SELECT COUNT(*) FROM uow_notes`).Scan(&c))
	return c
}

func TestWithUnitOfWork_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	store, uow := newNotes(t)

	err := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
		assert.True(t, database.InTransaction(ctx))
		require.NoError(t, store.add(ctx, "booking"))
		return store.add(ctx, "outbox row")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, store.count(t))
}

func TestWithUnitOfWork_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store, uow := newNotes(t)
	slotTaken := errors.New("slot taken")

	err := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
		require.NoError(t, store.add(ctx, "booking"))
		return slotTaken
	})

	assert.True(t, errors.Is(err, slotTaken))
	assert.Zero(t, store.count(t))
}

func TestWithUnitOfWork_RollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	store, uow := newNotes(t)

	assert.PanicsWithValue(t, "unit of work rolled back after panic: repository blew up", func() {
		_ = application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			require.NoError(t, store.add(ctx, "booking"))
			panic("repository blew up")
		})
	})

	assert.Zero(t, store.count(t))
}

// A nested unit joins the outer transaction: it neither commits nor rolls
// back on its own.
func TestWithUnitOfWork_NestedJoinsOuterTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("outer failure discards inner writes", func(t *testing.T) {
		store, uow := newNotes(t)

		err := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			innerErr := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
				info, ok := database.TxInfoFromContext(ctx)
				require.True(t, ok)
				assert.False(t, info.Owned)
				return store.add(ctx, "inner")
			})
			require.NoError(t, innerErr)
			return errors.New("outer failed")
		})

		require.Error(t, err)
		assert.Zero(t, store.count(t))
	})

	t.Run("inner failure leaves the outer transaction usable", func(t *testing.T) {
		store, uow := newNotes(t)

		err := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
			require.NoError(t, store.add(ctx, "outer"))
			innerErr := application.WithUnitOfWork(ctx, uow, func(ctx context.Context) error {
				return errors.New("inner failed")
			})
			require.Error(t, innerErr)
			return store.add(ctx, "after inner")
		})

		require.NoError(t, err)
		assert.Equal(t, 2, store.count(t))
	})
}

// scriptedUnitOfWork fails the steps it is told to and records the calls.
type scriptedUnitOfWork struct {
	beginErr  error
	commitErr error
	calls     []string
}

func (u *scriptedUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	u.calls = append(u.calls, "begin")
	return ctx, u.beginErr
}

func (u *scriptedUnitOfWork) Commit(context.Context) error {
	u.calls = append(u.calls, "commit")
	return u.commitErr
}

func (u *scriptedUnitOfWork) Rollback(context.Context) error {
	u.calls = append(u.calls, "rollback")
	return nil
}

func TestWithUnitOfWork_CommitFailureRollsBack(t *testing.T) {
	uow := &scriptedUnitOfWork{commitErr: errors.New("serialization failure")}

	err := application.WithUnitOfWork(context.Background(), uow, func(context.Context) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialization failure")
	assert.Equal(t, []string{"begin", "commit", "rollback"}, uow.calls)
}

func TestWithUnitOfWork_BeginFailureSkipsWork(t *testing.T) {
	uow := &scriptedUnitOfWork{beginErr: errors.New("pool exhausted")}
	ran := false

	err := application.WithUnitOfWork(context.Background(), uow, func(context.Context) error {
		ran = true
		return nil
	})

	require.Error(t, err)
	assert.False(t, ran)
	assert.Equal(t, []string{"begin"}, uow.calls)
}
