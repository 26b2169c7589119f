package database

import (
	"database/sql"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(errors.Wrap(sql.ErrNoRows, "find booking")))
	assert.True(t, IsNoRows(ErrNoRows))
	assert.False(t, IsNoRows(nil))
	assert.False(t, IsNoRows(errors.New("boom")))
}

func TestIsUniqueViolation_Postgres(t *testing.T) {
	err := errors.Wrap(&pgconn.PgError{Code: "23505", Message: "duplicate key"}, "insert booking")
	assert.True(t, IsUniqueViolation(err))

	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("duplicate key")))
	assert.False(t, IsUniqueViolation(nil))
}
