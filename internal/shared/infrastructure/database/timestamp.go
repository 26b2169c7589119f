package database

import (
	"database/sql"
	"time"
)

// SQLite has no native timestamp type. The SQLite repositories store instants as
// Unix milliseconds in INTEGER columns so that ordering and backoff arithmetic
// can be done inside the query.

// ToMillis converts t to Unix milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts Unix milliseconds to a UTC time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// NullMillis converts an optional time to a nullable millisecond value.
func NullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// TimePtrFromMillis converts a nullable millisecond value to an optional time.
func TimePtrFromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := FromMillis(v.Int64)
	return &t
}

// TimePtrUTC normalises an optional time scanned from Postgres.
func TimePtrUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
