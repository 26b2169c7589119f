package database

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMillisRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 30, 15, 250*int(time.Millisecond), time.UTC)

	assert.True(t, at.Equal(FromMillis(ToMillis(at))))
	assert.Equal(t, time.UTC, FromMillis(ToMillis(at)).Location())
}

func TestNullMillis(t *testing.T) {
	assert.False(t, NullMillis(nil).Valid)
	assert.Nil(t, TimePtrFromMillis(sql.NullInt64{}))

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := NullMillis(&at)
	require.True(t, v.Valid)

	back := TimePtrFromMillis(v)
	require.NotNil(t, back)
	assert.True(t, at.Equal(*back))
}
