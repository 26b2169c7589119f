package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reservo/internal/booking/domain"
	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
)

func completed(t *testing.T) *domain.Booking {
	t.Helper()
	b, _, err := confirmed(t).Complete(now)
	require.NoError(t, err)
	return b
}

func TestNewVisitHistory(t *testing.T) {
	b := completed(t)

	v, err := domain.NewVisitHistory(b, 0, nil, now)

	require.NoError(t, err)
	assert.Equal(t, b.ID(), v.BookingID())
	assert.Equal(t, b.DurationMinutes(), v.ActualDurationMinutes())
	assert.True(t, b.Price().Equals(v.ActualPrice()))
	assert.Nil(t, v.Rating())
}

func TestNewVisitHistory_Overrides(t *testing.T) {
	price := sharedDomain.MustMoney("1200", "RUB")

	v, err := domain.NewVisitHistory(completed(t), 45, &price, now)

	require.NoError(t, err)
	assert.Equal(t, 45, v.ActualDurationMinutes())
	assert.Equal(t, "1200.00 RUB", v.ActualPrice().String())
}

func TestNewVisitHistory_RequiresCompleted(t *testing.T) {
	_, err := domain.NewVisitHistory(confirmed(t), 0, nil, now)

	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestVisitHistory_AddReview(t *testing.T) {
	v, err := domain.NewVisitHistory(completed(t), 0, nil, now)
	require.NoError(t, err)

	reviewed, events, err := v.AddReview(5, " great ", now.Add(time.Hour))

	require.NoError(t, err)
	require.NotNil(t, reviewed.Rating())
	assert.Equal(t, 5, *reviewed.Rating())
	assert.Equal(t, "great", reviewed.Review())
	assert.Nil(t, v.Rating())

	require.Len(t, events, 1)
	ev := events[0].(*domain.ReviewAdded)
	assert.Equal(t, domain.EventTypeReviewAdded, ev.EventType())
	assert.Equal(t, 5, ev.Rating)

	_, _, err = reviewed.AddReview(4, "again", now)
	assert.Equal(t, domain.KindInvalidTransition, domain.KindOf(err))
}

func TestVisitHistory_AddReview_RatingBounds(t *testing.T) {
	v, err := domain.NewVisitHistory(completed(t), 0, nil, now)
	require.NoError(t, err)

	for _, rating := range []int{0, 6, -1} {
		_, _, err := v.AddReview(rating, "", now)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err), "rating %d", rating)
	}
}
