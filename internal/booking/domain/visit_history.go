package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/reservo/internal/shared/domain"
)

// Review rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// VisitHistory holds what actually happened at a completed booking.
type VisitHistory struct {
	bookingID             uuid.UUID
	accountID             uuid.UUID
	clientUserID          uuid.UUID
	actualDurationMinutes int
	actualPrice           sharedDomain.Money
	rating                *int
	review                string
	reviewedAt            *time.Time
	visitedAt             time.Time
}

// NewVisitHistory records the visit of a completed booking. A zero duration or
// price falls back to the booked values.
func NewVisitHistory(b *Booking, actualDurationMinutes int, actualPrice *sharedDomain.Money, now time.Time) (*VisitHistory, error) {
	if b.Status() != StatusCompleted {
		return nil, &ValidationError{Field: "status", Reason: "visit history requires a completed booking"}
	}
	if actualDurationMinutes < 0 {
		return nil, &ValidationError{Field: "actual_duration_minutes", Reason: "must not be negative"}
	}
	if actualDurationMinutes == 0 {
		actualDurationMinutes = b.DurationMinutes()
	}
	price := b.Price()
	if actualPrice != nil {
		price = *actualPrice
	}

	return &VisitHistory{
		bookingID:             b.ID(),
		accountID:             b.AccountID(),
		clientUserID:          b.ClientUserID(),
		actualDurationMinutes: actualDurationMinutes,
		actualPrice:           price,
		visitedAt:             now.UTC(),
	}, nil
}

// AddReview attaches a rating between 1 and 5. A visit is reviewed once.
func (v *VisitHistory) AddReview(rating int, review string, now time.Time) (*VisitHistory, []sharedDomain.DomainEvent, error) {
	if rating < MinRating || rating > MaxRating {
		return nil, nil, &ValidationError{Field: "rating", Reason: "must be between 1 and 5"}
	}
	if v.rating != nil {
		return nil, nil, &InvalidTransitionError{Subject: "visit", From: "reviewed", Trigger: "review"}
	}

	now = now.UTC()
	next := *v
	next.rating = &rating
	next.review = strings.TrimSpace(review)
	next.reviewedAt = &now

	return &next, []sharedDomain.DomainEvent{&ReviewAdded{
		BaseEvent:    newBaseEvent(v.bookingID, EventTypeReviewAdded, now),
		BookingID:    v.bookingID,
		AccountID:    v.accountID,
		ClientUserID: v.clientUserID,
		Rating:       rating,
		Review:       next.review,
	}}, nil
}

// RehydrateVisitHistory rebuilds a visit from storage.
func RehydrateVisitHistory(
	bookingID, accountID, clientUserID uuid.UUID,
	actualDurationMinutes int,
	actualPrice sharedDomain.Money,
	rating *int,
	review string,
	reviewedAt *time.Time,
	visitedAt time.Time,
) *VisitHistory {
	return &VisitHistory{
		bookingID:             bookingID,
		accountID:             accountID,
		clientUserID:          clientUserID,
		actualDurationMinutes: actualDurationMinutes,
		actualPrice:           actualPrice,
		rating:                rating,
		review:                review,
		reviewedAt:            reviewedAt,
		visitedAt:             visitedAt.UTC(),
	}
}

func (v *VisitHistory) BookingID() uuid.UUID            { return v.bookingID }
func (v *VisitHistory) AccountID() uuid.UUID            { return v.accountID }
func (v *VisitHistory) ClientUserID() uuid.UUID         { return v.clientUserID }
func (v *VisitHistory) ActualDurationMinutes() int      { return v.actualDurationMinutes }
func (v *VisitHistory) ActualPrice() sharedDomain.Money { return v.actualPrice }
func (v *VisitHistory) Rating() *int                    { return v.rating }
func (v *VisitHistory) Review() string                  { return v.review }
func (v *VisitHistory) ReviewedAt() *time.Time          { return v.reviewedAt }
func (v *VisitHistory) VisitedAt() time.Time            { return v.visitedAt }
