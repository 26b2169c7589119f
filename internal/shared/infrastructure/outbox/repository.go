package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrMessageNotFound is returned by FindByID when no row matches.
var ErrMessageNotFound = errors.New("outbox message not found")

// ErrLeaseLost is returned by RecordFailure when the caller no longer holds
// the message's claim, or the message was published meanwhile.
var ErrLeaseLost = errors.New("outbox lease lost")

// ClaimRequest asks for up to Limit eligible messages, leased to Owner until
// Now+Lease.
type ClaimRequest struct {
	Owner string
	Limit int
	Lease time.Duration
	Now   time.Time
}

// Statistics summarizes the outbox for operators.
type Statistics struct {
	Total         int64
	Pending       int64 // never attempted
	Published     int64
	Retrying      int64 // failed at least once, retries left
	Exhausted     int64
	AvgRetryCount float64
	OldestPending *time.Time
}

// Repository defines the interface for outbox persistence.
type Repository interface {
	// Save appends a message in the transaction carried by ctx, if any, and
	// sets msg.ID.
	Save(ctx context.Context, msg *Message) error

	// SaveBatch appends messages atomically, in order.
	SaveBatch(ctx context.Context, msgs []*Message) error

	// ClaimBatch leases eligible messages: never-attempted ones first, then
	// retry-ready ones, each group oldest first. A message leased by another
	// claimer is skipped until its lease runs out.
	ClaimBatch(ctx context.Context, req ClaimRequest) ([]*Message, error)

	// MarkPublished stamps publishedAt once and clears the last error. The
	// lease is released only when owner still holds it. Marking an already
	// published message is a no-op.
	MarkPublished(ctx context.Context, id int64, owner string, at time.Time) error

	// RecordFailure increments the retry count, stores the truncated error,
	// stamps lastRetryAt and releases the lease. It applies only while owner
	// holds the lease and returns ErrLeaseLost otherwise.
	RecordFailure(ctx context.Context, id int64, owner, errMsg string, at time.Time) error

	// ListExhausted returns unpublished messages that ran out of retries.
	ListExhausted(ctx context.Context, limit int) ([]*Message, error)

	FindByID(ctx context.Context, id int64) (*Message, error)
	ListByAggregate(ctx context.Context, aggregateID uuid.UUID) ([]*Message, error)

	Statistics(ctx context.Context) (Statistics, error)

	// DeleteOld removes messages published before the given time.
	DeleteOld(ctx context.Context, publishedBefore time.Time) (int64, error)
}
