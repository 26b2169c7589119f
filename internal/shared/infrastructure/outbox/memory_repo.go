package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// MemoryRepository keeps the outbox in process memory with the same claim
// and lease rules as the SQL realizations. It ignores transactions.
type MemoryRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   []*memoryRow
}

type memoryRow struct {
	msg          Message
	claimedBy    string
	claimedUntil time.Time
}

// NewMemoryRepository creates an empty in-memory outbox.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, row := range r.rows {
		if row.msg.EventID == msg.EventID {
			return errors.Newf("duplicate outbox event %s", msg.EventID)
		}
	}
	if msg.MaxRetries <= 0 {
		msg.MaxRetries = DefaultMaxRetries
	}
	r.nextID++
	msg.ID = r.nextID
	r.rows = append(r.rows, &memoryRow{msg: *msg})
	return nil
}

func (r *MemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) ClaimBatch(_ context.Context, req ClaimRequest) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var claimed []*memoryRow
	for _, row := range r.rows {
		if !row.msg.IsEligible(req.Now) || row.claimedUntil.After(req.Now) {
			continue
		}
		claimed = append(claimed, row)
	}
	slices.SortFunc(claimed, func(a, b *memoryRow) int { return claimOrder(&a.msg, &b.msg) })
	if len(claimed) > req.Limit {
		claimed = claimed[:req.Limit]
	}

	out := make([]*Message, 0, len(claimed))
	for _, row := range claimed {
		row.claimedBy = req.Owner
		row.claimedUntil = req.Now.Add(req.Lease)
		out = append(out, row.copy())
	}
	return out, nil
}

func (r *MemoryRepository) MarkPublished(_ context.Context, id int64, owner string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row := r.find(id); row != nil {
		if row.msg.PublishedAt == nil {
			at = at.UTC()
			row.msg.PublishedAt = &at
		}
		row.msg.LastError = ""
		if row.claimedBy == owner {
			row.release()
		}
	}
	return nil
}

func (r *MemoryRepository) RecordFailure(_ context.Context, id int64, owner, errMsg string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.find(id)
	if row == nil || row.msg.PublishedAt != nil || row.claimedBy == "" || row.claimedBy != owner {
		return errors.Wrapf(ErrLeaseLost, "record outbox failure %d for %s", id, owner)
	}
	at = at.UTC()
	row.msg.RetryCount++
	row.msg.LastError = TruncateError(errMsg)
	row.msg.LastRetryAt = &at
	row.release()
	return nil
}

func (r *MemoryRepository) ListExhausted(_ context.Context, limit int) ([]*Message, error) {
	return r.filter(limit, func(m *Message) bool { return m.IsExhausted() }), nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id int64) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.find(id)
	if row == nil {
		return nil, ErrMessageNotFound
	}
	return row.copy(), nil
}

func (r *MemoryRepository) ListByAggregate(_ context.Context, aggregateID uuid.UUID) ([]*Message, error) {
	return r.filter(0, func(m *Message) bool { return m.AggregateID == aggregateID }), nil
}

func (r *MemoryRepository) Statistics(context.Context) (Statistics, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		s       Statistics
		retries int
	)
	for _, row := range r.rows {
		m := &row.msg
		s.Total++
		retries += m.RetryCount
		switch {
		case m.IsPublished():
			s.Published++
			continue
		case m.IsExhausted():
			s.Exhausted++
			continue
		case m.RetryCount == 0:
			s.Pending++
		default:
			s.Retrying++
		}
		if s.OldestPending == nil || m.CreatedAt.Before(*s.OldestPending) {
			created := m.CreatedAt
			s.OldestPending = &created
		}
	}
	if s.Total > 0 {
		s.AvgRetryCount = float64(retries) / float64(s.Total)
	}
	return s, nil
}

func (r *MemoryRepository) DeleteOld(_ context.Context, publishedBefore time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.rows)
	r.rows = slices.DeleteFunc(r.rows, func(row *memoryRow) bool {
		return row.msg.PublishedAt != nil && row.msg.PublishedAt.Before(publishedBefore)
	})
	return int64(before - len(r.rows)), nil
}

func (r *MemoryRepository) find(id int64) *memoryRow {
	for _, row := range r.rows {
		if row.msg.ID == id {
			return row
		}
	}
	return nil
}

func (r *MemoryRepository) filter(limit int, keep func(*Message) bool) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Message
	for _, row := range r.rows {
		if keep(&row.msg) {
			out = append(out, row.copy())
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (row *memoryRow) copy() *Message {
	m := row.msg
	m.Payload = slices.Clone(row.msg.Payload)
	return &m
}

func (row *memoryRow) release() {
	row.claimedBy = ""
	row.claimedUntil = time.Time{}
}
