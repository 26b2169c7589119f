package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/reservo/pkg/clock"
	"github.com/felixgeelhaar/reservo/pkg/observability"
)

// DispatcherConfig holds configuration for the outbox dispatcher.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	// ClaimLease is how long a claimed batch stays invisible to other
	// claimers. Each publish in the batch is bounded by what is left of it.
	ClaimLease time.Duration
	// Owner identifies this process in claimed_by.
	Owner string
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		PollInterval: time.Second,
		BatchSize:    100,
		Workers:      2,
		ClaimLease:   30 * time.Second,
		Owner:        "dispatcher",
	}
}

// RunResult counts what one RunOnce did.
type RunResult struct {
	Claimed   int
	Published int
	Failed    int
	// Exhausted counts failures that used up the last retry.
	Exhausted int
}

// Stats returns dispatcher statistics since start.
type Stats struct {
	IsRunning       bool
	Runs            uint64
	PublishedCount  uint64
	FailedCount     uint64
	ExhaustedCount  uint64
	LagSeconds      float64
	LastError       string
	LastErrorAt     *time.Time
	LastRunAt       *time.Time
	OldestMessageAt *time.Time
}

// Dispatcher claims outbox messages and hands them to a Publisher. Publish
// failures are recorded on the message, never returned.
type Dispatcher struct {
	repo      Repository
	publisher eventbus.Publisher
	clock     clock.Clock
	config    DispatcherConfig
	metrics   observability.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex

	statsMu sync.Mutex
	stats   Stats
}

// NewDispatcher creates a new outbox dispatcher.
func NewDispatcher(
	repo Repository,
	publisher eventbus.Publisher,
	clk clock.Clock,
	config DispatcherConfig,
	metrics observability.Metrics,
	logger *slog.Logger,
) *Dispatcher {
	defaults := DefaultDispatcherConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = defaults.ClaimLease
	}
	if config.Owner == "" {
		config.Owner = defaults.Owner
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		clock:     clk,
		config:    config,
		metrics:   observability.MetricsOrNoop(metrics),
		logger:    observability.LoggerOrDefault(logger),
		tracer:    observability.Tracer("reservo/outbox"),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the worker pool. Each worker polls on its own ticker.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	d.stopChan = make(chan struct{})
	d.mu.Unlock()

	for i := range d.config.Workers {
		d.wg.Add(1)
		go d.run(ctx, fmt.Sprintf("%s/%d", d.config.Owner, i))
	}

	d.logger.Info("outbox dispatcher started",
		"workers", d.config.Workers,
		"poll_interval", d.config.PollInterval,
		"batch_size", d.config.BatchSize,
	)
	return nil
}

// Stop signals the workers and waits for in-flight batches to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	close(d.stopChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("outbox dispatcher stopped")
}

// IsRunning returns true if the worker pool is running.
func (d *Dispatcher) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *Dispatcher) run(ctx context.Context, owner string) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopChan:
			return
		case <-ticker.C:
			if _, err := d.runOnce(ctx, owner); err != nil {
				d.logger.Error("failed to process outbox batch", "worker", owner, "error", err)
			}
		}
	}
}

// RunOnce claims one batch and publishes it.
func (d *Dispatcher) RunOnce(ctx context.Context) (RunResult, error) {
	return d.runOnce(ctx, d.config.Owner)
}

func (d *Dispatcher) runOnce(ctx context.Context, owner string) (result RunResult, err error) {
	ctx, span := d.tracer.Start(ctx, "outbox.RunOnce")
	defer func() {
		span.SetAttributes(
			attribute.Int("outbox.claimed", result.Claimed),
			attribute.Int("outbox.published", result.Published),
			attribute.Int("outbox.failed", result.Failed),
		)
		observability.EndSpan(span, err)
	}()

	claimedAt := d.clock.Now()
	leaseEnd := claimedAt.Add(d.config.ClaimLease)
	msgs, err := d.repo.ClaimBatch(ctx, ClaimRequest{
		Owner: owner,
		Limit: d.config.BatchSize,
		Lease: d.config.ClaimLease,
		Now:   claimedAt,
	})
	if err != nil {
		d.recordError(err)
		return result, err
	}

	result.Claimed = len(msgs)
	d.recordClaimed(msgs)
	d.metrics.Counter(observability.MetricOutboxClaimed, int64(len(msgs)))

	for i, msg := range msgs {
		remaining := leaseEnd.Sub(d.clock.Now())
		if remaining <= 0 {
			// Another claimer may own the rest of the batch by now.
			d.logger.Warn("outbox lease expired before batch was published",
				"worker", owner,
				"skipped", len(msgs)-i,
			)
			break
		}

		if pubErr := d.publish(ctx, msg, remaining); pubErr != nil {
			result.Failed++
			if d.handleFailure(ctx, owner, msg, pubErr) {
				result.Exhausted++
			}
			continue
		}

		if markErr := d.repo.MarkPublished(ctx, msg.ID, owner, d.clock.Now()); markErr != nil {
			// The lease runs out and the event is published again.
			d.logger.Error("failed to mark outbox event as published",
				"id", msg.ID,
				"event_id", msg.EventID,
				"error", markErr,
			)
			d.recordError(markErr)
			continue
		}
		result.Published++
		d.metrics.Counter(observability.MetricOutboxPublished, 1, observability.T("event_type", msg.EventType))
	}

	d.recordRun(result)
	return result, nil
}

// publish bounds a single publish by what is left of the claim lease.
func (d *Dispatcher) publish(ctx context.Context, msg *Message, remaining time.Duration) error {
	pubCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()
	return d.publisher.Publish(pubCtx, msg.Envelope())
}

// handleFailure records a failed attempt and reports whether it was the last.
func (d *Dispatcher) handleFailure(ctx context.Context, owner string, msg *Message, pubErr error) bool {
	attempts := msg.RetryCount + 1
	exhausted := attempts >= msg.MaxRetries
	d.metrics.Counter(observability.MetricOutboxFailed, 1, observability.T("event_type", msg.EventType))

	if markErr := d.repo.RecordFailure(ctx, msg.ID, owner, pubErr.Error(), d.clock.Now()); markErr != nil {
		if errors.Is(markErr, ErrLeaseLost) {
			d.logger.Warn("outbox lease lost before failure was recorded",
				"id", msg.ID,
				"event_id", msg.EventID,
				"worker", owner,
				"error", pubErr,
			)
			return false
		}
		d.logger.Error("failed to record outbox failure",
			"id", msg.ID,
			"event_id", msg.EventID,
			"error", markErr,
		)
		d.recordError(markErr)
		return false
	}

	if exhausted {
		d.metrics.Counter(observability.MetricOutboxExhausted, 1, observability.T("event_type", msg.EventType))
		d.logger.Error("outbox event exhausted its retries",
			"id", msg.ID,
			"event_id", msg.EventID,
			"event_type", msg.EventType,
			"aggregate_id", msg.AggregateID,
			"retry_count", attempts,
			"correlation_id", msg.CorrelationID,
			"error", pubErr,
		)
	} else {
		d.logger.Warn("failed to publish outbox event",
			"id", msg.ID,
			"event_id", msg.EventID,
			"routing_key", msg.RoutingKey(),
			"retry_count", attempts,
			"next_attempt_in", RetryDelay(attempts),
			"correlation_id", msg.CorrelationID,
			"error", pubErr,
		)
	}
	d.recordFailure(pubErr, exhausted)
	return exhausted
}

// PurgePublished deletes messages published longer than retention ago.
func (d *Dispatcher) PurgePublished(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := d.repo.DeleteOld(ctx, d.clock.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		d.logger.Info("purged published outbox events", "count", n, "retention", retention)
	}
	return n, nil
}

// Stats returns a snapshot of the dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	running := d.IsRunning()

	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	s := d.stats
	s.IsRunning = running
	return s
}

func (d *Dispatcher) recordClaimed(msgs []*Message) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	now := d.clock.Now()
	if len(msgs) == 0 {
		d.stats.LagSeconds = 0
		d.stats.OldestMessageAt = nil
		d.metrics.Gauge(observability.MetricOutboxLag, 0)
		return
	}

	oldest := msgs[0].CreatedAt
	for _, msg := range msgs[1:] {
		if msg.CreatedAt.Before(oldest) {
			oldest = msg.CreatedAt
		}
	}
	d.stats.OldestMessageAt = &oldest
	d.stats.LagSeconds = now.Sub(oldest).Seconds()
	d.metrics.Gauge(observability.MetricOutboxLag, d.stats.LagSeconds)
}

func (d *Dispatcher) recordRun(result RunResult) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	now := d.clock.Now()
	d.stats.Runs++
	d.stats.PublishedCount += uint64(result.Published)
	d.stats.LastRunAt = &now
}

func (d *Dispatcher) recordFailure(err error, exhausted bool) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	d.stats.FailedCount++
	if exhausted {
		d.stats.ExhaustedCount++
	}
	now := d.clock.Now()
	d.stats.LastError = err.Error()
	d.stats.LastErrorAt = &now
}

func (d *Dispatcher) recordError(err error) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	now := d.clock.Now()
	d.stats.LastError = err.Error()
	d.stats.LastErrorAt = &now
}
