package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

const (
	defaultOutboxInterval = 2 * time.Second
	defaultOutboxBatch    = 50
	defaultOutboxAttempts = 5
	maxOutboxRetryDelay   = 5 * time.Minute
)

// OutboxDispatcher delivers audit events written to the outbox by the
// system store. Delivery is at least once; consumers dedupe on event_id.
type OutboxDispatcher struct {
	repo        ports.OutboxRepository
	publisher   ports.EventPublisher
	logger      zerolog.Logger
	now         func() time.Time
	interval    time.Duration
	batchSize   int
	maxAttempts int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dispatched atomic.Int64
	failed     atomic.Int64
	dead       atomic.Int64
}

// OutboxStats is a point-in-time copy of the dispatcher's counters.
type OutboxStats struct {
	Dispatched int64
	Failed     int64
	Dead       int64
}

type OutboxOption func(*OutboxDispatcher)

func WithOutboxInterval(d time.Duration) OutboxOption {
	return func(o *OutboxDispatcher) {
		if d > 0 {
			o.interval = d
		}
	}
}

func WithOutboxBatchSize(n int) OutboxOption {
	return func(o *OutboxDispatcher) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithOutboxMaxAttempts sets how many failed deliveries move an event to
// the dead state.
func WithOutboxMaxAttempts(n int) OutboxOption {
	return func(o *OutboxDispatcher) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithOutboxClock(now func() time.Time) OutboxOption {
	return func(o *OutboxDispatcher) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, logger zerolog.Logger, opts ...OutboxOption) *OutboxDispatcher {
	d := &OutboxDispatcher{
		repo:        repo,
		publisher:   publisher,
		logger:      logger.With().Str("component", "outbox").Logger(),
		now:         time.Now,
		interval:    defaultOutboxInterval,
		batchSize:   defaultOutboxBatch,
		maxAttempts: defaultOutboxAttempts,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the poll loop until Close or until parent is cancelled.
// Calling Start twice is a no-op.
func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error().Err(err).Msg("outbox dispatch batch")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchPending publishes one batch of due events and returns how many
// were delivered. Publish failures are recorded on the row, not returned;
// only storage errors abort the batch.
func (d *OutboxDispatcher) DispatchPending(ctx context.Context) (int, error) {
	events, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch pending outbox events: %w", err)
	}

	delivered := 0
	for _, event := range events {
		ok, err := d.deliver(ctx, event)
		if err != nil {
			return delivered, err
		}
		if ok {
			delivered++
		}
	}
	return delivered, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, event domain.OutboxEvent) (bool, error) {
	log := d.logger.With().
		Str("event_id", event.EventID).
		Str("topic", event.Topic).
		Str("tenant_id", event.TenantID).
		Logger()

	var envelope domain.EventEnvelope
	if err := json.Unmarshal(event.PayloadJSON, &envelope); err != nil {
		// A payload that does not decode now never will.
		log.Error().Err(err).Msg("outbox event payload is corrupt")
		if err := d.repo.MarkDead(ctx, event.ID, event.Attempts+1, "decode payload: "+err.Error()); err != nil {
			return false, err
		}
		d.dead.Add(1)
		return false, nil
	}

	if err := d.publisher.Publish(ctx, event.Topic, envelope); err != nil {
		d.failed.Add(1)
		attempts := event.Attempts + 1
		if attempts >= d.maxAttempts {
			log.Error().Err(err).Int("attempts", attempts).Msg("outbox event dead-lettered")
			if err := d.repo.MarkDead(ctx, event.ID, attempts, err.Error()); err != nil {
				return false, err
			}
			d.dead.Add(1)
			return false, nil
		}
		next := d.now().UTC().Add(retryDelay(attempts))
		log.Warn().Err(err).Int("attempts", attempts).Time("next_attempt_at", next).Msg("publish outbox event")
		return false, d.repo.MarkFailed(ctx, event.ID, attempts, next.Format(time.RFC3339Nano), err.Error())
	}

	if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
		return false, err
	}
	d.dispatched.Add(1)
	return true, nil
}

func (d *OutboxDispatcher) Stats() OutboxStats {
	return OutboxStats{
		Dispatched: d.dispatched.Load(),
		Failed:     d.failed.Load(),
		Dead:       d.dead.Load(),
	}
}

// retryDelay is the wait before attempt n+1: 1s doubling up to five
// minutes. The schedule has no jitter so it can be persisted per row.
func retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxOutboxRetryDelay
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
