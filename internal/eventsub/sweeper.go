package eventsub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
	"github.com/mitsuaky/felpsbot-backend/internal/metrics"
	"github.com/mitsuaky/felpsbot-backend/internal/platform/correlation"
)

const sweepBatchSize = 100

// Sweeper re-publishes notifications whose inline dispatch was deferred, so
// a bus outage delays events instead of losing them. Attempts are bounded;
// exhausted notifications raise an operational alert metric and an error log,
// never a silent drop.
type Sweeper struct {
	store       domain.NotificationStore
	normalize   *Normalizer
	publisher   domain.EventPublisher
	clock       clockwork.Clock
	interval    time.Duration
	maxAttempts int
}

func NewSweeper(store domain.NotificationStore, normalizer *Normalizer, publisher domain.EventPublisher, clock clockwork.Clock, interval time.Duration, maxAttempts int) *Sweeper {
	return &Sweeper{
		store:       store,
		normalize:   normalizer,
		publisher:   publisher,
		clock:       clock,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run sweeps once immediately (crash recovery) and then on every tick until
// ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	pending, err := s.store.ListDispatchPending(ctx, s.maxAttempts, sweepBatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Dispatch sweep: failed to list pending notifications", "error", err)
		return
	}

	for _, notification := range pending {
		sweepCtx := correlation.Ensure(ctx, notification.MessageID)
		if err := s.redispatch(sweepCtx, &notification); err != nil {
			slog.WarnContext(sweepCtx, "Dispatch sweep: republish failed",
				"message_id", notification.MessageID,
				"attempts", notification.DispatchAttempts+1,
				"error", err)
			s.recordFailure(sweepCtx, &notification)
		}
	}
}

func (s *Sweeper) redispatch(ctx context.Context, notification *domain.Notification) error {
	env, err := ParseEnvelope(notification.Payload)
	if err != nil {
		// Stored payloads passed normalization once, so this is corruption,
		// not a transient fault. Stop retrying and alert.
		s.abandon(ctx, notification, fmt.Errorf("stored payload no longer parses: %w", err))
		return nil
	}

	event, err := s.normalize.Normalize(notification.EventType, env.Event, notification.ReceivedAt)
	if err != nil {
		s.abandon(ctx, notification, fmt.Errorf("stored payload no longer normalizes: %w", err))
		return nil
	}

	if err := s.publisher.Publish(ctx, notification.MessageID, event); err != nil {
		return err
	}

	if err := s.store.MarkDispatched(ctx, notification.MessageID); err != nil {
		return fmt.Errorf("published but failed to mark dispatched: %w", err)
	}

	metrics.DispatchSweepRecovered.Inc()
	slog.InfoContext(ctx, "Dispatch sweep: recovered deferred notification",
		"message_id", notification.MessageID, "event_type", event.Type)
	return nil
}

func (s *Sweeper) recordFailure(ctx context.Context, notification *domain.Notification) {
	if err := s.store.RecordDispatchFailure(ctx, notification.MessageID); err != nil {
		slog.ErrorContext(ctx, "Dispatch sweep: failed to record attempt",
			"message_id", notification.MessageID, "error", err)
		return
	}

	if notification.DispatchAttempts+1 >= s.maxAttempts {
		metrics.DispatchAbandonedTotal.Inc()
		slog.ErrorContext(ctx, "Dispatch sweep: attempts exhausted, operator attention required",
			"message_id", notification.MessageID,
			"event_type", notification.EventType,
			"attempts", notification.DispatchAttempts+1)
	}
}

// abandon stops retrying a notification that can never dispatch and raises
// the alert metric. The row keeps its payload for manual inspection.
func (s *Sweeper) abandon(ctx context.Context, notification *domain.Notification, cause error) {
	metrics.DispatchAbandonedTotal.Inc()
	slog.ErrorContext(ctx, "Dispatch sweep: abandoning undeliverable notification",
		"message_id", notification.MessageID, "error", cause)

	if err := s.store.MarkDispatched(ctx, notification.MessageID); err != nil {
		slog.ErrorContext(ctx, "Dispatch sweep: failed to clear pending flag",
			"message_id", notification.MessageID, "error", err)
	}
	if err := s.store.UpdateOutcome(ctx, notification.MessageID, domain.OutcomeFailed); err != nil {
		slog.ErrorContext(ctx, "Dispatch sweep: failed to update outcome",
			"message_id", notification.MessageID, "error", err)
	}
}
