package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
	"github.com/mitsuaky/felpsbot-backend/internal/metrics"
	"github.com/mitsuaky/felpsbot-backend/internal/platform/retry"
)

const (
	publishMaxAttempts    = 3
	publishInitialBackoff = 100 * time.Millisecond
	statusUpdateTimeout   = 5 * time.Second
)

// Inbound is one verified callback, header fields already extracted and the
// envelope already parsed.
type Inbound struct {
	MessageID        string
	SubscriptionID   string
	SubscriptionType string
	// Timestamp is the provider's message timestamp from the callback header.
	Timestamp time.Time
	Body      json.RawMessage
	Event     json.RawMessage
}

// Pipeline runs a verified notification through dedup, normalization, the
// durable store, and dispatch. It never blocks on the bus longer than the
// bounded inline retry: the HTTP acknowledgement depends on the store commit
// only.
type Pipeline struct {
	dedup     domain.DedupCache
	store     domain.NotificationStore
	subs      domain.SubscriptionRepository
	normalize *Normalizer
	publisher domain.EventPublisher
}

func NewPipeline(dedup domain.DedupCache, store domain.NotificationStore, subs domain.SubscriptionRepository, normalizer *Normalizer, publisher domain.EventPublisher) *Pipeline {
	return &Pipeline{
		dedup:     dedup,
		store:     store,
		subs:      subs,
		normalize: normalizer,
		publisher: publisher,
	}
}

// ProcessNotification handles a message of type "notification" and returns
// the recorded outcome. A non-nil error means the durable write failed and
// the provider should retry (HTTP 500).
//
// The context is detached from the HTTP request: once verification passed,
// a client disconnect must not leave half-committed state behind.
func (p *Pipeline) ProcessNotification(ctx context.Context, in *Inbound) (domain.Outcome, error) {
	ctx = context.WithoutCancel(ctx)

	marked, seen := p.seenOrMark(ctx, in.MessageID)
	if seen {
		slog.DebugContext(ctx, "Duplicate callback short-circuited by cache", "message_id", in.MessageID)
		metrics.DedupHitsTotal.WithLabelValues("cache").Inc()
		return domain.OutcomeDuplicate, nil
	}

	notification := &domain.Notification{
		MessageID:      in.MessageID,
		MessageType:    domain.MessageNotification,
		SubscriptionID: in.SubscriptionID,
		EventType:      in.SubscriptionType,
		Payload:        in.Body,
		Outcome:        domain.OutcomeAccepted,
		ReceivedAt:     in.Timestamp,
	}

	event, err := p.normalize.Normalize(in.SubscriptionType, in.Event, in.Timestamp)
	switch {
	case err == nil:
		notification.DispatchPending = true
	case errors.Is(err, domain.ErrUnsupportedEventType):
		// Forward compatibility: store it, skip dispatch, keep serving.
		slog.WarnContext(ctx, "Unsupported event type, skipping dispatch",
			"message_id", in.MessageID, "event_type", in.SubscriptionType, "error", err)
		metrics.UnsupportedEventsTotal.WithLabelValues(in.SubscriptionType).Inc()
	case errors.Is(err, errInvalidTimestamp):
		slog.ErrorContext(ctx, "Event timestamp failed strict parsing",
			"message_id", in.MessageID, "event_type", in.SubscriptionType, "error", err)
		notification.Outcome = domain.OutcomeFailed
	default:
		return "", fmt.Errorf("failed to normalize notification: %w", err)
	}

	if err := p.store.InsertWithEvent(ctx, notification, event); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			slog.DebugContext(ctx, "Duplicate callback short-circuited by store", "message_id", in.MessageID)
			metrics.DedupHitsTotal.WithLabelValues("store").Inc()
			return domain.OutcomeDuplicate, nil
		}
		// The cache mark outlived the failed write. Remove it so the
		// provider's retry of this message ID is not swallowed as a
		// duplicate of something that was never stored.
		if marked {
			if unmarkErr := p.dedup.Unmark(ctx, in.MessageID); unmarkErr != nil {
				slog.WarnContext(ctx, "Failed to remove dedup mark after store failure",
					"message_id", in.MessageID, "error", unmarkErr)
			}
		}
		return "", fmt.Errorf("failed to persist notification: %w", err)
	}

	if event == nil {
		return notification.Outcome, nil
	}

	if err := p.publishWithRetry(ctx, in.MessageID, event); err != nil {
		// Non-fatal for the provider: the row stays dispatch_pending and the
		// background sweep picks it up.
		slog.ErrorContext(ctx, "Dispatch deferred after publish failures",
			"message_id", in.MessageID, "event_type", event.Type, "error", err)
		metrics.DispatchesTotal.WithLabelValues("deferred").Inc()
		if recErr := p.store.RecordDispatchFailure(ctx, in.MessageID); recErr != nil {
			slog.WarnContext(ctx, "Failed to record dispatch failure", "message_id", in.MessageID, "error", recErr)
		}
		return domain.OutcomeAccepted, nil
	}

	metrics.DispatchesTotal.WithLabelValues("success").Inc()
	if err := p.store.MarkDispatched(ctx, in.MessageID); err != nil {
		// Worst case the sweep republishes; the bus is at-least-once anyway.
		slog.WarnContext(ctx, "Failed to mark notification dispatched", "message_id", in.MessageID, "error", err)
	}

	return domain.OutcomeAccepted, nil
}

// HandleRevocation records the revocation callback and flips the subscription
// status. Twitch sends these when a subscription is disabled (user removed
// authorization, broadcaster gone, or too many failed deliveries).
func (p *Pipeline) HandleRevocation(ctx context.Context, in *Inbound, reason string) error {
	ctx = context.WithoutCancel(ctx)

	marked, seen := p.seenOrMark(ctx, in.MessageID)
	if seen {
		metrics.DedupHitsTotal.WithLabelValues("cache").Inc()
		return nil
	}

	slog.InfoContext(ctx, "EventSub subscription revoked",
		"subscription_id", in.SubscriptionID, "type", in.SubscriptionType, "reason", reason)

	if err := p.subs.UpdateStatus(ctx, in.SubscriptionID, domain.SubscriptionRevoked); err != nil {
		if !errors.Is(err, domain.ErrSubscriptionNotFound) {
			slog.ErrorContext(ctx, "Failed to mark subscription revoked",
				"subscription_id", in.SubscriptionID, "error", err)
		}
	}

	notification := &domain.Notification{
		MessageID:      in.MessageID,
		MessageType:    domain.MessageRevocation,
		SubscriptionID: in.SubscriptionID,
		EventType:      in.SubscriptionType,
		Payload:        in.Body,
		Outcome:        domain.OutcomeAccepted,
		ReceivedAt:     in.Timestamp,
	}
	if err := p.store.InsertWithEvent(ctx, notification, nil); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			metrics.DedupHitsTotal.WithLabelValues("store").Inc()
			return nil
		}
		// Same rule as the notification path: a mark without a row would
		// swallow Twitch's retry of this revocation as a duplicate.
		if marked {
			if unmarkErr := p.dedup.Unmark(ctx, in.MessageID); unmarkErr != nil {
				slog.WarnContext(ctx, "Failed to remove dedup mark after store failure",
					"message_id", in.MessageID, "error", unmarkErr)
			}
		}
		return fmt.Errorf("failed to persist revocation: %w", err)
	}
	return nil
}

// HandleVerification marks the subscription enabled after a successful
// challenge handshake. Runs detached so the challenge response is never
// blocked on Postgres.
func (p *Pipeline) HandleVerification(ctx context.Context, subscriptionID string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, statusUpdateTimeout)
		defer cancel()

		err := p.subs.UpdateStatus(ctx, subscriptionID, domain.SubscriptionEnabled)
		if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
			slog.ErrorContext(ctx, "Failed to mark subscription enabled",
				"subscription_id", subscriptionID, "error", err)
		}
	}()
}

// seenOrMark consults the dedup cache, treating a cache failure as "not
// seen": the store's unique constraint is the correctness backstop, so a dead
// Redis degrades to extra Postgres conflicts instead of dropped events.
func (p *Pipeline) seenOrMark(ctx context.Context, messageID string) (marked, seen bool) {
	seen, err := p.dedup.SeenOrMark(ctx, messageID)
	if err != nil {
		slog.WarnContext(ctx, "Dedup cache unavailable, relying on store constraint",
			"message_id", messageID, "error", err)
		return false, false
	}
	return !seen, seen
}

func (p *Pipeline) publishWithRetry(ctx context.Context, messageID string, ev *domain.NormalizedEvent) error {
	policy := retry.Policy{
		MaxAttempts:    publishMaxAttempts,
		InitialBackoff: publishInitialBackoff,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.WarnContext(ctx, "Bus publish failed, retrying",
				"message_id", messageID, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	return retry.DoVoid(ctx, policy, retry.RetryAll, func() error {
		return p.publisher.Publish(ctx, messageID, ev)
	})
}
