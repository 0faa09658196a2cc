package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

const uniqueViolationCode = "23505"

// NotificationRepo is the durable event store. The primary key on message_id
// is the second dedup layer: an insert racing the cache resolves here.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

// InsertWithEvent writes the notification row and, when ev is non-nil, its
// normalized event in a single transaction. A reader never observes one
// without the other. Returns domain.ErrDuplicateMessage on a message_id
// conflict.
func (r *NotificationRepo) InsertWithEvent(ctx context.Context, n *domain.Notification, ev *domain.NormalizedEvent) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO eventsub_notifications
			(message_id, message_type, subscription_id, event_type, payload, outcome, dispatch_pending, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.MessageID, n.MessageType, n.SubscriptionID, n.EventType, n.Payload, n.Outcome, n.DispatchPending, n.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateMessage
		}
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	if ev != nil {
		attrs, err := json.Marshal(ev.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal event attributes: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO normalized_events
				(message_id, event_type, broadcaster_user_id, user_id, occurred_at, attributes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, n.MessageID, ev.Type, ev.BroadcasterID, ev.UserID, ev.OccurredAt, attrs)
		if err != nil {
			return fmt.Errorf("failed to insert normalized event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit notification: %w", err)
	}
	return nil
}

func (r *NotificationRepo) UpdateOutcome(ctx context.Context, messageID string, outcome domain.Outcome) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE eventsub_notifications
		SET outcome = $1, updated_at = NOW()
		WHERE message_id = $2
	`, outcome, messageID)
	if err != nil {
		return fmt.Errorf("failed to update outcome: %w", err)
	}
	return nil
}

func (r *NotificationRepo) MarkDispatched(ctx context.Context, messageID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE eventsub_notifications
		SET dispatch_pending = FALSE, updated_at = NOW()
		WHERE message_id = $1
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark dispatched: %w", err)
	}
	return nil
}

func (r *NotificationRepo) RecordDispatchFailure(ctx context.Context, messageID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE eventsub_notifications
		SET dispatch_attempts = dispatch_attempts + 1, updated_at = NOW()
		WHERE message_id = $1
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to record dispatch failure: %w", err)
	}
	return nil
}

// ListDispatchPending returns accepted notifications awaiting a bus publish,
// oldest first, excluding those past maxAttempts.
func (r *NotificationRepo) ListDispatchPending(ctx context.Context, maxAttempts, limit int) ([]domain.Notification, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, message_type, subscription_id, event_type, payload,
		       outcome, dispatch_pending, dispatch_attempts, received_at, updated_at
		FROM eventsub_notifications
		WHERE dispatch_pending AND dispatch_attempts < $1
		ORDER BY received_at
		LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch-pending notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// Query returns notifications matching the filter, newest first. Used by
// inspection tooling, not the hot path.
func (r *NotificationRepo) Query(ctx context.Context, filter domain.NotificationFilter) ([]domain.Notification, error) {
	query := `
		SELECT message_id, message_type, subscription_id, event_type, payload,
		       outcome, dispatch_pending, dispatch_attempts, received_at, updated_at
		FROM eventsub_notifications
		WHERE TRUE`
	var args []any

	appendArg := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND %s = $%d", clause, len(args))
	}

	if filter.Outcome != "" {
		appendArg("outcome", filter.Outcome)
	}
	if filter.MessageType != "" {
		appendArg("message_type", filter.MessageType)
	}
	if filter.SubscriptionID != "" {
		appendArg("subscription_id", filter.SubscriptionID)
	}
	if filter.EventType != "" {
		appendArg("event_type", filter.EventType)
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND received_at >= $%d", len(args))
	}

	query += " ORDER BY received_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.MessageID, &n.MessageType, &n.SubscriptionID, &n.EventType, &n.Payload,
			&n.Outcome, &n.DispatchPending, &n.DispatchAttempts, &n.ReceivedAt, &n.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
