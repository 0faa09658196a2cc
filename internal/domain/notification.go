package domain

import (
	"context"
	"encoding/json"
	"time"
)

// MessageType discriminates the three kinds of EventSub callbacks.
type MessageType string

const (
	MessageNotification MessageType = "notification"
	MessageVerification MessageType = "webhook_callback_verification"
	MessageRevocation   MessageType = "revocation"
)

// Outcome is the processing result recorded for a notification.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Notification is one inbound callback occurrence. MessageID is globally
// unique across all subscriptions and is the sole deduplication key.
// Rows are immutable once written except for the outcome and dispatch fields.
type Notification struct {
	MessageID        string          `db:"message_id"`
	MessageType      MessageType     `db:"message_type"`
	SubscriptionID   string          `db:"subscription_id"`
	EventType        string          `db:"event_type"`
	Payload          json.RawMessage `db:"payload"`
	Outcome          Outcome         `db:"outcome"`
	DispatchPending  bool            `db:"dispatch_pending"`
	DispatchAttempts int             `db:"dispatch_attempts"`
	ReceivedAt       time.Time       `db:"received_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// NotificationFilter narrows NotificationStore.Query for inspection tooling.
// Zero values mean "no constraint".
type NotificationFilter struct {
	Outcome        Outcome
	MessageType    MessageType
	SubscriptionID string
	EventType      string
	Since          time.Time
	Limit          int
}

// NotificationStore is the durable record of every accepted notification.
// InsertWithEvent commits the notification row and its normalized event (if
// any) in one transaction, and reports ErrDuplicateMessage when the message
// ID already exists. This unique-key conflict is the correctness backstop
// behind the dedup cache.
type NotificationStore interface {
	InsertWithEvent(ctx context.Context, n *Notification, ev *NormalizedEvent) error
	UpdateOutcome(ctx context.Context, messageID string, outcome Outcome) error
	MarkDispatched(ctx context.Context, messageID string) error
	RecordDispatchFailure(ctx context.Context, messageID string) error
	ListDispatchPending(ctx context.Context, maxAttempts, limit int) ([]Notification, error)
	Query(ctx context.Context, filter NotificationFilter) ([]Notification, error)
}

// DedupCache is the fast, TTL-bounded layer in front of the store's unique
// constraint. SeenOrMark is an atomic check-and-set: under concurrent callers
// for the same message ID exactly one observes seen=false.
type DedupCache interface {
	SeenOrMark(ctx context.Context, messageID string) (bool, error)
	Unmark(ctx context.Context, messageID string) error
}
