package domain

import (
	"context"
	"time"
)

// NormalizedEvent is the internal representation derived from a notification.
// One notification yields zero or one normalized event (zero for verification
// and revocation message types, and for unsupported event types).
type NormalizedEvent struct {
	Type          string         `json:"type"`
	BroadcasterID string         `json:"broadcaster_user_id"`
	UserID        string         `json:"user_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// EventPublisher hands normalized events to the downstream bus. Delivery is
// at-least-once; the consuming bot process is responsible for idempotence.
type EventPublisher interface {
	Publish(ctx context.Context, messageID string, ev *NormalizedEvent) error
}
