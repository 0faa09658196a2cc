package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

// EventEnvelope is the wire format published on the bus channel. The consuming
// bot process deduplicates on MessageID; delivery is at-least-once.
type EventEnvelope struct {
	MessageID     string         `json:"message_id"`
	Type          string         `json:"type"`
	BroadcasterID string         `json:"broadcaster_user_id"`
	UserID        string         `json:"user_id,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Attributes    map[string]any `json:"attributes,omitempty"`
}

// BusPublisher hands normalized events to the Discord bot over Redis Pub/Sub.
type BusPublisher struct {
	rdb     *goredis.Client
	channel string
}

func NewBusPublisher(rdb *goredis.Client, channel string) *BusPublisher {
	return &BusPublisher{rdb: rdb, channel: channel}
}

func (p *BusPublisher) Publish(ctx context.Context, messageID string, ev *domain.NormalizedEvent) error {
	envelope := EventEnvelope{
		MessageID:     messageID,
		Type:          ev.Type,
		BroadcasterID: ev.BroadcasterID,
		UserID:        ev.UserID,
		OccurredAt:    ev.OccurredAt,
		Attributes:    ev.Attributes,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
