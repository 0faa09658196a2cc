package domain

import (
	"context"
	"time"
)

// SubscriptionStatus is the lifecycle state of an EventSub subscription.
type SubscriptionStatus string

const (
	SubscriptionPending SubscriptionStatus = "pending"
	SubscriptionEnabled SubscriptionStatus = "enabled"
	SubscriptionRevoked SubscriptionStatus = "revoked"
)

// Subscription is one registered EventSub topic. Rows are created by the
// subscription manager; the intake pipeline only reads them to resolve the
// per-subscription webhook secret and to flip the status on revocation.
type Subscription struct {
	ID        string            `db:"id"`
	Type      string            `db:"type"`
	Condition map[string]string `db:"condition"`
	Status    SubscriptionStatus `db:"status"`
	Secret    string            `db:"secret"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`
}

// SubscriptionRepository abstracts subscription persistence.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id string) (*Subscription, error)
	UpdateStatus(ctx context.Context, id string, status SubscriptionStatus) error
	ListByStatus(ctx context.Context, status SubscriptionStatus) ([]Subscription, error)
	Delete(ctx context.Context, id string) error
}

// SecretSource resolves the webhook secret for a subscription. Implementations
// may cache lookups, but must observe secret rotation within their TTL.
type SecretSource interface {
	Secret(ctx context.Context, subscriptionID string) (string, error)
}
