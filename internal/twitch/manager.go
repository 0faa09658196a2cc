package twitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Its-donkey/kappopher/helix"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

// subscriptionAPIClient is the subset of Client used by SubscriptionManager.
type subscriptionAPIClient interface {
	CreateEventSubSubscription(ctx context.Context, subscriptionType, version string, condition map[string]string, callbackURL, secret string) (*helix.EventSubSubscription, error)
	DeleteEventSubSubscription(ctx context.Context, subscriptionID string) error
}

// SubscriptionRequest names one desired EventSub topic.
type SubscriptionRequest struct {
	Type      string
	Version   string
	Condition map[string]string
}

// SubscriptionManager reconciles the desired set of EventSub subscriptions
// against Twitch and the local repository. Each subscription gets its own
// webhook secret so a leaked or rotated secret never invalidates the rest.
type SubscriptionManager struct {
	client      subscriptionAPIClient
	repo        domain.SubscriptionRepository
	callbackURL string
	clock       clockwork.Clock
}

func NewSubscriptionManager(client subscriptionAPIClient, repo domain.SubscriptionRepository, callbackURL string, clock clockwork.Clock) *SubscriptionManager {
	return &SubscriptionManager{
		client:      client,
		repo:        repo,
		callbackURL: callbackURL,
		clock:       clock,
	}
}

// Subscribe creates one subscription on Twitch and persists it as pending.
// Twitch only reveals the subscription ID in the create response, so the
// local row lands after the API call; the verification handshake racing
// ahead of the insert fails signature checking once and succeeds on Twitch's
// retry.
func (sm *SubscriptionManager) Subscribe(ctx context.Context, req SubscriptionRequest) error {
	secret := uuid.NewString()

	sub, err := sm.client.CreateEventSubSubscription(ctx, req.Type, req.Version, req.Condition, sm.callbackURL, secret)
	if err != nil {
		// 409 means Twitch already has this subscription, likely from a
		// previous run whose row survived. Nothing to do.
		var apiErr *helix.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			slog.InfoContext(ctx, "EventSub subscription already exists on Twitch",
				"type", req.Type, "condition", req.Condition)
			return nil
		}
		return fmt.Errorf("failed to create subscription for %s: %w", req.Type, err)
	}

	now := sm.clock.Now()
	row := &domain.Subscription{
		ID:        sub.ID,
		Type:      req.Type,
		Condition: req.Condition,
		Status:    domain.SubscriptionPending,
		Secret:    secret,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := sm.repo.Create(ctx, row); err != nil {
		// Without the row the secret is lost and callbacks can never
		// verify. Best effort cleanup on Twitch's side.
		if cleanupErr := sm.client.DeleteEventSubSubscription(ctx, sub.ID); cleanupErr != nil {
			slog.WarnContext(ctx, "Failed to clean up Twitch subscription after persist failure",
				"subscription_id", sub.ID, "error", cleanupErr)
		}
		return fmt.Errorf("failed to persist subscription %s: %w", sub.ID, err)
	}

	slog.InfoContext(ctx, "Created EventSub subscription",
		"subscription_id", sub.ID, "type", req.Type, "condition", req.Condition)
	return nil
}

// Unsubscribe deletes the subscription on Twitch and locally. A Twitch-side
// failure is logged and the local row is removed anyway; Twitch drops
// subscriptions whose callbacks keep failing.
func (sm *SubscriptionManager) Unsubscribe(ctx context.Context, subscriptionID string) error {
	if err := sm.client.DeleteEventSubSubscription(ctx, subscriptionID); err != nil {
		slog.WarnContext(ctx, "Failed to delete Twitch subscription",
			"subscription_id", subscriptionID, "error", err)
	}
	if err := sm.repo.Delete(ctx, subscriptionID); err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", subscriptionID, err)
	}
	slog.InfoContext(ctx, "Removed EventSub subscription", "subscription_id", subscriptionID)
	return nil
}

// EnsureSubscriptions brings the live set up to the desired set on startup.
// Existing pending or enabled rows satisfy their request; everything else is
// created. Revoked rows do not count, Twitch requires a fresh subscription
// after revocation.
func (sm *SubscriptionManager) EnsureSubscriptions(ctx context.Context, desired []SubscriptionRequest) error {
	ctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	defer cancel()

	existing := make(map[string]bool)
	for _, status := range []domain.SubscriptionStatus{domain.SubscriptionEnabled, domain.SubscriptionPending} {
		subs, err := sm.repo.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to list %s subscriptions: %w", status, err)
		}
		for _, sub := range subs {
			existing[subscriptionKey(sub.Type, sub.Condition)] = true
		}
	}

	var failed int
	for _, req := range desired {
		if existing[subscriptionKey(req.Type, req.Condition)] {
			continue
		}
		if err := sm.Subscribe(ctx, req); err != nil {
			slog.ErrorContext(ctx, "Failed to ensure subscription",
				"type", req.Type, "condition", req.Condition, "error", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("failed to ensure %d of %d subscriptions", failed, len(desired))
	}
	return nil
}

// subscriptionKey identifies a topic by type plus condition. Condition maps
// are tiny (one or two keys), so the quadratic-looking construction is fine.
func subscriptionKey(subType string, condition map[string]string) string {
	key := subType
	for _, field := range []string{"broadcaster_user_id", "to_broadcaster_user_id", "user_id", "moderator_user_id"} {
		if v, ok := condition[field]; ok {
			key += "|" + field + "=" + v
		}
	}
	return key
}

// DesiredSubscriptions expands the configured broadcaster into the full topic
// set the bot consumes.
func DesiredSubscriptions(broadcasterID string) []SubscriptionRequest {
	byBroadcaster := map[string]string{"broadcaster_user_id": broadcasterID}
	return []SubscriptionRequest{
		{Type: "stream.online", Version: "1", Condition: byBroadcaster},
		{Type: "stream.offline", Version: "1", Condition: byBroadcaster},
		{Type: "channel.update", Version: "2", Condition: byBroadcaster},
		{Type: "channel.follow", Version: "2", Condition: map[string]string{"broadcaster_user_id": broadcasterID, "moderator_user_id": broadcasterID}},
		{Type: "channel.subscribe", Version: "1", Condition: byBroadcaster},
		{Type: "channel.subscription.gift", Version: "1", Condition: byBroadcaster},
		{Type: "channel.subscription.message", Version: "1", Condition: byBroadcaster},
		{Type: "channel.cheer", Version: "1", Condition: byBroadcaster},
		{Type: "channel.raid", Version: "1", Condition: map[string]string{"to_broadcaster_user_id": broadcasterID}},
		{Type: "channel.channel_points_custom_reward_redemption.add", Version: "1", Condition: byBroadcaster},
	}
}

const reconcileTimeout = 30 * time.Second
