package twitch

import (
	"context"
	"fmt"
	"time"

	"github.com/Its-donkey/kappopher/helix"
)

const appTokenTimeout = 15 * time.Second

// Client wraps a Kappopher helix client for EventSub subscription CRUD.
// Uses app-scoped client credentials; webhook subscriptions require an app
// access token.
type Client struct {
	appClient *helix.Client
}

// NewClient obtains an app access token (client credentials) and returns a
// client ready for EventSub management.
func NewClient(clientID, clientSecret string) (*Client, error) {
	appAuth := helix.NewAuthClient(helix.AuthConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})

	ctx, cancel := context.WithTimeout(context.Background(), appTokenTimeout)
	defer cancel()

	if _, err := appAuth.GetAppAccessToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to get app access token: %w", err)
	}

	return &Client{appClient: helix.NewClient(clientID, appAuth)}, nil
}

// CreateEventSubSubscription creates a webhook-transport subscription. The
// secret is the per-subscription HMAC key Twitch will sign callbacks with.
func (c *Client) CreateEventSubSubscription(ctx context.Context, subscriptionType, version string, condition map[string]string, callbackURL, secret string) (*helix.EventSubSubscription, error) {
	sub, err := c.appClient.CreateEventSubSubscription(ctx, &helix.CreateEventSubSubscriptionParams{
		Type:      subscriptionType,
		Version:   version,
		Condition: condition,
		Transport: helix.CreateEventSubTransport{
			Method:   "webhook",
			Callback: callbackURL,
			Secret:   secret,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eventsub subscription: %w", err)
	}
	return sub, nil
}

// DeleteEventSubSubscription deletes a subscription by ID.
func (c *Client) DeleteEventSubSubscription(ctx context.Context, subscriptionID string) error {
	if err := c.appClient.DeleteEventSubSubscription(ctx, subscriptionID); err != nil {
		return fmt.Errorf("failed to delete eventsub subscription: %w", err)
	}
	return nil
}
