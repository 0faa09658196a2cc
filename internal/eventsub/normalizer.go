package eventsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

// errInvalidTimestamp marks a payload whose occurred-at field failed strict
// parsing. Unlike an unsupported type this is a hard failure: the event
// cannot be ordered, so it must not be dispatched.
var errInvalidTimestamp = errors.New("invalid event timestamp")

// Internal event type names, decoupled from Twitch's dotted subscription
// types so a provider rename doesn't ripple into the bot.
const (
	EventStreamOnline          = "stream-online"
	EventStreamOffline         = "stream-offline"
	EventChannelUpdate         = "channel-update"
	EventFollow                = "follow"
	EventSubscription          = "subscription"
	EventSubscriptionGift      = "subscription-gift"
	EventResubMessage          = "resubscription-message"
	EventCheer                 = "cheer"
	EventRaid                  = "raid"
	EventChannelPointsRedeemed = "channel-points-redemption"
)

type normalizeFunc func(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error)

// Normalizer maps the per-topic payload shapes onto one internal event
// representation. The handler table is the single registration point for
// supported subscription types; anything absent normalizes to
// domain.ErrUnsupportedEventType instead of failing the callback.
type Normalizer struct {
	handlers map[string]normalizeFunc
}

func NewNormalizer() *Normalizer {
	return &Normalizer{handlers: map[string]normalizeFunc{
		"stream.online":                normalizeStreamOnline,
		"stream.offline":               normalizeStreamOffline,
		"channel.update":               normalizeChannelUpdate,
		"channel.follow":               normalizeFollow,
		"channel.subscribe":            normalizeSubscribe,
		"channel.subscription.gift":    normalizeSubscriptionGift,
		"channel.subscription.message": normalizeResubMessage,
		"channel.cheer":                normalizeCheer,
		"channel.raid":                 normalizeRaid,
		"channel.channel_points_custom_reward_redemption.add": normalizeRedemption,
	}}
}

// Supported reports whether the subscription type has a registered handler.
func (n *Normalizer) Supported(subscriptionType string) bool {
	_, ok := n.handlers[subscriptionType]
	return ok
}

// Normalize derives the internal event from a notification payload. fallback
// is the message timestamp, used as occurred-at for topics whose payload
// carries no timestamp of its own. Malformed payloads for a known type are
// treated like unknown types: skipped, never a crash.
func (n *Normalizer) Normalize(subscriptionType string, event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	handler, ok := n.handlers[subscriptionType]
	if !ok {
		return nil, domain.ErrUnsupportedEventType
	}

	ev, err := handler(event, fallback)
	if err != nil {
		if errors.Is(err, errInvalidTimestamp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedEventType, err)
	}
	return ev, nil
}

// parseEventTime parses Twitch's RFC 3339 timestamps, which may carry
// sub-second precision and either "Z" or a numeric UTC offset.
func parseEventTime(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errInvalidTimestamp, value)
	}
	return ts, nil
}

func decode[T any](event json.RawMessage) (T, error) {
	var payload T
	if err := json.Unmarshal(event, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode event payload: %w", err)
	}
	return payload, nil
}

func normalizeStreamOnline(event json.RawMessage, _ time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		ID                string `json:"id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		BroadcasterLogin  string `json:"broadcaster_user_login"`
		Type              string `json:"type"`
		StartedAt         string `json:"started_at"`
	}](event)
	if err != nil {
		return nil, err
	}

	startedAt, err := parseEventTime(payload.StartedAt)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventStreamOnline,
		BroadcasterID: payload.BroadcasterUserID,
		OccurredAt:    startedAt,
		Attributes: map[string]any{
			"stream_id":              payload.ID,
			"broadcaster_user_login": payload.BroadcasterLogin,
			"stream_type":            payload.Type,
		},
	}, nil
}

func normalizeStreamOffline(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
		BroadcasterLogin  string `json:"broadcaster_user_login"`
	}](event)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventStreamOffline,
		BroadcasterID: payload.BroadcasterUserID,
		OccurredAt:    fallback,
		Attributes: map[string]any{
			"broadcaster_user_login": payload.BroadcasterLogin,
		},
	}, nil
}

func normalizeChannelUpdate(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		BroadcasterUserID string `json:"broadcaster_user_id"`
		Title             string `json:"title"`
		Language          string `json:"language"`
		CategoryID        string `json:"category_id"`
		CategoryName      string `json:"category_name"`
	}](event)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventChannelUpdate,
		BroadcasterID: payload.BroadcasterUserID,
		OccurredAt:    fallback,
		Attributes: map[string]any{
			"title":         payload.Title,
			"language":      payload.Language,
			"category_id":   payload.CategoryID,
			"category_name": payload.CategoryName,
		},
	}, nil
}

func normalizeFollow(event json.RawMessage, _ time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		UserID            string `json:"user_id"`
		UserLogin         string `json:"user_login"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		FollowedAt        string `json:"followed_at"`
	}](event)
	if err != nil {
		return nil, err
	}

	followedAt, err := parseEventTime(payload.FollowedAt)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventFollow,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    followedAt,
		Attributes: map[string]any{
			"user_login": payload.UserLogin,
		},
	}, nil
}

func normalizeSubscribe(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		UserID            string `json:"user_id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		Tier              string `json:"tier"`
		IsGift            bool   `json:"is_gift"`
	}](event)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventSubscription,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    fallback,
		Attributes: map[string]any{
			"tier":    payload.Tier,
			"is_gift": payload.IsGift,
		},
	}, nil
}

func normalizeSubscriptionGift(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		UserID            string `json:"user_id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		Total             int    `json:"total"`
		Tier              string `json:"tier"`
		CumulativeTotal   *int   `json:"cumulative_total"`
		IsAnonymous       bool   `json:"is_anonymous"`
	}](event)
	if err != nil {
		return nil, err
	}

	attrs := map[string]any{
		"total":        payload.Total,
		"tier":         payload.Tier,
		"is_anonymous": payload.IsAnonymous,
	}
	// Null for anonymous gifters.
	if payload.CumulativeTotal != nil {
		attrs["cumulative_total"] = *payload.CumulativeTotal
	}

	return &domain.NormalizedEvent{
		Type:          EventSubscriptionGift,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    fallback,
		Attributes:    attrs,
	}, nil
}

func normalizeResubMessage(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		UserID            string `json:"user_id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		Tier              string `json:"tier"`
		CumulativeMonths  int    `json:"cumulative_months"`
		StreakMonths      *int   `json:"streak_months"`
		DurationMonths    int    `json:"duration_months"`
		Message           struct {
			Text string `json:"text"`
		} `json:"message"`
	}](event)
	if err != nil {
		return nil, err
	}

	attrs := map[string]any{
		"tier":              payload.Tier,
		"cumulative_months": payload.CumulativeMonths,
		"duration_months":   payload.DurationMonths,
		"message":           payload.Message.Text,
	}
	if payload.StreakMonths != nil {
		attrs["streak_months"] = *payload.StreakMonths
	}

	return &domain.NormalizedEvent{
		Type:          EventResubMessage,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    fallback,
		Attributes:    attrs,
	}, nil
}

func normalizeCheer(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		IsAnonymous       bool   `json:"is_anonymous"`
		UserID            string `json:"user_id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		Message           string `json:"message"`
		Bits              int    `json:"bits"`
	}](event)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventCheer,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    fallback,
		Attributes: map[string]any{
			"bits":         payload.Bits,
			"message":      payload.Message,
			"is_anonymous": payload.IsAnonymous,
		},
	}, nil
}

func normalizeRaid(event json.RawMessage, fallback time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		FromBroadcasterUserID string `json:"from_broadcaster_user_id"`
		ToBroadcasterUserID   string `json:"to_broadcaster_user_id"`
		Viewers               int    `json:"viewers"`
	}](event)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventRaid,
		BroadcasterID: payload.ToBroadcasterUserID,
		UserID:        payload.FromBroadcasterUserID,
		OccurredAt:    fallback,
		Attributes: map[string]any{
			"viewers": payload.Viewers,
		},
	}, nil
}

func normalizeRedemption(event json.RawMessage, _ time.Time) (*domain.NormalizedEvent, error) {
	payload, err := decode[struct {
		ID                string `json:"id"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		UserID            string `json:"user_id"`
		UserInput         string `json:"user_input"`
		Status            string `json:"status"`
		RedeemedAt        string `json:"redeemed_at"`
		Reward            struct {
			ID    string `json:"id"`
			Title string `json:"title"`
			Cost  int    `json:"cost"`
		} `json:"reward"`
	}](event)
	if err != nil {
		return nil, err
	}

	redeemedAt, err := parseEventTime(payload.RedeemedAt)
	if err != nil {
		return nil, err
	}

	return &domain.NormalizedEvent{
		Type:          EventChannelPointsRedeemed,
		BroadcasterID: payload.BroadcasterUserID,
		UserID:        payload.UserID,
		OccurredAt:    redeemedAt,
		Attributes: map[string]any{
			"redemption_id": payload.ID,
			"reward_id":     payload.Reward.ID,
			"reward_title":  payload.Reward.Title,
			"reward_cost":   payload.Reward.Cost,
			"user_input":    payload.UserInput,
			"status":        payload.Status,
		},
	}, nil
}
