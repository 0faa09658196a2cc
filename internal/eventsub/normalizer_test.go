package eventsub

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

var testFallback = time.Date(2023, 5, 1, 10, 0, 5, 0, time.UTC)

func TestNormalizer_StreamOnline(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{
		"id": "9001",
		"broadcaster_user_id": "12345",
		"broadcaster_user_login": "felps",
		"type": "live",
		"started_at": "2023-05-01T10:00:00Z"
	}`)

	ev, err := n.Normalize("stream.online", event, testFallback)
	require.NoError(t, err)

	assert.Equal(t, EventStreamOnline, ev.Type)
	assert.Equal(t, "12345", ev.BroadcasterID)
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC), ev.OccurredAt)
	assert.Equal(t, "9001", ev.Attributes["stream_id"])
	assert.Equal(t, "felps", ev.Attributes["broadcaster_user_login"])
}

func TestNormalizer_StreamOffline_UsesFallbackTimestamp(t *testing.T) {
	n := NewNormalizer()

	ev, err := n.Normalize("stream.offline", json.RawMessage(`{"broadcaster_user_id":"12345","broadcaster_user_login":"felps"}`), testFallback)
	require.NoError(t, err)

	assert.Equal(t, EventStreamOffline, ev.Type)
	assert.Equal(t, testFallback, ev.OccurredAt)
}

func TestNormalizer_UnsupportedType(t *testing.T) {
	n := NewNormalizer()

	ev, err := n.Normalize("new.future.type", json.RawMessage(`{"anything":"goes"}`), testFallback)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, domain.ErrUnsupportedEventType)
	assert.False(t, n.Supported("new.future.type"))
}

func TestNormalizer_InvalidEventTimestamp(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{"broadcaster_user_id":"12345","started_at":"01/05/2023 10:00"}`)
	ev, err := n.Normalize("stream.online", event, testFallback)
	assert.Nil(t, ev)
	assert.ErrorIs(t, err, errInvalidTimestamp)
}

func TestNormalizer_TimestampWithOffset(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{"user_id":"777","broadcaster_user_id":"12345","followed_at":"2023-05-01T07:00:00.123-03:00"}`)
	ev, err := n.Normalize("channel.follow", event, testFallback)
	require.NoError(t, err)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2023, 5, 1, 10, 0, 0, 123000000, time.UTC)))
	assert.Equal(t, "777", ev.UserID)
}

func TestNormalizer_Cheer(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{
		"is_anonymous": false,
		"user_id": "777",
		"broadcaster_user_id": "12345",
		"message": "cheer100 nice",
		"bits": 100
	}`)

	ev, err := n.Normalize("channel.cheer", event, testFallback)
	require.NoError(t, err)

	assert.Equal(t, EventCheer, ev.Type)
	assert.Equal(t, 100, ev.Attributes["bits"])
	assert.Equal(t, false, ev.Attributes["is_anonymous"])
}

func TestNormalizer_SubscriptionGift_NullCumulativeTotal(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{
		"user_id": "",
		"broadcaster_user_id": "12345",
		"total": 5,
		"tier": "1000",
		"cumulative_total": null,
		"is_anonymous": true
	}`)

	ev, err := n.Normalize("channel.subscription.gift", event, testFallback)
	require.NoError(t, err)

	assert.Equal(t, 5, ev.Attributes["total"])
	assert.NotContains(t, ev.Attributes, "cumulative_total")

	withTotal := json.RawMessage(`{"user_id":"777","broadcaster_user_id":"12345","total":5,"tier":"1000","cumulative_total":42,"is_anonymous":false}`)
	ev, err = n.Normalize("channel.subscription.gift", withTotal, testFallback)
	require.NoError(t, err)
	assert.Equal(t, 42, ev.Attributes["cumulative_total"])
}

func TestNormalizer_Raid(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{
		"from_broadcaster_user_id": "666",
		"to_broadcaster_user_id": "12345",
		"viewers": 9001
	}`)

	ev, err := n.Normalize("channel.raid", event, testFallback)
	require.NoError(t, err)

	assert.Equal(t, EventRaid, ev.Type)
	assert.Equal(t, "12345", ev.BroadcasterID)
	assert.Equal(t, "666", ev.UserID)
	assert.Equal(t, 9001, ev.Attributes["viewers"])
}

func TestNormalizer_Redemption(t *testing.T) {
	n := NewNormalizer()

	event := json.RawMessage(`{
		"id": "redeem-1",
		"broadcaster_user_id": "12345",
		"user_id": "777",
		"user_input": "hydrate!",
		"status": "unfulfilled",
		"redeemed_at": "2023-05-01T10:00:00.5Z",
		"reward": {"id": "reward-1", "title": "Hydrate", "cost": 500}
	}`)

	ev, err := n.Normalize("channel.channel_points_custom_reward_redemption.add", event, testFallback)
	require.NoError(t, err)

	assert.Equal(t, EventChannelPointsRedeemed, ev.Type)
	assert.Equal(t, 500, ev.Attributes["reward_cost"])
	assert.Equal(t, "Hydrate", ev.Attributes["reward_title"])
	assert.Equal(t, time.Date(2023, 5, 1, 10, 0, 0, 500000000, time.UTC), ev.OccurredAt)
}

func TestNormalizer_AllRegisteredTypes(t *testing.T) {
	n := NewNormalizer()

	for _, subType := range []string{
		"stream.online",
		"stream.offline",
		"channel.update",
		"channel.follow",
		"channel.subscribe",
		"channel.subscription.gift",
		"channel.subscription.message",
		"channel.cheer",
		"channel.raid",
		"channel.channel_points_custom_reward_redemption.add",
	} {
		assert.True(t, n.Supported(subType), "expected %s to be supported", subType)
	}
}
