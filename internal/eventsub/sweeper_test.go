package eventsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

func pendingNotification(messageID string) *domain.Notification {
	body, _ := json.Marshal(map[string]any{
		"subscription": map[string]any{"id": "sub-1", "type": "stream.online", "version": "1"},
		"event": map[string]any{
			"id":                  "9001",
			"broadcaster_user_id": "12345",
			"started_at":          "2023-05-01T10:00:00Z",
		},
	})
	return &domain.Notification{
		MessageID:       messageID,
		MessageType:     domain.MessageNotification,
		SubscriptionID:  "sub-1",
		EventType:       "stream.online",
		Payload:         body,
		Outcome:         domain.OutcomeAccepted,
		DispatchPending: true,
		ReceivedAt:      time.Date(2023, 5, 1, 10, 0, 5, 0, time.UTC),
	}
}

func TestSweeper_RecoversDeferredDispatch(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.InsertWithEvent(context.Background(), pendingNotification("msg-1"), nil))

	publisher := &fakePublisher{}
	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(store, NewNormalizer(), publisher, clock, 30*time.Second, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sweeper.Run(ctx) }()

	// The startup sweep publishes without any tick.
	assert.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, store.get("msg-1").DispatchPending)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestSweeper_SweepsOnTick(t *testing.T) {
	store := newFakeStore()
	publisher := &fakePublisher{}
	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(store, NewNormalizer(), publisher, clock, 30*time.Second, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sweeper.Run(ctx) }()

	// Let the startup sweep pass over an empty store, then add a row.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	require.NoError(t, store.InsertWithEvent(context.Background(), pendingNotification("msg-2"), nil))

	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSweeper_RecordsFailedAttempts(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.InsertWithEvent(context.Background(), pendingNotification("msg-1"), nil))

	publisher := &fakePublisher{failures: 1000}
	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(store, NewNormalizer(), publisher, clock, 30*time.Second, 5)

	sweeper.sweep(context.Background())
	assert.Equal(t, 1, store.get("msg-1").DispatchAttempts)

	sweeper.sweep(context.Background())
	assert.Equal(t, 2, store.get("msg-1").DispatchAttempts)
	assert.True(t, store.get("msg-1").DispatchPending)
}

func TestSweeper_SkipsExhaustedNotifications(t *testing.T) {
	store := newFakeStore()
	exhausted := pendingNotification("msg-1")
	exhausted.DispatchAttempts = 5
	require.NoError(t, store.InsertWithEvent(context.Background(), exhausted, nil))

	publisher := &fakePublisher{}
	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(store, NewNormalizer(), publisher, clock, 30*time.Second, 5)

	sweeper.sweep(context.Background())
	assert.Equal(t, 0, publisher.count())
}

func TestSweeper_AbandonsCorruptPayload(t *testing.T) {
	store := newFakeStore()
	corrupt := pendingNotification("msg-1")
	corrupt.Payload = json.RawMessage(`{{{`)
	require.NoError(t, store.InsertWithEvent(context.Background(), corrupt, nil))

	publisher := &fakePublisher{}
	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(store, NewNormalizer(), publisher, clock, 30*time.Second, 5)

	sweeper.sweep(context.Background())

	row := store.get("msg-1")
	assert.False(t, row.DispatchPending, "abandoned rows must leave the sweep set")
	assert.Equal(t, domain.OutcomeFailed, row.Outcome)
	assert.Equal(t, 0, publisher.count())
}
