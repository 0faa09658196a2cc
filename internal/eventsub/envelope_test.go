package eventsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("notification", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{
			"subscription": {"id": "sub-1", "type": "stream.online", "version": "1", "status": "enabled", "condition": {"broadcaster_user_id": "12345"}},
			"event": {"broadcaster_user_id": "12345"}
		}`))
		require.NoError(t, err)
		assert.Equal(t, "sub-1", env.Subscription.ID)
		assert.Equal(t, "stream.online", env.Subscription.Type)
		assert.Equal(t, "12345", env.Subscription.Condition["broadcaster_user_id"])
		assert.NotEmpty(t, env.Event)
	})

	t.Run("verification challenge", func(t *testing.T) {
		env, err := ParseEnvelope([]byte(`{
			"subscription": {"id": "sub-1", "type": "stream.online"},
			"challenge": "abc123"
		}`))
		require.NoError(t, err)
		assert.Equal(t, "abc123", env.Challenge)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{not json`))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})

	t.Run("missing subscription descriptor", func(t *testing.T) {
		_, err := ParseEnvelope([]byte(`{"event": {"broadcaster_user_id": "12345"}}`))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)

		_, err = ParseEnvelope([]byte(`{"subscription": {"id": "sub-1"}}`))
		assert.ErrorIs(t, err, domain.ErrMalformedPayload)
	})
}
