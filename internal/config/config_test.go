package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/felpsbot")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("TWITCH_CLIENT_ID", "client-id")
	t.Setenv("TWITCH_CLIENT_SECRET", "client-secret")
	t.Setenv("BROADCASTER_USER_ID", "12345")
	t.Setenv("WEBHOOK_CALLBACK_URL", "https://example.com/eventsub/callback")
	t.Setenv("WEBHOOK_SECRET", "fallback-secret-123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "felpsbot:events", cfg.EventBusChannel)
	assert.Equal(t, 10*time.Minute, cfg.StaleWindow)
	assert.Equal(t, 24*time.Hour, cfg.DedupTTL)
	assert.Equal(t, 30*time.Second, cfg.SecretCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5, cfg.MaxDispatchTries)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9999")
	t.Setenv("EVENT_BUS_CHANNEL", "felpsbot:events:staging")
	t.Setenv("MESSAGE_STALE_WINDOW", "5m")
	t.Setenv("DEDUP_TTL", "48h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "felpsbot:events:staging", cfg.EventBusChannel)
	assert.Equal(t, 5*time.Minute, cfg.StaleWindow)
	assert.Equal(t, 48*time.Hour, cfg.DedupTTL)
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TWITCH_CLIENT_ID", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TWITCH_CLIENT_ID")
}

func TestLoad_SecretLengthBounds(t *testing.T) {
	setRequiredEnv(t)

	t.Setenv("WEBHOOK_SECRET", "short")
	_, err := Load()
	assert.ErrorContains(t, err, "WEBHOOK_SECRET")

	t.Setenv("WEBHOOK_SECRET", strings.Repeat("x", 101))
	_, err = Load()
	assert.ErrorContains(t, err, "WEBHOOK_SECRET")
}

func TestLoad_DedupTTLMustCoverStaleWindow(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MESSAGE_STALE_WINDOW", "1h")
	t.Setenv("DEDUP_TTL", "30m")

	_, err := Load()
	assert.ErrorContains(t, err, "DEDUP_TTL")
}
