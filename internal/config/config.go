package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	BroadcasterUserID  string `env:"BROADCASTER_USER_ID"`

	// WebhookCallbackURL is the public URL Twitch delivers callbacks to.
	// WebhookSecret is the fallback HMAC secret used when a callback arrives
	// before its subscription row (with a per-subscription secret) is visible.
	WebhookCallbackURL string `env:"WEBHOOK_CALLBACK_URL"`
	WebhookSecret      string `env:"WEBHOOK_SECRET"`

	// EventBusChannel is the Redis Pub/Sub channel the Discord bot consumes.
	EventBusChannel string `env:"EVENT_BUS_CHANNEL" default:"felpsbot:events"`

	StaleWindow      time.Duration `env:"MESSAGE_STALE_WINDOW" default:"10m"`
	DedupTTL         time.Duration `env:"DEDUP_TTL" default:"24h"`
	SecretCacheTTL   time.Duration `env:"SECRET_CACHE_TTL" default:"30s"`
	SweepInterval    time.Duration `env:"DISPATCH_SWEEP_INTERVAL" default:"30s"`
	MaxDispatchTries int           `env:"MAX_DISPATCH_ATTEMPTS" default:"5"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"REDIS_URL":            cfg.RedisURL,
		"TWITCH_CLIENT_ID":     cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET": cfg.TwitchClientSecret,
		"WEBHOOK_CALLBACK_URL": cfg.WebhookCallbackURL,
		"WEBHOOK_SECRET":       cfg.WebhookSecret,
		"BROADCASTER_USER_ID":  cfg.BroadcasterUserID,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	// Twitch rejects webhook secrets outside this range.
	if len(cfg.WebhookSecret) < 10 || len(cfg.WebhookSecret) > 100 {
		return errors.New("WEBHOOK_SECRET must be between 10 and 100 characters")
	}

	if cfg.StaleWindow <= 0 {
		return errors.New("MESSAGE_STALE_WINDOW must be positive")
	}
	if cfg.DedupTTL < cfg.StaleWindow {
		return errors.New("DEDUP_TTL must be at least MESSAGE_STALE_WINDOW")
	}
	if cfg.MaxDispatchTries < 1 {
		return errors.New("MAX_DISPATCH_ATTEMPTS must be at least 1")
	}

	return nil
}
