package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/mitsuaky/felpsbot-backend/internal/config"
	"github.com/mitsuaky/felpsbot-backend/internal/database"
	"github.com/mitsuaky/felpsbot-backend/internal/eventsub"
	"github.com/mitsuaky/felpsbot-backend/internal/logging"
	"github.com/mitsuaky/felpsbot-backend/internal/redis"
	"github.com/mitsuaky/felpsbot-backend/internal/server"
	"github.com/mitsuaky/felpsbot-backend/internal/twitch"
)

const shutdownTimeout = 10 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrationsWithLock(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupSubscriptions(cfg *config.Config, manager *twitch.SubscriptionManager) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	desired := twitch.DesiredSubscriptions(cfg.BroadcasterUserID)
	if err := manager.EnsureSubscriptions(ctx, desired); err != nil {
		// Partial failure is survivable: already-established subscriptions
		// keep delivering while the operator investigates.
		slog.Error("Subscription reconciliation incomplete", "error", err)
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	defer func() { _ = redisClient.Close() }()

	subscriptionRepo := database.NewSubscriptionRepo(pool)
	notificationStore := database.NewNotificationRepo(pool)
	dedupCache := redis.NewDedupCache(redisClient, cfg.DedupTTL)
	publisher := redis.NewBusPublisher(redisClient, cfg.EventBusChannel)

	secrets := eventsub.NewCachingSecretSource(subscriptionRepo, cfg.WebhookSecret, cfg.SecretCacheTTL, clock)
	verifier := eventsub.NewVerifier(secrets, cfg.StaleWindow, clock)
	normalizer := eventsub.NewNormalizer()
	pipeline := eventsub.NewPipeline(dedupCache, notificationStore, subscriptionRepo, normalizer, publisher)
	sweeper := eventsub.NewSweeper(notificationStore, normalizer, publisher, clock, cfg.SweepInterval, cfg.MaxDispatchTries)

	twitchClient, err := twitch.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}
	manager := twitch.NewSubscriptionManager(twitchClient, subscriptionRepo, cfg.WebhookCallbackURL, clock)
	setupSubscriptions(cfg, manager)

	tokenCache := redis.NewTokenCache(redisClient)
	tokens := twitch.NewAppTokenSource(cfg.TwitchClientID, cfg.TwitchClientSecret, tokenCache)
	channels := twitch.NewChannelFetcher(cfg.TwitchClientID, tokens)

	srv := server.NewServer(cfg, verifier, pipeline, notificationStore, channels, pool, redisClient, clock)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		slog.Info("Server starting", "port", cfg.Port)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return sweeper.Run(ctx)
	})

	group.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
