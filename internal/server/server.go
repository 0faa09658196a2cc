package server

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/mitsuaky/felpsbot-backend/internal/config"
	"github.com/mitsuaky/felpsbot-backend/internal/domain"
	apperrors "github.com/mitsuaky/felpsbot-backend/internal/errors"
	"github.com/mitsuaky/felpsbot-backend/internal/eventsub"
	"github.com/mitsuaky/felpsbot-backend/internal/metrics"
	"github.com/mitsuaky/felpsbot-backend/internal/twitch"
)

// ChannelSource looks up channel metadata for the inspection API.
type ChannelSource interface {
	FetchChannels(ctx context.Context, broadcasterIDs []string) ([]twitch.ChannelInfo, error)
}

// maxCallbackBodySize bounds the webhook body; EventSub payloads are a few KB.
const maxCallbackBodySize = "1M"

type Server struct {
	echo        *echo.Echo
	config      *config.Config
	verifier    *eventsub.Verifier
	pipeline    *eventsub.Pipeline
	store       domain.NotificationStore
	channels    ChannelSource
	db          *pgxpool.Pool
	redisClient *goredis.Client
	clock       clockwork.Clock
	startTime   time.Time
}

func NewServer(cfg *config.Config, verifier *eventsub.Verifier, pipeline *eventsub.Pipeline, store domain.NotificationStore, channels ChannelSource, db *pgxpool.Pool, redisClient *goredis.Client, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(correlationMiddleware())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxCallbackBodySize))
	e.Use(metrics.HTTPMiddleware())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:        e,
		config:      cfg,
		verifier:    verifier,
		pipeline:    pipeline,
		store:       store,
		channels:    channels,
		db:          db,
		redisClient: redisClient,
		clock:       clock,
		startTime:   clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
