package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
	apperrors "github.com/mitsuaky/felpsbot-backend/internal/errors"
	"github.com/mitsuaky/felpsbot-backend/internal/eventsub"
	"github.com/mitsuaky/felpsbot-backend/internal/metrics"
)

const (
	headerMessageID        = "Twitch-Eventsub-Message-Id"
	headerMessageType      = "Twitch-Eventsub-Message-Type"
	headerMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	headerSignature        = "Twitch-Eventsub-Message-Signature"
	headerRetry            = "Twitch-Eventsub-Message-Retry"

	messageTypeNotification = "notification"
	messageTypeVerification = "webhook_callback_verification"
	messageTypeRevocation   = "revocation"
)

// maxCallbackBodyBytes mirrors the echo body limit; enforced again here so a
// handler test without the middleware stack still behaves.
const maxCallbackBodyBytes = 1 << 20

// handleCallback is the EventSub webhook endpoint. Status codes are part of
// the contract with Twitch: 2xx acknowledges (including duplicates), 403
// rejects authentication failures without persisting, 400 rejects bodies we
// cannot parse, and 5xx asks Twitch to redeliver.
func (s *Server) handleCallback(c echo.Context) error {
	start := s.clock.Now()

	messageID := c.Request().Header.Get(headerMessageID)
	messageType := c.Request().Header.Get(headerMessageType)
	timestamp := c.Request().Header.Get(headerMessageTimestamp)
	signature := c.Request().Header.Get(headerSignature)

	if messageID == "" || messageType == "" || timestamp == "" || signature == "" {
		metrics.VerificationFailuresTotal.WithLabelValues("missing_headers").Inc()
		return apperrors.ForbiddenError("missing eventsub headers")
	}

	if retry := c.Request().Header.Get(headerRetry); retry != "" && retry != "0" {
		metrics.RedeliveriesTotal.Inc()
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBodyBytes))
	if err != nil {
		return apperrors.InternalError("failed to read request body", err)
	}

	env, err := eventsub.ParseEnvelope(body)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(messageType, string(domain.OutcomeRejected)).Inc()
		return apperrors.ValidationError("malformed eventsub payload").WithContext("message_id", messageID)
	}

	if err := s.verifier.Verify(c.Request().Context(), env.Subscription.ID, messageID, timestamp, signature, body); err != nil {
		reason := "signature_mismatch"
		if errors.Is(err, domain.ErrTimestampStale) {
			reason = "stale_timestamp"
		}
		metrics.VerificationFailuresTotal.WithLabelValues(reason).Inc()
		metrics.CallbacksTotal.WithLabelValues(messageType, string(domain.OutcomeRejected)).Inc()
		slog.WarnContext(c.Request().Context(), "Rejected eventsub callback",
			"message_id", messageID, "reason", reason, "subscription_id", env.Subscription.ID)
		return apperrors.ForbiddenError("callback verification failed")
	}

	receivedAt, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		// Verify already parsed this; unreachable unless headers changed mid-flight.
		return apperrors.ValidationError("unparseable message timestamp")
	}

	in := &eventsub.Inbound{
		MessageID:        messageID,
		SubscriptionID:   env.Subscription.ID,
		SubscriptionType: env.Subscription.Type,
		Timestamp:        receivedAt,
		Body:             body,
		Event:            env.Event,
	}

	defer func() {
		metrics.PipelineDuration.WithLabelValues(messageType).Observe(s.clock.Since(start).Seconds())
	}()

	switch messageType {
	case messageTypeVerification:
		return s.handleVerificationMessage(c, env)
	case messageTypeRevocation:
		return s.handleRevocationMessage(c, in, env)
	case messageTypeNotification:
		return s.handleNotificationMessage(c, in)
	default:
		slog.WarnContext(c.Request().Context(), "Unknown eventsub message type",
			"message_id", messageID, "message_type", messageType)
		metrics.CallbacksTotal.WithLabelValues(messageType, string(domain.OutcomeRejected)).Inc()
		return apperrors.ValidationError("unknown message type")
	}
}

func (s *Server) handleVerificationMessage(c echo.Context, env *eventsub.Envelope) error {
	if env.Challenge == "" {
		metrics.CallbacksTotal.WithLabelValues(messageTypeVerification, string(domain.OutcomeRejected)).Inc()
		return apperrors.ValidationError("verification message without challenge")
	}

	slog.InfoContext(c.Request().Context(), "EventSub callback verified",
		"subscription_id", env.Subscription.ID, "type", env.Subscription.Type)
	metrics.CallbacksTotal.WithLabelValues(messageTypeVerification, string(domain.OutcomeAccepted)).Inc()

	s.pipeline.HandleVerification(c.Request().Context(), env.Subscription.ID)

	// Twitch matches the response body byte for byte against the challenge.
	return c.Blob(http.StatusOK, echo.MIMETextPlain, []byte(env.Challenge))
}

func (s *Server) handleRevocationMessage(c echo.Context, in *eventsub.Inbound, env *eventsub.Envelope) error {
	if err := s.pipeline.HandleRevocation(c.Request().Context(), in, env.Subscription.Status); err != nil {
		metrics.CallbacksTotal.WithLabelValues(messageTypeRevocation, string(domain.OutcomeFailed)).Inc()
		return apperrors.InternalError("failed to process revocation", err)
	}
	metrics.CallbacksTotal.WithLabelValues(messageTypeRevocation, string(domain.OutcomeAccepted)).Inc()
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleNotificationMessage(c echo.Context, in *eventsub.Inbound) error {
	outcome, err := s.pipeline.ProcessNotification(c.Request().Context(), in)
	if err != nil {
		metrics.CallbacksTotal.WithLabelValues(messageTypeNotification, string(domain.OutcomeFailed)).Inc()
		return apperrors.InternalError("failed to process notification", err)
	}
	metrics.CallbacksTotal.WithLabelValues(messageTypeNotification, string(outcome)).Inc()
	return c.NoContent(http.StatusOK)
}
