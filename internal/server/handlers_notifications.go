package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
	apperrors "github.com/mitsuaky/felpsbot-backend/internal/errors"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 500
)

type notificationView struct {
	MessageID        string          `json:"message_id"`
	MessageType      string          `json:"message_type"`
	SubscriptionID   string          `json:"subscription_id"`
	EventType        string          `json:"event_type"`
	Payload          json.RawMessage `json:"payload"`
	Outcome          string          `json:"outcome"`
	DispatchPending  bool            `json:"dispatch_pending"`
	DispatchAttempts int             `json:"dispatch_attempts"`
	ReceivedAt       time.Time       `json:"received_at"`
}

// handleListNotifications is the operator inspection endpoint: recent
// notifications, newest first, filterable by outcome, type, and subscription.
func (s *Server) handleListNotifications(c echo.Context) error {
	filter := domain.NotificationFilter{
		Outcome:        domain.Outcome(c.QueryParam("outcome")),
		MessageType:    domain.MessageType(c.QueryParam("message_type")),
		SubscriptionID: c.QueryParam("subscription_id"),
		EventType:      c.QueryParam("event_type"),
		Limit:          defaultQueryLimit,
	}

	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return apperrors.ValidationError("invalid since parameter, expected RFC 3339")
		}
		filter.Since = since
	}

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxQueryLimit {
			return apperrors.ValidationError("invalid limit parameter")
		}
		filter.Limit = limit
	}

	notifications, err := s.store.Query(c.Request().Context(), filter)
	if err != nil {
		return apperrors.InternalError("failed to query notifications", err)
	}

	views := make([]notificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, notificationView{
			MessageID:        n.MessageID,
			MessageType:      string(n.MessageType),
			SubscriptionID:   n.SubscriptionID,
			EventType:        n.EventType,
			Payload:          n.Payload,
			Outcome:          string(n.Outcome),
			DispatchPending:  n.DispatchPending,
			DispatchAttempts: n.DispatchAttempts,
			ReceivedAt:       n.ReceivedAt,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"notifications": views,
		"count":         len(views),
	})
}
