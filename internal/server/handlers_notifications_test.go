package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

func seedNotification(t *testing.T, f *webhookFixture, messageID string, outcome domain.Outcome) {
	t.Helper()
	require.NoError(t, f.store.InsertWithEvent(context.Background(), &domain.Notification{
		MessageID:      messageID,
		MessageType:    domain.MessageNotification,
		SubscriptionID: "sub-1",
		EventType:      "stream.online",
		Payload:        json.RawMessage(`{}`),
		Outcome:        outcome,
		ReceivedAt:     time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC),
	}, nil))
}

func TestHandleListNotifications(t *testing.T) {
	f := newWebhookFixture(t)
	seedNotification(t, f, "msg-1", domain.OutcomeAccepted)
	seedNotification(t, f, "msg-2", domain.OutcomeFailed)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Notifications []notificationView `json:"notifications"`
		Count         int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestHandleListNotifications_InvalidParams(t *testing.T) {
	f := newWebhookFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications?since=yesterday", nil)
	rec := httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/notifications?limit=100000", nil)
	rec = httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/notifications?limit=0", nil)
	rec = httptest.NewRecorder()
	f.server.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
