package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitsuaky/felpsbot-backend/internal/twitch"
)

type fakeChannelSource struct {
	channels []twitch.ChannelInfo
	err      error
	gotIDs   []string
}

func (f *fakeChannelSource) FetchChannels(_ context.Context, broadcasterIDs []string) ([]twitch.ChannelInfo, error) {
	f.gotIDs = broadcasterIDs
	return f.channels, f.err
}

func newChannelsServer(t *testing.T, source *fakeChannelSource) *Server {
	t.Helper()
	f := newWebhookFixture(t)
	f.server.channels = source
	return f.server
}

func TestHandleGetChannels(t *testing.T) {
	source := &fakeChannelSource{channels: []twitch.ChannelInfo{
		{BroadcasterID: "12345", BroadcasterLogin: "felps", GameName: "Just Chatting", Title: "oi"},
	}}
	srv := newChannelsServer(t, source)

	req := httptest.NewRequest(http.MethodGet, "/api/channels?broadcaster_id=12345&broadcaster_id=67890", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"12345", "67890"}, source.gotIDs)

	var resp struct {
		Channels []twitch.ChannelInfo `json:"channels"`
		Count    int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "felps", resp.Channels[0].BroadcasterLogin)
}

func TestHandleGetChannels_RequiresBroadcasterID(t *testing.T) {
	srv := newChannelsServer(t, &fakeChannelSource{})

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetChannels_TooManyIDs(t *testing.T) {
	srv := newChannelsServer(t, &fakeChannelSource{})

	params := make([]string, 0, 101)
	for i := 0; i < 101; i++ {
		params = append(params, "broadcaster_id=1")
	}
	req := httptest.NewRequest(http.MethodGet, "/api/channels?"+strings.Join(params, "&"), nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetChannels_UpstreamFailure(t *testing.T) {
	srv := newChannelsServer(t, &fakeChannelSource{err: errors.New("helix unavailable")})

	req := httptest.NewRequest(http.MethodGet, "/api/channels?broadcaster_id=12345", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
