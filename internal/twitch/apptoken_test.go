package twitch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memTokenStore is an in-memory tokenStore standing in for the Redis cache.
type memTokenStore struct {
	mu    sync.Mutex
	token string
	ok    bool
	sets  int
}

func (m *memTokenStore) Get(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.ok, nil
}

func (m *memTokenStore) Set(_ context.Context, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.ok = true
	m.sets++
	return nil
}

func newOAuthServer(t *testing.T, grants *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "client-id", r.FormValue("client_id"))
		*grants++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "fresh-token", "expires_in": 3600, "token_type": "bearer"}`))
	}))
}

func TestAppTokenSource_FetchesAndCaches(t *testing.T) {
	grants := 0
	server := newOAuthServer(t, &grants)
	defer server.Close()

	store := &memTokenStore{}
	source := NewAppTokenSource("client-id", "client-secret", store)
	source.oauthURL = server.URL

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, grants)
	assert.Equal(t, 1, store.sets)

	// Second call hits the cache, no second grant.
	token, err = source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, grants)
}

func TestAppTokenSource_UsesSharedCacheFirst(t *testing.T) {
	grants := 0
	server := newOAuthServer(t, &grants)
	defer server.Close()

	store := &memTokenStore{token: "bot-fetched-token", ok: true}
	source := NewAppTokenSource("client-id", "client-secret", store)
	source.oauthURL = server.URL

	token, err := source.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bot-fetched-token", token)
	assert.Equal(t, 0, grants, "a cached token must not trigger a grant")
}

func TestAppTokenSource_GrantFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"status": 403, "message": "invalid client secret"}`))
	}))
	defer server.Close()

	source := NewAppTokenSource("client-id", "wrong-secret", &memTokenStore{})
	source.oauthURL = server.URL

	_, err := source.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
