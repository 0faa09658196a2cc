package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const defaultOAuthURL = "https://id.twitch.tv/oauth2/token"

// tokenStore caches the app access token across processes so the bot and
// this service do not race each other through the client credentials grant.
type tokenStore interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string, expiresIn time.Duration) error
}

// AppTokenSource hands out a valid app access token, preferring the shared
// cache and falling back to the client credentials grant.
type AppTokenSource struct {
	clientID     string
	clientSecret string
	oauthURL     string // configurable for testing
	cache        tokenStore
	httpClient   *http.Client

	mu sync.Mutex
}

func NewAppTokenSource(clientID, clientSecret string, cache tokenStore) *AppTokenSource {
	return &AppTokenSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		oauthURL:     defaultOAuthURL,
		cache:        cache,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Token returns a cached app access token or fetches a fresh one. The mutex
// keeps concurrent callers from issuing parallel grants within one process.
func (s *AppTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok, err := s.cache.Get(ctx)
	if err == nil && ok {
		return token, nil
	}

	token, expiresIn, err := s.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	if err := s.cache.Set(ctx, token, expiresIn); err != nil {
		// Cache failure is not fatal, the token itself is still good.
		return token, nil
	}
	return token, nil
}

func (s *AppTokenSource) fetchToken(ctx context.Context) (string, time.Duration, error) {
	data := url.Values{}
	data.Set("client_id", s.clientID)
	data.Set("client_secret", s.clientSecret)
	data.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.oauthURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}

	return result.AccessToken, time.Duration(result.ExpiresIn) * time.Second, nil
}
