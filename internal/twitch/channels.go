package twitch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultHelixURL = "https://api.twitch.tv/helix"

// ChannelInfo is the subset of Helix channel information the bot surfaces.
type ChannelInfo struct {
	BroadcasterID       string `json:"broadcaster_id"`
	BroadcasterLogin    string `json:"broadcaster_login"`
	BroadcasterName     string `json:"broadcaster_name"`
	BroadcasterLanguage string `json:"broadcaster_language"`
	GameID              string `json:"game_id"`
	GameName            string `json:"game_name"`
	Title               string `json:"title"`
}

// ChannelFetcher queries Helix channel information with the shared app token.
type ChannelFetcher struct {
	clientID   string
	tokens     *AppTokenSource
	helixURL   string // configurable for testing
	httpClient *http.Client
}

func NewChannelFetcher(clientID string, tokens *AppTokenSource) *ChannelFetcher {
	return &ChannelFetcher{
		clientID:   clientID,
		tokens:     tokens,
		helixURL:   defaultHelixURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchChannels returns channel information for the given broadcaster IDs.
// Helix caps one request at 100 IDs; callers here never come close.
func (f *ChannelFetcher) FetchChannels(ctx context.Context, broadcasterIDs []string) ([]ChannelInfo, error) {
	if len(broadcasterIDs) == 0 {
		return nil, nil
	}

	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get app token: %w", err)
	}

	query := url.Values{}
	for _, id := range broadcasterIDs {
		query.Add("broadcaster_id", id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.helixURL+"/channels?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build channels request: %w", err)
	}
	req.Header.Set("Client-Id", f.clientID)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channels request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read channels response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channels request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []ChannelInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode channels response: %w", err)
	}
	return result.Data, nil
}
