package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const tokenKey = "twitch:access_token"

// tokenTTLSafety is subtracted from the token lifetime so a token read from
// the cache never expires mid-request.
const tokenTTLSafety = 5 * time.Second

// TokenCache shares the Twitch app access token across processes. The bot
// process reads the same key, so only one client-credentials exchange happens
// per token lifetime.
type TokenCache struct {
	rdb *goredis.Client
}

func NewTokenCache(rdb *goredis.Client) *TokenCache {
	return &TokenCache{rdb: rdb}
}

// Get returns the cached token, or ("", false, nil) when absent.
func (c *TokenCache) Get(ctx context.Context) (string, bool, error) {
	token, err := c.rdb.Get(ctx, tokenKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached token: %w", err)
	}
	return token, true, nil
}

// Set stores the token for its remaining lifetime minus a safety margin.
func (c *TokenCache) Set(ctx context.Context, token string, expiresIn time.Duration) error {
	ttl := expiresIn - tokenTTLSafety
	if ttl <= 0 {
		return nil
	}
	if err := c.rdb.Set(ctx, tokenKey, token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}
