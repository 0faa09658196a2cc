package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DedupCache is the fast layer of the two-layer deduplication. SETNX gives
// the atomic check-and-set: for concurrent callbacks with the same message ID
// exactly one caller wins the set and observes seen=false. The TTL must
// exceed Twitch's maximum redelivery window so retries of an already-accepted
// message keep hitting the cache instead of the store.
type DedupCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewDedupCache(rdb *goredis.Client, ttl time.Duration) *DedupCache {
	return &DedupCache{rdb: rdb, ttl: ttl}
}

// SeenOrMark reports whether messageID was already recorded, marking it with
// the configured expiry if not. The two results of the race are "seen" for
// the loser and "marked" for the winner; there is no third state.
func (d *DedupCache) SeenOrMark(ctx context.Context, messageID string) (bool, error) {
	set, err := d.rdb.SetNX(ctx, dedupKey(messageID), "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedup mark: %w", err)
	}
	return !set, nil
}

// Unmark removes the dedup mark. Called when the durable write failed after
// the mark was placed, so Twitch's redelivery of the same message is not
// short-circuited as a duplicate of something never stored.
func (d *DedupCache) Unmark(ctx context.Context, messageID string) error {
	if err := d.rdb.Del(ctx, dedupKey(messageID)).Err(); err != nil {
		return fmt.Errorf("failed to remove dedup mark: %w", err)
	}
	return nil
}

func dedupKey(messageID string) string {
	return "eventsub:dedup:" + messageID
}
