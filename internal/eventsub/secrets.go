package eventsub

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mitsuaky/felpsbot-backend/internal/domain"
)

// CachingSecretSource resolves per-subscription webhook secrets through the
// subscription repository with a short-lived snapshot cache, so a secret
// rotation is observed within one TTL without hitting Postgres per callback.
//
// Callbacks for subscriptions not yet visible in the repository (the
// handshake can race the row insert) fall back to the configured global
// secret. A per-subscription secret created moments ago will not match the
// fallback; the provider retries the handshake and succeeds once the row is
// visible.
type CachingSecretSource struct {
	repo           domain.SubscriptionRepository
	fallbackSecret string
	ttl            time.Duration
	clock          clockwork.Clock

	mu    sync.RWMutex
	cache map[string]secretEntry
}

type secretEntry struct {
	secret    string
	fetchedAt time.Time
}

func NewCachingSecretSource(repo domain.SubscriptionRepository, fallbackSecret string, ttl time.Duration, clock clockwork.Clock) *CachingSecretSource {
	return &CachingSecretSource{
		repo:           repo,
		fallbackSecret: fallbackSecret,
		ttl:            ttl,
		clock:          clock,
		cache:          make(map[string]secretEntry),
	}
}

func (s *CachingSecretSource) Secret(ctx context.Context, subscriptionID string) (string, error) {
	now := s.clock.Now()

	s.mu.RLock()
	entry, ok := s.cache[subscriptionID]
	s.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < s.ttl {
		return entry.secret, nil
	}

	sub, err := s.repo.GetByID(ctx, subscriptionID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		// Not cached: the row may land any moment and its secret must win
		// over the fallback as soon as it does.
		return s.fallbackSecret, nil
	}
	if err != nil {
		// Repository unavailable. A stale secret still verifies almost all
		// callbacks; only a rotation inside the outage window loses.
		if ok {
			return entry.secret, nil
		}
		return "", err
	}

	s.mu.Lock()
	s.cache[subscriptionID] = secretEntry{secret: sub.Secret, fetchedAt: now}
	s.mu.Unlock()

	return sub.Secret, nil
}

// Invalidate drops the cached secret for a subscription, forcing the next
// lookup to hit the repository immediately after a rotation.
func (s *CachingSecretSource) Invalidate(subscriptionID string) {
	s.mu.Lock()
	delete(s.cache, subscriptionID)
	s.mu.Unlock()
}
