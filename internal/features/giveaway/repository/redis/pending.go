package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"community-bot/internal/common/cache"
	"community-bot/internal/features/giveaway/service"
)

const pendingPrefix = "giveaway:pending_auth:"

// PendingStore keeps pending authorizations in Redis so the OAuth callback
// may be served by another process. Keys expire with the record.
type PendingStore struct {
	cache *cache.CacheService
	now   func() time.Time
}

func NewPendingStore(client cache.RedisClient) *PendingStore {
	return &PendingStore{
		cache: cache.NewCacheService(client, pendingPrefix),
		now:   time.Now,
	}
}

func (s *PendingStore) Put(ctx context.Context, p service.PendingAuthorization) error {
	ttl := p.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, p.UserID, p, ttl); err != nil {
		return fmt.Errorf("failed to store pending authorization of %s: %w", p.UserID, err)
	}
	return nil
}

func (s *PendingStore) Take(ctx context.Context, userID string) (*service.PendingAuthorization, error) {
	var p service.PendingAuthorization
	err := s.cache.Take(ctx, userID, &p)
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pending authorization of %s: %w", userID, err)
	}
	if !s.now().Before(p.ExpiresAt) {
		return nil, nil
	}
	return &p, nil
}
