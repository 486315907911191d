package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// RedisClient is the subset of go-redis commands the cache relies on.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// CacheService stores JSON documents in Redis.
type CacheService struct {
	redisClient RedisClient
	prefix      string
}

func NewCacheService(redisClient RedisClient, prefix string) *CacheService {
	return &CacheService{
		redisClient: redisClient,
		prefix:      prefix,
	}
}

func (c *CacheService) key(k string) string {
	return c.prefix + k
}

func (c *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.redisClient.Set(ctx, c.key(key), string(data), ttl).Err()
}

// Take reads and removes key in one round trip.
func (c *CacheService) Take(ctx context.Context, key string, dest interface{}) error {
	data, err := c.redisClient.GetDel(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}
