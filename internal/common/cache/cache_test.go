package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRedis struct {
	values map[string]string
	ttls   map[string]time.Duration
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryRedis) Set(_ context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	m.values[key] = value.(string)
	m.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryRedis) GetDel(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	delete(m.values, key)
	return redis.NewStringResult(v, nil)
}

type doc struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

func TestCacheSetStoresPrefixedJSON(t *testing.T) {
	ctx := context.Background()
	rdb := newMemoryRedis()
	c := NewCacheService(rdb, "bot:")

	require.NoError(t, c.Set(ctx, "k", doc{UserID: "u1", Count: 3}, time.Minute))
	assert.Equal(t, time.Minute, rdb.ttls["bot:k"])
	assert.JSONEq(t, `{"user_id":"u1","count":3}`, rdb.values["bot:k"])

	var got doc
	require.NoError(t, c.Take(ctx, "k", &got))
	assert.Equal(t, doc{UserID: "u1", Count: 3}, got)
	assert.Empty(t, rdb.values)
}

func TestCacheTake(t *testing.T) {
	ctx := context.Background()
	c := NewCacheService(newMemoryRedis(), "")

	require.NoError(t, c.Set(ctx, "once", doc{UserID: "u2"}, 0))

	var got doc
	require.NoError(t, c.Take(ctx, "once", &got))
	assert.Equal(t, "u2", got.UserID)
	assert.ErrorIs(t, c.Take(ctx, "once", &got), ErrMiss)
}
