package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	for i := range 2 {
		d, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, _ := l.Allow(context.Background(), "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Minute, d.RetryAfter)

	other, _ := l.Allow(context.Background(), "5.6.7.8")
	assert.True(t, other.Allowed)

	now = now.Add(time.Minute)
	d, _ = l.Allow(context.Background(), "1.2.3.4")
	assert.True(t, d.Allowed)
}

func TestMemoryIdempotency(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryIdempotency(time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	id, err := m.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = m.Reserve(ctx, "k1")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, m.Complete(ctx, "k1", "order-1"))
	id, err = m.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "order-1", id)

	_, _ = m.Reserve(ctx, "k2")
	require.NoError(t, m.Release(ctx, "k2"))
	id, err = m.Reserve(ctx, "k2")
	require.NoError(t, err)
	assert.Empty(t, id)

	now = now.Add(2 * time.Hour)
	id, err = m.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, id, "expired keys can be reused")
}

func TestMemoryIdempotencyPendingMarkerIsShortLived(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryIdempotency(24 * time.Hour)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Reserve(ctx, "lost")
	require.NoError(t, err)
	_, err = m.Reserve(ctx, "lost")
	assert.ErrorIs(t, err, ErrInProgress)

	// Neither Complete nor Release arrived.
	now = now.Add(PendingTTL)
	id, err := m.Reserve(ctx, "lost")
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, m.Complete(ctx, "lost", "order-7"))
	now = now.Add(23 * time.Hour)
	id, err = m.Reserve(ctx, "lost")
	require.NoError(t, err)
	assert.Equal(t, "order-7", id)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := redisClient(t)
	l := NewRedisLimiter(client, "test", 3, time.Minute)
	key := uuid.NewString()

	for range 3 {
		d, err := l.Allow(context.Background(), key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Positive(t, d.RetryAfter)
}

func TestRedisIdempotency(t *testing.T) {
	client := redisClient(t)
	r := NewRedisIdempotency(client, time.Minute)
	ctx := context.Background()
	key := uuid.NewString()

	id, err := r.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = r.Reserve(ctx, key)
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, r.Complete(ctx, key, "order-9"))
	id, err = r.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "order-9", id)

	require.NoError(t, r.Release(ctx, key))
	id, err = r.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestRedisIdempotencyPendingTTL(t *testing.T) {
	client := redisClient(t)
	r := NewRedisIdempotency(client, 24*time.Hour)
	ctx := context.Background()
	key := uuid.NewString()

	_, err := r.Reserve(ctx, key)
	require.NoError(t, err)
	ttl, err := client.PTTL(ctx, idemKey(key)).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
	assert.LessOrEqual(t, ttl, PendingTTL)

	require.NoError(t, r.Complete(ctx, key, "order-3"))
	ttl, err = client.PTTL(ctx, idemKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, PendingTTL)
}
