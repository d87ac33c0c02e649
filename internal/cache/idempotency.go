package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInProgress means another request holds the same key and has not
// finished yet.
var ErrInProgress = errors.New("a request with this idempotency key is still in progress")

const pending = "pending"

// PendingTTL bounds how long an unfinished request holds its key, so a lost
// Complete or Release frees it again quickly. Completed keys live for the
// configured TTL.
const PendingTTL = 2 * time.Minute

func pendingTTL(ttl time.Duration) time.Duration {
	return min(ttl, PendingTTL)
}

// Idempotency remembers which order a client-supplied key produced.
//
// Reserve returns "" when the caller now owns key, the stored order id when an
// earlier request completed, or ErrInProgress. The owner must call Complete
// on success or Release on failure.
type Idempotency interface {
	Reserve(ctx context.Context, key string) (string, error)
	Complete(ctx context.Context, key, orderID string) error
	Release(ctx context.Context, key string) error
}

type RedisIdempotency struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func idemKey(key string) string {
	return "idempotency:checkout:" + key
}

func (r *RedisIdempotency) Reserve(ctx context.Context, key string) (string, error) {
	k := idemKey(key)
	// A second round covers a key that expired between SETNX and GET.
	for range 2 {
		ok, err := r.client.SetNX(ctx, k, pending, pendingTTL(r.ttl)).Result()
		if err != nil {
			return "", fmt.Errorf("reserve %s: %w", k, err)
		}
		if ok {
			return "", nil
		}

		v, err := r.client.Get(ctx, k).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read %s: %w", k, err)
		}
		if v == pending {
			return "", ErrInProgress
		}
		return v, nil
	}
	return "", ErrInProgress
}

func (r *RedisIdempotency) Complete(ctx context.Context, key, orderID string) error {
	if err := r.client.Set(ctx, idemKey(key), orderID, r.ttl).Err(); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idemKey(key)).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

type entry struct {
	value   string
	expires time.Time
}

type MemoryIdempotency struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewMemoryIdempotency(ttl time.Duration) *MemoryIdempotency {
	return &MemoryIdempotency{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (m *MemoryIdempotency) Reserve(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.value == pending {
			return "", ErrInProgress
		}
		return e.value, nil
	}
	m.entries[key] = entry{value: pending, expires: now.Add(pendingTTL(m.ttl))}
	return "", nil
}

func (m *MemoryIdempotency) Complete(_ context.Context, key, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: orderID, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *MemoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
