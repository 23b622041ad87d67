package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemoryStore is a single-instance counter store. Correct only when one
// server process handles all traffic; multi-instance deployments need
// the Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]windowEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]windowEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry, ok := s.entries[key]
	if !ok || now.Sub(entry.windowStart) > window {
		entry = windowEntry{count: 1, windowStart: now}
	} else {
		entry.count++
	}
	s.entries[key] = entry

	remaining := window - now.Sub(entry.windowStart)
	if remaining < 0 {
		remaining = 0
	}
	return entry.count, remaining, nil
}

// RedisStore shares counters across server instances. The window is
// enforced through key expiry: the first increment in a window sets the
// TTL, later ones inherit it.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "ratelimit:"}, nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	redisKey := s.prefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		return int(count), window, nil
	}

	ttl, err := s.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), ttl, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
