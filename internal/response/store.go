package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const statsHashKey = "client_response_stats"

// RedisStore keeps stats as JSON values in a Redis hash keyed by client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Get(ctx context.Context, clientKey string) (*ClientResponseStat, error) {
	data, err := s.client.HGet(ctx, statsHashKey, clientKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stat ClientResponseStat
	if err := json.Unmarshal([]byte(data), &stat); err != nil {
		return nil, fmt.Errorf("corrupt response stat for %s: %w", clientKey, err)
	}
	return &stat, nil
}

func (s *RedisStore) Put(ctx context.Context, clientKey string, stat ClientResponseStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, statsHashKey, clientKey, data).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is a process-local Store for tests and single-instance
// deployments without Redis.
type MemoryStore struct {
	mu    sync.RWMutex
	stats map[string]ClientResponseStat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{stats: make(map[string]ClientResponseStat)}
}

func (s *MemoryStore) Get(_ context.Context, clientKey string) (*ClientResponseStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stat, ok := s.stats[clientKey]
	if !ok {
		return nil, nil
	}
	return &stat, nil
}

func (s *MemoryStore) Put(_ context.Context, clientKey string, stat ClientResponseStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[clientKey] = stat
	return nil
}
