package dashboards

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// KeyPrefix starts every cache key. Keys never contain the raw token.
const KeyPrefix = "moonlive:dashboards:"

// Key derives the cache key for a token.
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// Store holds dashboard lists by key until they expire.
type Store interface {
	Get(ctx context.Context, key string) ([]Dashboard, bool, error)
	Set(ctx context.Context, key string, list []Dashboard, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type memoryEntry struct {
	list    []Dashboard
	expires time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	entries map[string]memoryEntry
	now     func() time.Time
	mu      sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]Dashboard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false, nil
	}
	return e.list, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, list []Dashboard, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryEntry{list: list, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Len counts entries, expired ones included until they are swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// RedisStore shares cached lists between server instances. Values are
// MessagePack-encoded.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore wraps a connected client.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]Dashboard, bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var list []Dashboard
	if err := msgpack.Unmarshal(data, &list); err != nil {
		return nil, false, fmt.Errorf("decode cached dashboards: %w", err)
	}
	return list, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, list []Dashboard, ttl time.Duration) error {
	data, err := msgpack.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode dashboards: %w", err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the connection. It doubles as a health check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
