package dashboards

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonstream-to/moonlive/pkg/logging"
)

func TestMemoryStore_TTL(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", sample, 30*time.Second))

	list, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sample, list)

	now = now.Add(29 * time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = s.Get(ctx, "k")
	assert.False(t, ok, "entry expires at exactly ttl")
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_SetSweepsExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "old", sample, time.Second))
	now = now.Add(time.Minute)
	require.NoError(t, s.Set(ctx, "new", sample, time.Second))

	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", sample, time.Minute))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "missing"))

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRedisStore runs against a real server when MOONLIVE_TEST_REDIS_ADDR
// is set, for example localhost:6379.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MOONLIVE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MOONLIVE_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client)
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	key := Key("test-" + t.Name())
	t.Cleanup(func() { s.Delete(ctx, key) })

	_, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, key, sample, time.Minute))
	list, ok, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "One", list[0].Name())
	assert.Equal(t, "2", list[1].ID)

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, s.Delete(ctx, key))
	_, ok, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client)
	ctx := context.Background()

	assert.Error(t, s.Ping(ctx))
	_, ok, err := s.Get(ctx, "k")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, s.Set(ctx, "k", sample, time.Minute))
}

func TestCache_StoreFailureIsAMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })

	f := &fakeFetcher{list: sample}
	c := NewCache(f, NewRedisStore(client), time.Minute, WithCacheLogger(logging.NopLogger{}))

	list, err := c.List(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, sample, list)
	assert.EqualValues(t, 1, f.calls.Load())
}
