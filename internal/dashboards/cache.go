package dashboards

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/moonstream-to/moonlive/pkg/logging"
)

// Fetcher loads the dashboard list for a token. *Client satisfies it.
type Fetcher interface {
	ListDashboards(ctx context.Context, token string) ([]Dashboard, error)
}

// Recorder observes fetches and cache lookups. *metrics.Metrics satisfies it.
type Recorder interface {
	DashboardFetch(result string, d time.Duration)
	DashboardCacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) DashboardFetch(string, time.Duration) {}
func (nopRecorder) DashboardCacheLookup(bool)            {}

// Cache serves dashboard lists from a Store and fetches on a miss.
// Concurrent misses for the same token share one fetch.
type Cache struct {
	fetcher  Fetcher
	store    Store
	ttl      time.Duration
	recorder Recorder
	logger   logging.Logger
	group    singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithRecorder reports fetches and lookups to r.
func WithRecorder(r Recorder) CacheOption {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithCacheLogger sets the logger for store failures.
func WithCacheLogger(l logging.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// NewCache creates a cache over store that keeps lists for ttl.
func NewCache(fetcher Fetcher, store Store, ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		fetcher:  fetcher,
		store:    store,
		ttl:      ttl,
		recorder: nopRecorder{},
		logger:   logging.DefaultLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the cached list without fetching. A store error counts as
// a miss.
func (c *Cache) Peek(ctx context.Context, token string) ([]Dashboard, bool) {
	if token == "" {
		return nil, false
	}
	list, ok, err := c.store.Get(ctx, Key(token))
	if err != nil {
		c.logger.Warn("dashboard cache read failed", logging.Err(err))
		ok = false
	}
	c.recorder.DashboardCacheLookup(ok)
	return list, ok
}

// List returns the cached list or fetches it. The shared fetch outlives a
// canceled caller so that other waiters still get the result.
func (c *Cache) List(ctx context.Context, token string) ([]Dashboard, error) {
	if token == "" {
		return nil, ErrNoToken
	}
	if list, ok := c.Peek(ctx, token); ok {
		return list, nil
	}

	key := Key(token)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key, token)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Dashboard), nil
	}
}

func (c *Cache) fetch(ctx context.Context, key, token string) ([]Dashboard, error) {
	start := time.Now()
	list, err := c.fetcher.ListDashboards(ctx, token)
	if err != nil {
		c.recorder.DashboardFetch("error", time.Since(start))
		return nil, err
	}
	c.recorder.DashboardFetch("ok", time.Since(start))

	if err := c.store.Set(ctx, key, list, c.ttl); err != nil {
		c.logger.Warn("dashboard cache write failed", logging.Err(err))
	}
	return list, nil
}

// Invalidate drops the cached list for token.
func (c *Cache) Invalidate(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.store.Delete(ctx, Key(token))
}

// Load runs List and packs the outcome as a Result, for use from a
// background goroutine.
func (c *Cache) Load(ctx context.Context, token string, seq uint64) Result {
	list, err := c.List(ctx, token)
	return Result{Seq: seq, Dashboards: list, Err: err}
}
