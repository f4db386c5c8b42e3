// Package limits throttles requests per client with a sliding window in
// memory, or a fixed window in Redis when several replicas share the load.
package limits

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/moonstream-to/moonlive/pkg/logging"
)

// ErrUnavailable wraps backend failures. Middleware lets such requests
// through.
var ErrUnavailable = errors.New("rate limiter unavailable")

// Limiter decides whether key may make another request.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Window() time.Duration
}

// MemoryLimiter keeps a sliding window of request times per key.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	hits      map[string][]time.Time
	lastSweep time.Time
}

// NewMemoryLimiter allows limit requests per key in any window.
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

func (l *MemoryLimiter) Window() time.Duration { return l.window }

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	start := now.Add(-l.window)
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(start)
		l.lastSweep = now
	}

	hits := trim(l.hits[key], start)
	if len(hits) >= l.limit {
		l.hits[key] = hits
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}

// Count returns the requests key made within the current window.
func (l *MemoryLimiter) Count(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(trim(l.hits[key], l.now().Add(-l.window)))
}

// sweep drops keys with no request after start. Callers hold mu.
func (l *MemoryLimiter) sweep(start time.Time) {
	for key, hits := range l.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(start) {
			delete(l.hits, key)
		}
	}
}

// trim drops times at or before start. hits is in ascending order.
func trim(hits []time.Time, start time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(start) {
		i++
	}
	return hits[i:]
}

// RedisPrefix starts every limiter key in Redis.
const RedisPrefix = "moonlive:ratelimit:"

// RedisLimiter counts requests per key in fixed windows so every replica
// sees the same totals.
type RedisLimiter struct {
	rdb    redis.UniversalClient
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per key per window.
func NewRedisLimiter(rdb redis.UniversalClient, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, now: time.Now}
}

func (l *RedisLimiter) Window() time.Duration { return l.window }

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	k := RedisPrefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return incr.Val() <= int64(l.limit), nil
}

// ClientIP returns the address limits are keyed on. Forwarding headers
// are honoured only when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Middleware answers 429 once a client IP runs out of requests.
func Middleware(l Limiter, trustProxy bool) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(max(1, int(l.Window()/time.Second)))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustProxy)
			ok, err := l.Allow(r.Context(), ip)
			if err != nil {
				logging.L(r.Context()).Warn("rate limit check failed", logging.Err(err))
				ok = true
			}
			if !ok {
				logging.L(r.Context()).Info("rate limited", logging.String("client_ip", ip))
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
