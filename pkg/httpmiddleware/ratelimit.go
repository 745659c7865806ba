package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter Limiter
	// Key extracts the limit key. Defaults to ClientIP.
	Key func(*http.Request) string
}

// RateLimit rejects requests over the limit with 429. Limiter errors let the
// request through.
func RateLimit(cfg RateLimitConfig) Middleware {
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d, err := cfg.Limiter.Allow(r.Context(), key(r), now)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limiter failed", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				wait := math.Ceil(d.ResetAt.Sub(now).Seconds())
				h.Set("Retry-After", strconv.Itoa(max(int(wait), 0)))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, X-Real-IP or the
// remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MemoryLimiter is a per-process sliding window limiter. It weights the
// previous window's count by how much of it still overlaps the sliding window.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*slidingWindow
}

type slidingWindow struct {
	start      time.Time
	prev, curr float64
}

// NewMemoryLimiter allows max requests per window per key.
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{max: max, window: window, windows: make(map[string]*slidingWindow)}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	sw, ok := l.windows[key]
	switch {
	case !ok:
		sw = &slidingWindow{start: start}
		l.windows[key] = sw
	case start.Sub(sw.start) >= 2*l.window:
		*sw = slidingWindow{start: start}
	case start.After(sw.start):
		*sw = slidingWindow{start: start, prev: sw.curr}
	}

	overlap := 1 - float64(now.Sub(sw.start))/float64(l.window)
	count := sw.prev*overlap + sw.curr
	d := Decision{Limit: l.max, ResetAt: sw.start.Add(l.window)}
	if count >= float64(l.max) {
		return d, nil
	}
	sw.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-count-1), 0)
	return d, nil
}

// Evict drops keys idle for two windows.
func (l *MemoryLimiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, sw := range l.windows {
		if now.Sub(sw.start) >= 2*l.window {
			delete(l.windows, k)
		}
	}
}

// Run evicts stale keys every two windows until ctx is done.
func (l *MemoryLimiter) Run(ctx context.Context) {
	t := time.NewTicker(2 * l.window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.Evict(now)
		}
	}
}

// RedisLimiter is a fixed window limiter shared by every API replica.
type RedisLimiter struct {
	client redis.UniversalClient
	max    int
	window time.Duration
	prefix string
}

// NewRedisLimiter allows max requests per window per key across replicas.
func NewRedisLimiter(client redis.UniversalClient, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window, prefix: "ratelimit:"}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, now time.Time) (Decision, error) {
	start := now.Truncate(l.window)
	k := l.prefix + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	var incr *redis.IntCmd
	if _, err := l.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.PExpire(ctx, k, l.window)
		return nil
	}); err != nil {
		return Decision{}, errors.Wrap(err, "count request")
	}

	n := int(incr.Val())
	return Decision{
		Allowed:   n <= l.max,
		Limit:     l.max,
		Remaining: max(l.max-n, 0),
		ResetAt:   start.Add(l.window),
	}, nil
}
