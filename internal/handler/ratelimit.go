package handler

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"pics-backend/internal/client"
	"pics-backend/internal/util"
)

// RequestCounter counts requests per key within a fixed window. The
// attempt tracker guards identities; this guards the transport from one
// address hammering the unauthenticated endpoints.
type RequestCounter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter shares the window across instances.
type RedisCounter struct {
	redisClient *client.RedisClient
	keyPrefix   string
}

func NewRedisCounter(redisClient *client.RedisClient) *RedisCounter {
	return &RedisCounter{redisClient: redisClient, keyPrefix: "rate:"}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	return c.redisClient.IncrWithExpire(ctx, c.keyPrefix+key, window)
}

// MemoryCounter is the single-instance fallback. Expired windows for
// addresses that never come back are swept once the map grows past
// sweepThreshold, so one-off visitors do not pin memory for the process
// lifetime.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*countWindow
	now     func() time.Time
}

type countWindow struct {
	count   int64
	resetAt time.Time
}

const sweepThreshold = 4096

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		windows: make(map[string]*countWindow),
		now:     time.Now,
	}
}

func (c *MemoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || now.After(w.resetAt) {
		if !ok && len(c.windows) >= sweepThreshold {
			c.sweep(now)
		}
		w = &countWindow{resetAt: now.Add(window)}
		c.windows[key] = w
	}
	w.count++
	return w.count, nil
}

func (c *MemoryCounter) sweep(now time.Time) {
	for key, w := range c.windows {
		if now.After(w.resetAt) {
			delete(c.windows, key)
		}
	}
}

// RateLimit rejects requests from one client IP past limit per window.
// Counter failures fail open: a Redis outage must not lock everyone out.
func RateLimit(counter RequestCounter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			count, err := counter.Incr(r.Context(), ip, window)
			if err != nil {
				util.Warn("rate limit counter unavailable", util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if count > int64(limit) {
				respondJSON(w, http.StatusTooManyRequests, map[string]string{"message": "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// RealIP middleware has already folded X-Forwarded-For into
	// RemoteAddr when the proxy headers are present.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
