package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/metrics"
)

// Limiter decides whether a request identified by key may proceed. It is an
// injected capability rather than module-level state, so correctness
// doesn't depend on which process instance handles the request — the Redis
// implementation shares its counters across instances.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a fixed-window counter in Redis: INCR the key, set its
// TTL to the window on first increment, reject once the count exceeds the
// limit. Shared across server instances and survives restarts (until the
// window expires).
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("ratelimit: incrementing %s: %w", key, err)
	}
	if count == 1 {
		// First hit in this window — start the clock.
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("ratelimit: setting expiry for %s: %w", key, err)
		}
	}

	return count <= int64(l.limit), nil
}

// MemoryLimiter is the single-instance fallback: a keyed token bucket. Each
// key gets its own rate.Limiter, created on first use. State is process-
// local and resets on restart — fine for development and single-node
// deployments.
//
// Entries idle for longer than memoryLimiterTTL are swept on the next
// Allow, so the map does not grow with every client that ever connected.
type MemoryLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const (
	memoryLimiterTTL = 10 * time.Minute
	memorySweepEvery = time.Minute
)

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{
		limiters:  make(map[string]*clientLimiter),
		limit:     rate.Limit(rps),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) > memorySweepEvery {
		for k, cl := range l.limiters {
			if now.Sub(cl.lastSeen) > memoryLimiterTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.limiters[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = cl
	}
	cl.lastSeen = now
	l.mu.Unlock()

	return cl.limiter.Allow(), nil
}

// RateLimit returns middleware that applies the limiter per user (when
// authenticated) or per client IP. It must be registered after the auth
// middleware of its route group, or every request falls into the IP bucket.
// A limiter error fails open: an outage in the rate-limit store should
// degrade protection, not take the API down.
func RateLimit(limiter Limiter, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), limitKey(r))
			if err != nil {
				logger.Error("rate limiter unavailable, failing open",
					slog.String("error", err.Error()),
				)
				allowed = true
			}

			if !allowed {
				m.RateLimited.Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate_limited","message":"too many requests, slow down"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// limitKey buckets by authenticated user when the auth middleware has run,
// otherwise by client IP. RemoteAddr carries the ephemeral client port on
// direct connections, which must not leak into the key — every new TCP
// connection would get its own bucket.
func limitKey(r *http.Request) string {
	if userID, ok := auth.UserIDFromContext(r.Context()); ok {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// Already a bare host: chi's RealIP rewrote it from a proxy header.
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
