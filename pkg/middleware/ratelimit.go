package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/grc-gateway/pkg/httputil"
	"github.com/platinummonkey/grc-gateway/pkg/observability"
)

// RateLimitConfig defines a fixed-window rate limit
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 120,
		WindowDuration:    time.Minute,
	}
}

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per key
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter shares counters across gateway instances
type RedisLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewRedisLimiter creates a new Redis-backed rate limiter
func NewRedisLimiter(client *redis.Client, config *RateLimitConfig, prefix string) *RedisLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "grc:ratelimit"
	}
	return &RedisLimiter{redis: client, config: config, prefix: prefix}
}

// Allow increments the key's counter and reports whether it is under the limit
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", rl.prefix, key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	// The window is anchored at the first request; a key without expiry is new.
	resetIn := ttl.Val()
	if resetIn < 0 {
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
		}
		resetIn = rl.config.WindowDuration
	}

	return decide(int(incr.Val()), rl.config, resetIn), nil
}

// LocalLimiter is an in-process fallback used when Redis is not configured
type LocalLimiter struct {
	config  *RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count int
	start time.Time
}

// NewLocalLimiter creates an in-memory fixed-window limiter
func NewLocalLimiter(config *RateLimitConfig) *LocalLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &LocalLimiter{config: config, windows: make(map[string]*window), now: time.Now}
}

// Allow counts the request against the key's current window
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.config.WindowDuration {
		w = &window{start: now}
		l.windows[key] = w
		l.sweep(now)
	}
	w.count++

	return decide(w.count, l.config, l.config.WindowDuration-now.Sub(w.start)), nil
}

// sweep drops expired windows; called with mu held
func (l *LocalLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.config.WindowDuration {
			delete(l.windows, k)
		}
	}
}

func decide(count int, config *RateLimitConfig, resetIn time.Duration) Decision {
	remaining := config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	if resetIn < 0 {
		resetIn = config.WindowDuration
	}
	return Decision{
		Allowed:   count <= config.RequestsPerWindow,
		Limit:     config.RequestsPerWindow,
		Remaining: remaining,
		ResetIn:   resetIn,
	}
}

// RateLimitMiddleware limits requests per authenticated actor, or per client
// IP before authentication. Limiter errors fail open.
type RateLimitMiddleware struct {
	limiter Limiter
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates the middleware
func NewRateLimitMiddleware(limiter Limiter, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, metrics: metrics}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "ip:" + clientIP(r)
		if authCtx := GetAuthContext(r); authCtx != nil {
			key = "user:" + authCtx.UserID
		}

		decision, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(decision.ResetIn).Unix(), 10))

		if !decision.Allowed {
			m.metrics.RateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.ResetIn.Round(time.Second).Seconds())))
			httputil.WriteTooManyRequests(w, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
