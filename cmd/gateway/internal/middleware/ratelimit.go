package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Kocoro-lab/snippets/internal/auth"
	"github.com/Kocoro-lab/snippets/internal/circuitbreaker"
	"github.com/Kocoro-lab/snippets/internal/metrics"
)

const (
	rateLimitWindow   = time.Minute
	localEntryIdleTTL = 5 * time.Minute
)

// RateLimiter provides rate limiting middleware. Counters live in Redis when
// a client is configured and in process memory otherwise. While Redis keeps
// failing the breaker opens and the in-memory counters take over.
type RateLimiter struct {
	name    string
	redis   *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
	limit   atomic.Int64
	local   *localLimiter
	now     func() time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMinute per caller.
// A limit of zero disables it. redis may be nil.
func NewRateLimiter(name string, redis *redis.Client, requestsPerMinute int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		name:   name,
		redis:  redis,
		logger: logger,
		local:  newLocalLimiter(),
		now:    time.Now,
	}
	if redis != nil {
		rl.breaker = circuitbreaker.NewCircuitBreaker("redis_ratelimit_"+name, circuitbreaker.DefaultConfig(), logger)
	}
	rl.limit.Store(int64(requestsPerMinute))
	return rl
}

// SetLimit changes the per-minute limit for subsequent requests
func (rl *RateLimiter) SetLimit(requestsPerMinute int) {
	if old := rl.limit.Swap(int64(requestsPerMinute)); old != int64(requestsPerMinute) {
		rl.logger.Info("Rate limit updated",
			zap.String("limiter", rl.name),
			zap.Int64("from", old),
			zap.Int("to", requestsPerMinute),
		)
	}
}

// Limit returns the current per-minute limit
func (rl *RateLimiter) Limit() int {
	return int(rl.limit.Load())
}

// Middleware returns the HTTP middleware function
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.Limit()
		if limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		key, subject := rl.callerKey(r)
		allowed, remaining, resetAt := rl.checkRateLimit(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))

		if !allowed {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("limiter", rl.name),
				zap.String("caller", subject),
				zap.String("path", r.URL.Path),
			)
			metrics.RateLimitRejections.WithLabelValues(rl.name).Inc()

			retryAfter := int64(resetAt.Sub(rl.now()).Seconds() + 0.5)
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			rl.sendRateLimitError(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// callerKey limits signed-in users by ID and everyone else by address
func (rl *RateLimiter) callerKey(r *http.Request) (key, subject string) {
	if userCtx, ok := auth.UserFromContext(r.Context()); ok {
		subject = "user:" + userCtx.UserID.String()
	} else {
		subject = "ip:" + ClientIP(r)
	}
	return fmt.Sprintf("snippets:ratelimit:%s:%s", rl.name, subject), subject
}

// checkRateLimit checks if the request is allowed under rate limits
func (rl *RateLimiter) checkRateLimit(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()
	if rl.redis == nil {
		return rl.local.allow(key, limit, now)
	}

	window := now.Truncate(rateLimitWindow)
	windowKey := fmt.Sprintf("%s:%d", key, window.Unix())
	resetAt = window.Add(rateLimitWindow)

	var incr *redis.IntCmd
	err := rl.breaker.Execute(ctx, func() error {
		pipe := rl.redis.Pipeline()
		incr = pipe.Incr(ctx, windowKey)
		pipe.Expire(ctx, windowKey, rateLimitWindow+time.Second)
		_, err := pipe.Exec(ctx)
		return err
	})
	if circuitbreaker.Rejected(err) {
		return rl.local.allow(key, limit, now)
	}
	if err != nil {
		rl.logger.Error("Rate limit check failed", zap.String("limiter", rl.name), zap.Error(err))
		// fail open
		return true, limit, resetAt
	}

	count := incr.Val()
	remaining = limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, resetAt
}

// sendRateLimitError sends a rate limit exceeded error response
func (rl *RateLimiter) sendRateLimitError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	response := map[string]interface{}{
		"error":   "Rate limit exceeded",
		"message": "Too many requests. Please retry after the rate limit window resets.",
	}

	_ = json.NewEncoder(w).Encode(response)
}

// localLimiter keeps one token bucket per caller
type localLimiter struct {
	mu        sync.Mutex
	entries   map[string]*localEntry
	perMinute int
	lastSweep time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLocalLimiter() *localLimiter {
	return &localLimiter{entries: make(map[string]*localEntry)}
}

func (l *localLimiter) allow(key string, perMinute int, now time.Time) (bool, int, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute != l.perMinute {
		// buckets sized for the old limit are discarded
		l.entries = make(map[string]*localEntry)
		l.perMinute = perMinute
	}
	if now.Sub(l.lastSweep) > localEntryIdleTTL {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > localEntryIdleTTL {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{limiter: rate.NewLimiter(rate.Every(rateLimitWindow/time.Duration(perMinute)), perMinute)}
		l.entries[key] = e
	}
	e.lastSeen = now

	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// time until one token is available again
	perToken := rateLimitWindow / time.Duration(perMinute)
	resetAt := now
	if tokens < 1 {
		resetAt = now.Add(time.Duration((1 - tokens) * float64(perToken)))
	}
	return allowed, remaining, resetAt
}
