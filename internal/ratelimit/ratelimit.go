// Package ratelimit enforces a per-client requests-per-minute ceiling at
// ingress. The counter is an ephemeral fixed window keyed by client id; it
// does not survive restarts, which is acceptable: the limiter protects
// capacity, it is not an accounting system.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triagent/triagent/internal/logging"
	"github.com/triagent/triagent/internal/metrics"
)

// Decision is the admission verdict for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is how long until the current window resets. Only
	// meaningful when the request was rejected.
	RetryAfter time.Duration
	// Degraded is set when the counter backend was unreachable and the
	// request was admitted fail-open.
	Degraded bool
}

// Limiter admits or rejects requests per client id.
type Limiter interface {
	Admit(ctx context.Context, clientID string) Decision
}

// RedisLimiter counts requests in Redis fixed windows. When Redis is down
// it fails open: requests are admitted and the degradation is surfaced via
// logs and metrics rather than turning a cache outage into an API outage.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	logger *logging.Logger
}

// NewRedisLimiter builds a limiter allowing limit requests per window.
func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration, logger *logging.Logger) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window, logger: logger}
}

func (l *RedisLimiter) Admit(ctx context.Context, clientID string) Decision {
	now := time.Now()
	windowStart := now.Truncate(l.window)
	key := "ratelimit:" + clientID + ":" + windowStart.UTC().Format("20060102T150405")

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		metrics.RecordRateLimit("degraded")
		l.logger.WithContext(ctx).WithClient(clientID).WithError(err).
			Warn("rate limit backend unreachable, admitting fail-open")
		return Decision{Allowed: true, Remaining: l.limit, Degraded: true}
	}
	if count == 1 {
		// First hit in this window owns the expiry. Keys self-expire a
		// window after the reset so clock skew cannot strand counters.
		if err := l.rdb.Expire(ctx, key, 2*l.window).Err(); err != nil {
			l.logger.WithContext(ctx).WithClient(clientID).WithError(err).
				Warn("rate limit expire failed")
		}
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	if int(count) > l.limit {
		metrics.RecordRateLimit("rejected")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}
	}
	metrics.RecordRateLimit("allowed")
	return Decision{Allowed: true, Remaining: remaining}
}

// MemLimiter is an in-process fixed-window limiter for dev and tests.
type MemLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]int
	start  time.Time
	now    func() time.Time
}

// NewMemLimiter builds an in-memory limiter allowing limit requests per window.
func NewMemLimiter(limit int, window time.Duration) *MemLimiter {
	return &MemLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]int),
		now:    time.Now,
	}
}

func (l *MemLimiter) Admit(_ context.Context, clientID string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Truncate(l.window)
	if !windowStart.Equal(l.start) {
		l.start = windowStart
		l.counts = make(map[string]int)
	}

	l.counts[clientID]++
	count := l.counts[clientID]
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	if count > l.limit {
		metrics.RecordRateLimit("rejected")
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}
	}
	metrics.RecordRateLimit("allowed")
	return Decision{Allowed: true, Remaining: remaining}
}
