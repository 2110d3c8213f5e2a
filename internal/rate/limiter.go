package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy declares a per-route limit/window pair. It is attached explicitly
// to each route registration at composition time; enforcement reads this
// struct, never runtime metadata.
type Policy struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// DefaultAuthPolicy is the policy applied to authentication-sensitive
// routes: 3 attempts per 2 second window.
func DefaultAuthPolicy(prefix string) Policy {
	return Policy{Limit: 3, Window: 2 * time.Second, KeyPrefix: prefix}
}

// Result reports the outcome of one limiter check. RetryAfter is only
// meaningful when Allowed is false.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces fixed-window request counters keyed by
// keyPrefix + client identity.
//
// Failure mode is fail-open by contract: when the backing store is
// unreachable, implementations return an allowed Result alongside the
// error so sensitive endpoints stay reachable in degraded mode. Callers
// log the error; they must not turn it into a denial.
type Limiter interface {
	Check(ctx context.Context, key string, p Policy) (Result, error)
}

// RedisLimiter counts in Redis so the window is shared across replicas.
type RedisLimiter struct {
	redis redis.UniversalClient
}

// NewRedisLimiter creates a [RedisLimiter] over the given client.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{redis: client}
}

// Check increments the window counter and compares it to the policy limit.
func (l *RedisLimiter) Check(ctx context.Context, key string, p Policy) (Result, error) {
	if p.Limit <= 0 || p.Window <= 0 {
		return Result{Allowed: true}, nil
	}

	fullKey := "rl:" + p.KeyPrefix + ":" + key

	count, err := l.redis.Incr(ctx, fullKey).Result()
	if err != nil {
		return Result{Allowed: true}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.PExpire(ctx, fullKey, p.Window).Err(); err != nil {
			return Result{Allowed: true}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	if count > int64(p.Limit) {
		ttl, err := l.redis.PTTL(ctx, fullKey).Result()
		if err != nil || ttl < 0 {
			ttl = p.Window
		}
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}

	return Result{Allowed: true, Remaining: p.Limit - int(count)}, nil
}

type memWindow struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in-process for redis-less deployments.
// Counters reset on process restart, which temporarily relaxes the limit.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*memWindow
}

// NewMemoryLimiter creates an empty in-process limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{windows: make(map[string]*memWindow)}
}

// Check increments the window counter and compares it to the policy limit.
func (l *MemoryLimiter) Check(_ context.Context, key string, p Policy) (Result, error) {
	if p.Limit <= 0 || p.Window <= 0 {
		return Result{Allowed: true}, nil
	}

	fullKey := p.KeyPrefix + ":" + key
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[fullKey]
	if !ok || !w.resetAt.After(now) {
		if len(l.windows) > 4096 {
			l.evictExpired(now)
		}
		l.windows[fullKey] = &memWindow{count: 1, resetAt: now.Add(p.Window)}
		return Result{Allowed: true, Remaining: p.Limit - 1}, nil
	}

	w.count++
	if w.count > p.Limit {
		return Result{Allowed: false, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Result{Allowed: true, Remaining: p.Limit - w.count}, nil
}

func (l *MemoryLimiter) evictExpired(now time.Time) {
	for k, w := range l.windows {
		if !w.resetAt.After(now) {
			delete(l.windows, k)
		}
	}
}
