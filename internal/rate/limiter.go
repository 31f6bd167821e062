package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Action names a rate-limited operation.
type Action string

// Key identifies one counter: the client IP, the action and an optional
// normalized identifier.
type Key struct {
	Action     Action
	IP         string
	Identifier string
}

// String renders the counter part of the Redis key; the [Limiter] puts
// its prefix in front.
func (k Key) String() string {
	ip := k.IP
	if ip == "" {
		ip = "-"
	}
	s := "rl:" + string(k.Action) + ":" + ip
	if k.Identifier != "" {
		s += ":" + k.Identifier
	}
	return s
}

// Rule is a fixed-window budget. A zero Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
	// FailedOpen is set when Redis was unreachable and the request was let through.
	FailedOpen bool
}

// Limiter is a generic fixed-window counter over Redis. It fails open: a
// Redis outage must never turn into an authentication outage.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	logger zerolog.Logger
}

// New creates a [Limiter] backed by the given Redis client. Counters live
// under prefix, which should match the session key prefix; empty means "ots".
func New(redisClient redis.UniversalClient, prefix string, logger zerolog.Logger) *Limiter {
	if prefix == "" {
		prefix = "ots"
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		logger: logger,
	}
}

// RedisKey returns the full Redis key holding the counter for key.
func (l *Limiter) RedisKey(key Key) string {
	return l.prefix + ":" + key.String()
}

// Allow counts one hit against key and reports whether it stays within rule.
func (l *Limiter) Allow(ctx context.Context, key Key, rule Rule) Decision {
	if l == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}
	}

	count, retryAfter, err := l.hit(ctx, l.RedisKey(key), rule.Window)
	if err != nil {
		l.logger.Warn().Err(err).Str("action", string(key.Action)).Msg("rate limiter unavailable, failing open")
		return Decision{Allowed: true, FailedOpen: true}
	}

	if count > int64(rule.Limit) {
		return Decision{Allowed: false, Count: count, RetryAfter: retryAfter}
	}
	return Decision{Allowed: true, Count: count}
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key Key) error {
	if err := l.redis.Del(ctx, l.RedisKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return count, window, nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// A crash between INCR and EXPIRE leaves a counter without TTL.
	if ttl < 0 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		ttl = window
	}
	return count, ttl, nil
}
