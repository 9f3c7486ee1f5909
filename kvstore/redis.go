package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bjaus/restroute"
)

// RedisClient is the subset of *redis.Client the Redis store and limiter use.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

var _ RedisClient = (*redis.Client)(nil)

// Dial returns a client for the server at addr.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// Redis is a Store over a Redis server.
type Redis struct {
	client RedisClient
	prefix string
}

var _ restroute.Store = (*Redis)(nil)

// RedisOption configures a Redis store or limiter.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix string
	now    func() time.Time
}

// WithKeyPrefix namespaces every key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) {
		o.prefix = prefix
	}
}

// WithClock overrides the limiter's clock.
func WithClock(now func() time.Time) RedisOption {
	return func(o *redisOptions) {
		o.now = now
	}
}

func applyRedisOptions(opts []RedisOption) redisOptions {
	o := redisOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewRedis returns a Store backed by client.
func NewRedis(client RedisClient, opts ...RedisOption) *Redis {
	o := applyRedisOptions(opts)
	return &Redis{client: client, prefix: o.prefix}
}

// Get returns the value under key; a missing key is not an error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return b, true, nil
}

// Set stores value under key. A non-positive ttl never expires.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// hitScript increments the window counter, starts the window on the first
// hit and returns {count, milliseconds left}.
const hitScript = `
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

// RedisRateLimiter is a fixed-window limiter whose hits run as one Lua
// script, so instances sharing a server count atomically.
type RedisRateLimiter struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

var _ restroute.RateLimiter = (*RedisRateLimiter)(nil)

// NewRedisRateLimiter returns a limiter over client. Keys default to the
// "restroute_rl_" prefix.
func NewRedisRateLimiter(client RedisClient, opts ...RedisOption) *RedisRateLimiter {
	o := applyRedisOptions(append([]RedisOption{WithKeyPrefix("restroute_rl_")}, opts...))
	return &RedisRateLimiter{client: client, prefix: o.prefix, now: o.now}
}

// Hit counts one request against key.
func (l *RedisRateLimiter) Hit(ctx context.Context, key string, limit int, window time.Duration) (restroute.RateLimitResult, error) {
	windowMs := max(window.Milliseconds(), 1)
	values, err := l.client.Eval(ctx, hitScript, []string{l.prefix + key}, windowMs).Int64Slice()
	if err != nil {
		return restroute.RateLimitResult{}, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(values) != 2 {
		return restroute.RateLimitResult{}, fmt.Errorf("redis rate limit: unexpected reply %v", values)
	}
	count, ttlMs := values[0], values[1]

	resetAt := l.now().Add(time.Duration(ttlMs) * time.Millisecond)
	return restroute.RateLimitResult{
		Allowed:   count <= int64(limit),
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt.Add(time.Second - time.Nanosecond).Unix(),
	}, nil
}
