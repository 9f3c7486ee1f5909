package restroute

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitResult is the outcome of one limiter hit.
type RateLimitResult struct {
	Allowed   bool  `json:"allowed"`
	Remaining int   `json:"remaining"`
	ResetAt   int64 `json:"resetAt"`
}

// RateLimiter counts hits per key. Implementations own their counter state
// and must make the read-modify-write of a hit atomic.
type RateLimiter interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitConfig configures the RateLimit middleware.
type RateLimitConfig struct {
	Limiter RateLimiter
	Limit   int                          // default: 60
	Window  time.Duration                // default: 1m
	KeyFunc func(rc RequestContext) string // default: route path
}

// RateLimit returns middleware that rejects requests over the limit with
// 429 rate_limited. Allowed requests carry the result under the
// "rateLimit" attribute, and Response results gain X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(rc RequestContext) string { return rc.RoutePath() }
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		if cfg.Limiter == nil {
			return nil, configErrorf("rate limit middleware requires a limiter")
		}
		res, err := cfg.Limiter.Hit(rc.Context(), cfg.KeyFunc(rc), cfg.Limit, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
		if !res.Allowed {
			return nil, NewError(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded.", map[string]any{
				"limit":     cfg.Limit,
				"remaining": res.Remaining,
				"resetAt":   res.ResetAt,
			})
		}

		result, err := next(rc.WithAttribute(AttrRateLimit, res))
		if err != nil {
			return nil, err
		}
		if resp, ok := result.(*Response); ok && resp != nil {
			return resp.WithHeaders(map[string]string{
				"X-RateLimit-Limit":     strconv.Itoa(cfg.Limit),
				"X-RateLimit-Remaining": strconv.Itoa(res.Remaining),
				"X-RateLimit-Reset":     strconv.FormatInt(res.ResetAt, 10),
			}), nil
		}
		return result, nil
	})
}

// StoreRateLimiter is a fixed-window limiter keeping {count, resetAt}
// state in a Store. Hits are serialized through a mutex, so a single
// instance is safe for concurrent use; instances sharing a remote store
// should use an atomic limiter instead.
type StoreRateLimiter struct {
	store  Store
	prefix string
	now    func() time.Time
	mu     sync.Mutex
}

// NewStoreRateLimiter returns a fixed-window limiter over store.
func NewStoreRateLimiter(store Store, now func() time.Time) *StoreRateLimiter {
	if now == nil {
		now = time.Now
	}
	return &StoreRateLimiter{store: store, prefix: "restroute_rl_", now: now}
}

type windowState struct {
	Count   int   `json:"count"`
	ResetAt int64 `json:"resetAt"`
}

// Hit counts one request against key.
func (l *StoreRateLimiter) Hit(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().Unix()
	storageKey := hashKey(l.prefix, key)
	state := windowState{ResetAt: now + windowSeconds(window)}

	raw, ok, err := l.store.Get(ctx, storageKey)
	if err != nil {
		return RateLimitResult{}, err
	}
	if ok {
		var stored windowState
		if json.Unmarshal(raw, &stored) == nil && stored.ResetAt > now {
			state = stored
		}
	}

	state.Count++
	payload, err := json.Marshal(state)
	if err != nil {
		return RateLimitResult{}, err
	}
	ttl := time.Duration(max(state.ResetAt-now, 1)) * time.Second
	if err := l.store.Set(ctx, storageKey, payload, ttl); err != nil {
		return RateLimitResult{}, err
	}

	return RateLimitResult{
		Allowed:   state.Count <= limit,
		Remaining: max(limit-state.Count, 0),
		ResetAt:   state.ResetAt,
	}, nil
}

// TokenBucketLimiter is an in-process limiter built on token buckets: each
// key refills limit tokens per window with a burst of limit. Idle buckets
// are pruned lazily.
type TokenBucketLimiter struct {
	CleanupInterval time.Duration // how often to prune idle buckets (default: 1m)
	MaxIdle         time.Duration // remove buckets idle longer than this (default: 5m)

	mu          sync.Mutex
	buckets     map[string]*bucketEntry
	lastCleanup time.Time
	now         func() time.Time
}

type bucketEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewTokenBucketLimiter returns an empty TokenBucketLimiter.
func NewTokenBucketLimiter() *TokenBucketLimiter {
	return &TokenBucketLimiter{buckets: make(map[string]*bucketEntry), now: time.Now}
}

// Hit takes one token for key.
func (l *TokenBucketLimiter) Hit(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	cleanupInterval := l.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	maxIdle := l.MaxIdle
	if maxIdle <= 0 {
		maxIdle = 5 * time.Minute
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buckets == nil {
		l.buckets = make(map[string]*bucketEntry)
	}
	if l.now == nil {
		l.now = time.Now
	}
	now := l.now()

	if now.Sub(l.lastCleanup) >= cleanupInterval {
		for k, e := range l.buckets {
			if now.Sub(e.lastSeen) > maxIdle {
				delete(l.buckets, k)
			}
		}
		l.lastCleanup = now
	}

	every := window / time.Duration(max(limit, 1))
	entry, ok := l.buckets[key]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(rate.Every(every), limit)}
		l.buckets[key] = entry
	}
	entry.lastSeen = now

	allowed := entry.limiter.AllowN(now, 1)
	tokens := entry.limiter.TokensAt(now)
	missing := float64(limit) - tokens
	refill := time.Duration(math.Ceil(missing * float64(every)))
	return RateLimitResult{
		Allowed:   allowed,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(refill).Unix(),
	}, nil
}

func windowSeconds(d time.Duration) int64 {
	return max(int64(d/time.Second), 1)
}
