// Package kvstore provides restroute.Store and restroute.RateLimiter
// implementations: an in-process TTL store and a Redis-backed store with
// an atomic fixed-window limiter.
package kvstore

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bjaus/restroute"
)

// Memory is an in-process Store with per-key expiry.
type Memory struct {
	cache *ttlcache.Cache[string, []byte]
}

var _ restroute.Store = (*Memory)(nil)

// NewMemory returns an empty Memory store. Reads do not extend an entry's
// lifetime.
func NewMemory() *Memory {
	return &Memory{
		cache: ttlcache.New(ttlcache.WithDisableTouchOnHit[string, []byte]()),
	}
}

// Get returns the value under key unless it is missing or expired.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := m.cache.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

// Set stores value under key. A non-positive ttl never expires.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	m.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Len returns the number of stored entries, expired ones included until
// they are evicted.
func (m *Memory) Len() int { return m.cache.Len() }

// Start evicts expired entries in the background until ctx is cancelled.
func (m *Memory) Start(ctx context.Context) {
	go m.cache.Start()
	<-ctx.Done()
	m.cache.Stop()
}
