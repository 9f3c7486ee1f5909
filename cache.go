package restroute

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// CacheConfig configures the Cache middleware.
type CacheConfig struct {
	Store   Store
	TTL     time.Duration                  // default: 1m
	KeyFunc func(rc RequestContext) string // default: hash of route path and sorted params
	Logger  *slog.Logger                   // default: slog.Default()
}

// Cache returns middleware that caches GET results in a Store. Hits are
// returned as a Response rebuilt from the stored status, headers and
// body; other methods pass through.
func Cache(cfg CacheConfig) Middleware {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Minute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultCacheKey
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		if cfg.Store == nil || rc.Request().Method() != http.MethodGet {
			return next(rc)
		}

		ctx := rc.Context()
		key := cfg.KeyFunc(rc)
		raw, ok, err := cfg.Store.Get(ctx, key)
		if err != nil {
			cfg.Logger.WarnContext(ctx, "cache read failed", "key", key, "error", err)
		} else if ok {
			var stored storedResponse
			if err := json.Unmarshal(raw, &stored); err == nil {
				resp, err := stored.response()
				if err == nil {
					return resp, nil
				}
				cfg.Logger.WarnContext(ctx, "cache entry unreadable", "key", key, "error", err)
			}
		}

		result, err := next(rc)
		if err != nil {
			return nil, err
		}

		stored, err := encodeResult(result)
		if err != nil {
			cfg.Logger.WarnContext(ctx, "cache skipped", "key", key, "error", err)
			return result, nil
		}
		payload, err := json.Marshal(stored)
		if err == nil {
			err = cfg.Store.Set(ctx, key, payload, cfg.TTL)
		}
		if err != nil {
			cfg.Logger.WarnContext(ctx, "cache write failed", "key", key, "error", err)
		}
		return result, nil
	})
}

func defaultCacheKey(rc RequestContext) string {
	params, err := json.Marshal(rc.Request().Params())
	if err != nil {
		params = nil
	}
	return hashKey("restroute_cache_", rc.RoutePath()+"|"+string(params))
}
