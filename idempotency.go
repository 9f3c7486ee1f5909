package restroute

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"
)

// IdempotencyKeyHeader carries the client-chosen idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

// IdempotencyConfig configures the Idempotency middleware.
type IdempotencyConfig struct {
	Store      Store
	TTL        time.Duration // default: 5m
	RequireKey bool
	Methods    []string // default: POST

	KeyFunc         func(rc RequestContext, key string) string // default: route path + "|" + key
	FingerprintFunc func(rc RequestContext) (string, error)    // default: hash of route, method and params
}

type idempotencyRecord struct {
	Fingerprint string         `json:"fingerprint"`
	Response    storedResponse `json:"response"`
}

// Idempotency returns middleware that replays the stored response of a
// request repeated with the same Idempotency-Key. A repeat whose
// fingerprint differs fails with 409 idempotency_conflict.
func Idempotency(cfg IdempotencyConfig) Middleware {
	if cfg.TTL < time.Second {
		cfg.TTL = 5 * time.Minute
	}
	methods := make([]string, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		methods = append(methods, strings.ToUpper(m))
	}
	if len(methods) == 0 {
		methods = []string{http.MethodPost}
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(rc RequestContext, key string) string { return rc.RoutePath() + "|" + key }
	}
	if cfg.FingerprintFunc == nil {
		cfg.FingerprintFunc = RequestFingerprint
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		req := rc.Request()
		if cfg.Store == nil || !slices.Contains(methods, req.Method()) {
			return next(rc)
		}

		key := strings.TrimSpace(req.Header(IdempotencyKeyHeader))
		if key == "" {
			if cfg.RequireKey {
				return nil, NewError(http.StatusBadRequest, CodeIdempotencyKeyRequired, "Idempotency key is required.", nil)
			}
			return next(rc)
		}

		ctx := rc.Context()
		storeKey := hashKey("restroute_idem_", cfg.KeyFunc(rc, key))
		fingerprint, err := cfg.FingerprintFunc(rc)
		if err != nil {
			return nil, fmt.Errorf("idempotency fingerprint: %w", err)
		}

		raw, ok, err := cfg.Store.Get(ctx, storeKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup: %w", err)
		}
		if ok {
			var rec idempotencyRecord
			if err := json.Unmarshal(raw, &rec); err == nil {
				if rec.Fingerprint != fingerprint {
					return nil, Conflict("Idempotency key conflict.", CodeIdempotencyConflict, map[string]any{"key": key})
				}
				resp, err := rec.Response.response()
				if err != nil {
					return nil, fmt.Errorf("idempotency replay: %w", err)
				}
				return resp.WithHeaders(map[string]string{"Idempotency-Replayed": "true"}), nil
			}
		}

		result, err := next(rc)
		if err != nil {
			return nil, err
		}

		stored, err := encodeResult(result)
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		payload, err := json.Marshal(idempotencyRecord{Fingerprint: fingerprint, Response: stored})
		if err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		if err := cfg.Store.Set(ctx, storeKey, payload, cfg.TTL); err != nil {
			return nil, fmt.Errorf("idempotency store: %w", err)
		}
		return result, nil
	})
}

// RequestFingerprint hashes the route, method and parameters of a request.
func RequestFingerprint(rc RequestContext) (string, error) {
	req := rc.Request()
	params := map[string]any{}
	if v := req.JSONParams(); v != nil {
		params["json"] = v
	}
	if v := req.BodyParams(); v != nil {
		params["body"] = v
	}
	params["params"] = req.Params()
	return hashJSON(map[string]any{
		"route":  rc.RoutePath(),
		"method": req.Method(),
		"params": params,
	})
}
