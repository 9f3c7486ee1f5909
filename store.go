package restroute

import (
	"context"
	"crypto/sha1" //nolint:gosec // keys only, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Store is the key-value store behind the cache, idempotency and rate
// limit middlewares. Get reports false for missing or expired keys.
// Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// storedResponse is the serialized form of a Response kept in a Store.
type storedResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

// encodeResult serializes a pipeline result. Values other than Response
// are stored as the 200 response they normalize to.
func encodeResult(result any) (storedResponse, error) {
	resp, ok := result.(*Response)
	if !ok {
		if v, isValue := result.(Response); isValue {
			resp = &v
		} else {
			resp = NewResponse(result, 0)
		}
	}
	if resp == nil {
		resp = NewResponse(nil, 0)
	}
	body, err := json.Marshal(resp.Body)
	if err != nil {
		return storedResponse{}, fmt.Errorf("encode response body: %w", err)
	}
	return storedResponse{Status: resp.StatusCode(), Headers: resp.Headers, Body: body}, nil
}

// response rebuilds the Response with its body decoded, so every host
// encoder sees plain values again.
func (s storedResponse) response() (*Response, error) {
	var body any
	if len(s.Body) > 0 {
		if err := json.Unmarshal(s.Body, &body); err != nil {
			return nil, fmt.Errorf("decode stored body: %w", err)
		}
	}
	return &Response{Body: body, Status: s.Status, Headers: s.Headers}, nil
}

func hashKey(prefix, key string) string {
	sum := sha1.Sum([]byte(key)) //nolint:gosec // keys only
	return prefix + hex.EncodeToString(sum[:])
}

func hashJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(b) //nolint:gosec // fingerprint only
	return hex.EncodeToString(sum[:]), nil
}
