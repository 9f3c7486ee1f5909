package restroute

import "context"

// Attribute keys written by the built-in middlewares.
const (
	AttrAuth           = "auth"
	AttrClaims         = "claims"
	AttrScopes         = "scopes"
	AttrUserID         = "userId"
	AttrUser           = "user"
	AttrRateLimit      = "rateLimit"
	AttrOptimisticLock = "optimisticLock"
)

// RequestContext is the immutable per-request value handed through a
// pipeline. Middlewares derive new values with WithAttribute; the original
// is never modified.
type RequestContext struct {
	ctx       context.Context
	requestID string
	routePath string
	request   Request

	keys   []string
	values map[string]any
}

// NewRequestContext creates a RequestContext with no attributes.
func NewRequestContext(ctx context.Context, requestID, routePath string, req Request) RequestContext {
	return RequestContext{
		ctx:       ctx,
		requestID: requestID,
		routePath: routePath,
		request:   req,
	}
}

// Context returns the Go context of the call, never nil.
func (rc RequestContext) Context() context.Context {
	if rc.ctx == nil {
		return context.Background()
	}
	return rc.ctx
}

// RequestID returns the request id assigned by the router.
func (rc RequestContext) RequestID() string { return rc.requestID }

// RoutePath returns the matched route pattern, namespace included.
func (rc RequestContext) RoutePath() string { return rc.routePath }

// Request returns the host request.
func (rc RequestContext) Request() Request { return rc.request }

// Attribute returns the attribute stored under key.
func (rc RequestContext) Attribute(key string) (any, bool) {
	v, ok := rc.values[key]
	return v, ok
}

// AttributeKeys returns attribute keys in insertion order.
func (rc RequestContext) AttributeKeys() []string {
	out := make([]string, len(rc.keys))
	copy(out, rc.keys)
	return out
}

// Attributes returns a copy of the attribute map.
func (rc RequestContext) Attributes() map[string]any {
	out := make(map[string]any, len(rc.values))
	for k, v := range rc.values {
		out[k] = v
	}
	return out
}

// WithAttribute returns a copy of rc with key set to val. Overwriting an
// existing key keeps its original position.
func (rc RequestContext) WithAttribute(key string, val any) RequestContext {
	values := make(map[string]any, len(rc.values)+1)
	for k, v := range rc.values {
		values[k] = v
	}
	keys := rc.keys
	if _, exists := rc.values[key]; !exists {
		keys = make([]string, len(rc.keys), len(rc.keys)+1)
		copy(keys, rc.keys)
		keys = append(keys, key)
	}
	values[key] = val

	rc.keys = keys
	rc.values = values
	return rc
}

// WithContext returns a copy of rc carrying ctx.
func (rc RequestContext) WithContext(ctx context.Context) RequestContext {
	rc.ctx = ctx
	return rc
}

// GetAttribute retrieves a typed attribute. It reports false when the key is
// absent or holds a value of another type.
func GetAttribute[T any](rc RequestContext, key string) (T, bool) {
	val, ok := rc.values[key].(T)
	return val, ok
}
