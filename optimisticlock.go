package restroute

import (
	"strconv"
	"strings"
)

// VersionResolver returns the current version of the resource a request
// targets. An empty version means the version is unknown.
type VersionResolver interface {
	ResolveVersion(rc RequestContext) (string, error)
}

// VersionResolverFunc adapts a function to VersionResolver.
type VersionResolverFunc func(rc RequestContext) (string, error)

// ResolveVersion calls f.
func (f VersionResolverFunc) ResolveVersion(rc RequestContext) (string, error) { return f(rc) }

// OptimisticLockConfig configures the OptimisticLock middleware. The zero
// value requires a version on every request.
type OptimisticLockConfig struct {
	Resolver VersionResolver
	Optional bool
	Header   string // default: "If-Match"
	Param    string // default: "version"
}

// LockVersions is stored under the "optimisticLock" attribute.
type LockVersions struct {
	Expected string `json:"expected"`
	Current  string `json:"current"`
}

// OptimisticLock returns middleware that compares the version a client
// expects (If-Match header or version parameter) with the current version.
// A missing expectation fails with 412 precondition_required, an unknown
// current version with 409 version_unavailable and a mismatch with 412
// optimistic_lock_failed. "*" matches any version.
func OptimisticLock(cfg OptimisticLockConfig) Middleware {
	if cfg.Header == "" {
		cfg.Header = "If-Match"
	}
	if cfg.Param == "" {
		cfg.Param = "version"
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		expected, ok := expectedVersion(rc.Request(), cfg.Header, cfg.Param)
		if !ok {
			if cfg.Optional {
				return next(rc)
			}
			return nil, PreconditionFailed("Precondition required.", CodePreconditionRequired, nil)
		}

		var current string
		if cfg.Resolver != nil {
			v, err := cfg.Resolver.ResolveVersion(rc)
			if err != nil {
				return nil, err
			}
			current, _ = NormalizeVersion(v)
		}
		if current == "" {
			return nil, Conflict("Version is unavailable.", CodeVersionUnavailable, nil)
		}
		if expected != "*" && expected != current {
			return nil, PreconditionFailed("Optimistic lock failed.", CodeOptimisticLockFailed, map[string]any{
				"expected": expected,
				"current":  current,
			})
		}

		return next(rc.WithAttribute(AttrOptimisticLock, LockVersions{Expected: expected, Current: current}))
	})
}

func expectedVersion(req Request, header, param string) (string, bool) {
	if v, ok := NormalizeVersion(req.Header(header)); ok {
		return v, true
	}
	if raw, ok := req.Param(param); ok {
		return NormalizeVersion(raw)
	}
	return "", false
}

// NormalizeVersion turns a header or parameter value into a comparable
// version: numbers are formatted, strings are trimmed and lose a weak W/
// prefix and surrounding quotes.
func NormalizeVersion(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return "", false
		}
		if s == "*" {
			return s, true
		}
		if rest, ok := strings.CutPrefix(s, "W/"); ok {
			s = strings.TrimSpace(rest)
		}
		if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
			s = s[1 : len(s)-1]
		}
		return s, true
	default:
		return "", false
	}
}
