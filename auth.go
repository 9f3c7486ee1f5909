package restroute

import (
	"context"
	"regexp"
	"strings"
)

// Auth providers recorded on AuthIdentity.
const (
	ProviderJWT                 = "jwt"
	ProviderApplicationPassword = "application_password"
	ProviderCookieNonce         = "cookie_nonce"
)

// AuthIdentity is the caller identity established by an auth middleware.
// A zero UserID means no user is associated.
type AuthIdentity struct {
	Provider string
	UserID   int64
	Subject  string
	Claims   map[string]any
	Scopes   []string
	User     any
}

// WithIdentity folds id into rc: the identity itself under "auth", and
// claims, scopes, userId and user under their own keys when present.
func WithIdentity(rc RequestContext, id AuthIdentity) RequestContext {
	next := rc.WithAttribute(AttrAuth, id)
	if len(id.Claims) > 0 {
		next = next.WithAttribute(AttrClaims, id.Claims)
	}
	if len(id.Scopes) > 0 {
		next = next.WithAttribute(AttrScopes, id.Scopes)
	}
	if id.UserID > 0 {
		next = next.WithAttribute(AttrUserID, id.UserID)
	}
	if id.User != nil {
		next = next.WithAttribute(AttrUser, id.User)
	}
	return next
}

// IdentityFrom returns the identity stored by an auth middleware.
func IdentityFrom(rc RequestContext) (AuthIdentity, bool) {
	return GetAttribute[AuthIdentity](rc, AttrAuth)
}

// SetCurrentUserFunc tells the host which user a request acts as.
type SetCurrentUserFunc func(ctx context.Context, userID int64)

// ScopeMatches compares one required scope with one granted scope. A
// trailing * on either side matches by prefix.
func ScopeMatches(required, granted string) bool {
	if required == granted {
		return true
	}
	if strings.HasSuffix(required, "*") {
		return strings.HasPrefix(granted, strings.TrimRight(required, "*"))
	}
	if strings.HasSuffix(granted, "*") {
		return strings.HasPrefix(required, strings.TrimRight(granted, "*"))
	}
	return false
}

// HasScopes reports whether every required scope is matched by a granted one.
func HasScopes(granted, required []string) bool {
	for _, req := range required {
		matched := false
		for _, g := range granted {
			if ScopeMatches(req, g) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

var (
	bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)
	basicPattern  = regexp.MustCompile(`(?i)^Basic\s+(.+)$`)
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(req Request) (string, bool) {
	m := bearerPattern.FindStringSubmatch(strings.TrimSpace(req.Header("Authorization")))
	if m == nil {
		return "", false
	}
	token := strings.TrimSpace(m[1])
	return token, token != ""
}
