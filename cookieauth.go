package restroute

import (
	"net/http"
	"strings"
)

// CookieNonceConfig configures the CookieNonceAuth middleware. The zero
// value requires both a logged-in session and a valid nonce.
type CookieNonceConfig struct {
	Action         string // default: "wp_rest"
	SkipNonce      bool
	AllowAnonymous bool

	IsLoggedIn    func(req Request) bool
	VerifyNonce   func(nonce, action string) bool
	CurrentUserID func(req Request) int64
}

// CookieNonceAuth returns middleware that trusts the host's cookie session
// when the request carries a valid nonce in the X-WP-Nonce header or the
// _wpnonce parameter.
func CookieNonceAuth(cfg CookieNonceConfig) Middleware {
	if cfg.Action == "" {
		cfg.Action = "wp_rest"
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		req := rc.Request()
		if !cfg.AllowAnonymous && (cfg.IsLoggedIn == nil || !cfg.IsLoggedIn(req)) {
			return nil, NewError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized.", nil)
		}
		if !cfg.SkipNonce {
			nonce := requestNonce(req)
			if nonce == "" || cfg.VerifyNonce == nil || !cfg.VerifyNonce(nonce, cfg.Action) {
				return nil, NewError(http.StatusForbidden, CodeInvalidNonce, "Invalid nonce.", nil)
			}
		}

		var userID int64
		if cfg.CurrentUserID != nil {
			userID = cfg.CurrentUserID(req)
		}
		return next(WithIdentity(rc, AuthIdentity{
			Provider: ProviderCookieNonce,
			UserID:   userID,
		}))
	})
}

func requestNonce(req Request) string {
	if nonce := strings.TrimSpace(req.Header("X-WP-Nonce")); nonce != "" {
		return nonce
	}
	if v, ok := req.Param("_wpnonce"); ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}
