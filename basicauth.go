package restroute

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
)

// PasswordAuthenticator checks an application password. It returns the
// host user id and an optional user value.
type PasswordAuthenticator func(ctx context.Context, username, password string, req Request) (userID int64, user any, err error)

// ApplicationPasswordConfig configures the ApplicationPasswordAuth middleware.
type ApplicationPasswordConfig struct {
	Authenticate   PasswordAuthenticator
	SetCurrentUser SetCurrentUserFunc // optional
}

// ApplicationPasswordAuth returns middleware that authenticates
// "Authorization: Basic" credentials through cfg.Authenticate.
func ApplicationPasswordAuth(cfg ApplicationPasswordConfig) Middleware {
	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		username, password, err := basicCredentials(rc.Request())
		if err != nil {
			return nil, err
		}

		invalid := NewError(http.StatusUnauthorized, CodeInvalidCredentials, "Invalid application credentials.", nil)
		if cfg.Authenticate == nil {
			return nil, invalid
		}
		userID, user, authErr := cfg.Authenticate(rc.Context(), username, password, rc.Request())
		if authErr != nil || userID < 1 {
			return nil, invalid
		}
		if cfg.SetCurrentUser != nil {
			cfg.SetCurrentUser(rc.Context(), userID)
		}

		return next(WithIdentity(rc, AuthIdentity{
			Provider: ProviderApplicationPassword,
			UserID:   userID,
			User:     user,
		}))
	})
}

func basicCredentials(req Request) (string, string, error) {
	header := strings.TrimSpace(req.Header("Authorization"))
	if header == "" {
		return "", "", NewError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized.", nil)
	}
	malformed := NewError(http.StatusUnauthorized, CodeInvalidAuthorizationHeader, "Invalid Authorization header.", nil)

	m := basicPattern.FindStringSubmatch(header)
	if m == nil {
		return "", "", malformed
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(m[1]))
	if err != nil {
		return "", "", malformed
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" || password == "" {
		return "", "", malformed
	}
	return username, password, nil
}
