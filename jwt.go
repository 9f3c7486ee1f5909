package restroute

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenVerifier verifies a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (map[string]any, error)
}

// HS256Verifier verifies HMAC-SHA256 signed JWTs against a shared secret.
type HS256Verifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// HS256Option configures an HS256Verifier.
type HS256Option func(*HS256Verifier)

// WithLeeway tolerates clock skew when checking nbf, iat and exp.
func WithLeeway(d time.Duration) HS256Option {
	return func(v *HS256Verifier) {
		v.leeway = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) HS256Option {
	return func(v *HS256Verifier) {
		v.now = now
	}
}

// NewHS256Verifier returns a verifier for secret, which must not be empty.
func NewHS256Verifier(secret string, opts ...HS256Option) (*HS256Verifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	v := &HS256Verifier{
		secret: []byte(secret),
		now:    time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithJSONNumber(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks the signature and the time claims of token.
func (v *HS256Verifier) Verify(token string) (map[string]any, error) {
	if strings.Count(token, ".") != 2 {
		return nil, errors.New("malformed jwt")
	}
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unsupported jwt alg %q", t.Method.Alg())
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if err := v.checkTimes(claims); err != nil {
		return nil, err
	}
	return claims, nil
}

var numericClaim = regexp.MustCompile(`^-?\d+$`)

func (v *HS256Verifier) checkTimes(claims jwt.MapClaims) error {
	for _, name := range []string{"nbf", "iat", "exp"} {
		raw, ok := claims[name]
		if !ok || raw == nil {
			continue
		}
		switch n := raw.(type) {
		case json.Number:
			if _, err := n.Int64(); err != nil {
				return fmt.Errorf("jwt claim %s must be numeric", name)
			}
		case string:
			if !numericClaim.MatchString(n) {
				return fmt.Errorf("jwt claim %s must be numeric", name)
			}
			claims[name] = json.Number(n)
		default:
			return fmt.Errorf("jwt claim %s must be numeric", name)
		}
	}

	now := v.now().Unix()
	leeway := int64(v.leeway / time.Second)
	if !claims.VerifyNotBefore(now+leeway, false) {
		return errors.New("jwt not active yet")
	}
	if !claims.VerifyIssuedAt(now+leeway, false) {
		return errors.New("jwt iat is in the future")
	}
	if !claims.VerifyExpiresAt(now-leeway, false) {
		return errors.New("jwt expired")
	}
	return nil
}

// JWTAuthConfig configures the JWTAuth middleware.
type JWTAuthConfig struct {
	Verifier       TokenVerifier
	RequiredScopes []string
	UserMapper     ClaimsUserMapper   // optional
	SetCurrentUser SetCurrentUserFunc // optional
}

// JWTAuth returns middleware that authenticates "Authorization: Bearer"
// tokens. Missing tokens fail with 401 unauthorized, rejected tokens with
// 401 invalid_token and missing scopes with 403 insufficient_scope.
func JWTAuth(cfg JWTAuthConfig) Middleware {
	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		token, ok := BearerToken(rc.Request())
		if !ok || cfg.Verifier == nil {
			return nil, NewError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized.", nil)
		}

		claims, err := cfg.Verifier.Verify(token)
		if err != nil {
			return nil, NewError(http.StatusUnauthorized, CodeInvalidToken, "Invalid token.", map[string]any{
				"reason": err.Error(),
			})
		}

		scopes := claimScopes(claims)
		if !HasScopes(scopes, cfg.RequiredScopes) {
			return nil, NewError(http.StatusForbidden, CodeInsufficientScope, "Forbidden.", nil)
		}

		var userID int64
		if cfg.UserMapper != nil {
			if id, ok := cfg.UserMapper.MapUserID(claims, rc); ok && id > 0 {
				userID = id
				if cfg.SetCurrentUser != nil {
					cfg.SetCurrentUser(rc.Context(), id)
				}
			}
		}

		return next(WithIdentity(rc, AuthIdentity{
			Provider: ProviderJWT,
			UserID:   userID,
			Subject:  claimSubject(claims),
			Claims:   claims,
			Scopes:   scopes,
		}))
	})
}

func claimScopes(claims map[string]any) []string {
	raw, ok := claims["scopes"]
	if !ok {
		raw = claims["scope"]
	}
	if s, ok := raw.(string); ok {
		return strings.Fields(s)
	}
	return stringList(raw)
}

func claimSubject(claims map[string]any) string {
	switch sub := claims["sub"].(type) {
	case string:
		return sub
	case json.Number:
		if n, err := sub.Int64(); err == nil && n > 0 {
			return sub.String()
		}
	case float64:
		if sub > 0 && sub == float64(int64(sub)) {
			return fmt.Sprintf("%d", int64(sub))
		}
	case int:
		if sub > 0 {
			return fmt.Sprintf("%d", sub)
		}
	case int64:
		if sub > 0 {
			return fmt.Sprintf("%d", sub)
		}
	}
	return ""
}
