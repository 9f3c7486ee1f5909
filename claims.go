package restroute

import (
	"context"
	"encoding/json"
	"strconv"
)

// ClaimsUserMapper maps verified token claims to a host user id.
type ClaimsUserMapper interface {
	MapUserID(claims map[string]any, rc RequestContext) (int64, bool)
}

// UserLookup finds a host user id by a field such as "email" or "login".
type UserLookup interface {
	FindUserID(ctx context.Context, field, value string) (int64, bool)
}

// ClaimsMapper resolves a user id from claims. A custom Resolve runs first,
// then id claims, then email and login claims through Lookup.
type ClaimsMapper struct {
	IDClaims    []string // default: user_id, uid, wp_user_id, sub
	EmailClaims []string // default: email
	LoginClaims []string // default: username, login, user_login
	Resolve     func(claims map[string]any, rc RequestContext) (int64, bool)
	Lookup      UserLookup
}

// MapUserID implements ClaimsUserMapper.
func (m ClaimsMapper) MapUserID(claims map[string]any, rc RequestContext) (int64, bool) {
	if m.Resolve != nil {
		if id, ok := m.Resolve(claims, rc); ok && id > 0 {
			return id, true
		}
	}

	for _, key := range orDefault(m.IDClaims, "user_id", "uid", "wp_user_id", "sub") {
		if id, ok := positiveID(claims[key]); ok {
			return id, true
		}
	}

	if m.Lookup == nil {
		return 0, false
	}
	lookups := []struct {
		field string
		keys  []string
	}{
		{"email", orDefault(m.EmailClaims, "email")},
		{"login", orDefault(m.LoginClaims, "username", "login", "user_login")},
	}
	for _, l := range lookups {
		for _, key := range l.keys {
			value, ok := claims[key].(string)
			if !ok || value == "" {
				continue
			}
			if id, ok := m.Lookup.FindUserID(rc.Context(), l.field, value); ok && id > 0 {
				return id, true
			}
		}
	}
	return 0, false
}

func orDefault(list []string, defaults ...string) []string {
	if len(list) > 0 {
		return list
	}
	return defaults
}

// positiveID accepts positive integers and strings of digits.
func positiveID(v any) (int64, bool) {
	var id int64
	switch n := v.(type) {
	case int:
		id = int64(n)
	case int64:
		id = n
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		id = int64(n)
	case json.Number:
		parsed, err := n.Int64()
		if err != nil {
			return 0, false
		}
		id = parsed
	case string:
		if !isDigits(n) {
			return 0, false
		}
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	default:
		return 0, false
	}
	return id, id > 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
