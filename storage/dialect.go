package storage

import (
	"fmt"
	"strings"
)

// Dialect renders identifiers and placeholders for one database family.
type Dialect interface {
	// Quote wraps an already validated identifier.
	Quote(ident string) string
	// Placeholder renders the n-th (1-based) bound value v.
	Placeholder(n int, v any) string
	// Returning reports whether inserts report the new key through
	// INSERT ... RETURNING instead of the last insert id.
	Returning() bool
}

// WPDialect targets MySQL through a host client that binds printf-style
// placeholders: %d for integers and booleans, %f for floats, %s otherwise.
type WPDialect struct{}

func (WPDialect) Quote(ident string) string { return "`" + ident + "`" }

func (WPDialect) Placeholder(_ int, v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return "%d"
	case float32, float64:
		return "%f"
	default:
		return "%s"
	}
}

func (WPDialect) Returning() bool { return false }

// PostgresDialect targets PostgreSQL with numbered placeholders.
type PostgresDialect struct{}

func (PostgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (PostgresDialect) Placeholder(n int, _ any) string { return fmt.Sprintf("$%d", n) }

func (PostgresDialect) Returning() bool { return true }
