package restroute

import (
	"regexp"
	"strings"
)

// RouteMeta is the normalized view of a route's meta map.
type RouteMeta struct {
	OperationID    string
	Tags           []string
	Scopes         []string
	Parameters     []map[string]any
	RequestSchema  string
	ResponseSchema string
	// Include reports whether the route appears in exported API documents.
	Include bool
	// Extensions holds every meta key outside the known set.
	Extensions map[string]any
}

var knownMetaKeys = map[string]bool{
	"operationId":    true,
	"tags":           true,
	"scopes":         true,
	"parameters":     true,
	"requestSchema":  true,
	"responseSchema": true,
	"openapi":        true,
}

// NormalizeMeta derives a RouteMeta from a raw meta map. The operation id
// defaults to the lower-cased method followed by the PascalCased URI
// segments; scopes fall back to policy.scopes.
func NormalizeMeta(meta map[string]any, method, uri string) RouteMeta {
	out := RouteMeta{
		Tags:       stringList(meta["tags"]),
		Scopes:     stringList(meta["scopes"]),
		Parameters: parameterList(meta["parameters"]),
		Include:    true,
		Extensions: map[string]any{},
	}

	if id, ok := meta["operationId"].(string); ok && id != "" {
		out.OperationID = id
	} else {
		out.OperationID = DefaultOperationID(method, uri)
	}
	if len(out.Scopes) == 0 {
		if policy, ok := meta["policy"].(map[string]any); ok {
			out.Scopes = stringList(policy["scopes"])
		}
	}
	out.RequestSchema, _ = meta["requestSchema"].(string)
	out.ResponseSchema, _ = meta["responseSchema"].(string)
	if oa, ok := meta["openapi"].(map[string]any); ok {
		if include, ok := oa["include"].(bool); ok {
			out.Include = include
		}
	}

	for k, v := range meta {
		if !knownMetaKeys[k] {
			out.Extensions[k] = v
		}
	}
	return out
}

// Map renders m back into the canonical meta map, extensions included.
func (m RouteMeta) Map() map[string]any {
	out := make(map[string]any, len(m.Extensions)+7)
	for k, v := range m.Extensions {
		out[k] = v
	}
	out["operationId"] = m.OperationID
	out["tags"] = m.Tags
	out["scopes"] = m.Scopes
	out["parameters"] = m.Parameters
	out["requestSchema"] = m.RequestSchema
	out["responseSchema"] = m.ResponseSchema
	out["openapi"] = map[string]any{"include": m.Include}
	return out
}

var (
	braceParam = regexp.MustCompile(`\{([A-Za-z0-9_]+)(?::[^}]*)?\}`)
	namedGroup = regexp.MustCompile(`\(\?P<([A-Za-z0-9_]+)>[^)]+\)`)
	nonIdent   = regexp.MustCompile(`[^A-Za-z0-9_]`)
)

// DefaultOperationID derives an operation id from a method and URI:
// GET /articles/{id} becomes getArticlesId and GET / becomes getRoot.
func DefaultOperationID(method, uri string) string {
	clean := strings.Trim(uri, "/")
	verb := strings.ToLower(method)
	if clean == "" {
		return verb + "Root"
	}
	clean = braceParam.ReplaceAllString(clean, "$1")
	clean = namedGroup.ReplaceAllString(clean, "$1")

	var b strings.Builder
	b.WriteString(verb)
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		b.WriteString(PascalCase(nonIdent.ReplaceAllString(seg, "_")))
	}
	return b.String()
}

// PascalCase upper-cases the first letter of every word of s, where words
// are separated by underscores, hyphens or spaces, and joins them.
func PascalCase(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	var b strings.Builder
	for _, w := range words {
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(w[1:])
	}
	return b.String()
}

func stringList(v any) []string {
	out := []string{}
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parameterList(v any) []map[string]any {
	out := []map[string]any{}
	switch list := v.(type) {
	case []map[string]any:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}
