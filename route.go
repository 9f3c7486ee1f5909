package restroute

import "strings"

// PermissionFunc decides whether the current caller may invoke a route.
type PermissionFunc func(req Request) bool

// RouteDefinition describes one declared route. It is a value: the With
// methods return modified copies.
type RouteDefinition struct {
	Method      string
	URI         string
	Handler     any
	Middlewares []Middleware
	Args        map[string]any
	Permission  PermissionFunc
	Meta        map[string]any
}

// WithMiddlewares returns a copy of d with mws appended.
func (d RouteDefinition) WithMiddlewares(mws ...Middleware) RouteDefinition {
	list := make([]Middleware, 0, len(d.Middlewares)+len(mws))
	list = append(list, d.Middlewares...)
	d.Middlewares = append(list, mws...)
	return d
}

// WithArgs returns a copy of d with its argument schema replaced.
func (d RouteDefinition) WithArgs(args map[string]any) RouteDefinition {
	d.Args = copyMap(args)
	return d
}

// WithMeta returns a copy of d with meta merged over the existing keys.
func (d RouteDefinition) WithMeta(meta map[string]any) RouteDefinition {
	merged := copyMap(d.Meta)
	for k, v := range meta {
		merged[k] = v
	}
	d.Meta = merged
	return d
}

// WithPermission returns a copy of d using fn as its permission check.
func (d RouteDefinition) WithPermission(fn PermissionFunc) RouteDefinition {
	d.Permission = fn
	return d
}

// RouteMeta returns the normalized meta of d.
func (d RouteDefinition) RouteMeta() RouteMeta {
	return NormalizeMeta(d.Meta, d.Method, d.URI)
}

// Contract is the (namespace, method, path, args, meta) record describing
// one route to API documentation tooling.
type Contract struct {
	Namespace string
	Method    string
	Path      string
	Args      map[string]any
	Meta      RouteMeta
}

// ContractSource is implemented by anything that declares routes.
type ContractSource interface {
	Contracts(openAPIOnly bool) []Contract
}

// RouteBuilder refines the most recently declared route.
type RouteBuilder struct {
	router *Router
	index  int
}

// Middleware appends route-level middlewares, which run after global and
// group middlewares.
func (b *RouteBuilder) Middleware(mws ...Middleware) *RouteBuilder {
	b.router.update(b.index, func(d RouteDefinition) RouteDefinition { return d.WithMiddlewares(mws...) })
	return b
}

// Args sets the argument schema handed to the host.
func (b *RouteBuilder) Args(args map[string]any) *RouteBuilder {
	b.router.update(b.index, func(d RouteDefinition) RouteDefinition { return d.WithArgs(args) })
	return b
}

// Meta merges meta into the route meta.
func (b *RouteBuilder) Meta(meta map[string]any) *RouteBuilder {
	b.router.update(b.index, func(d RouteDefinition) RouteDefinition { return d.WithMeta(meta) })
	return b
}

// Permission sets the permission check of the route.
func (b *RouteBuilder) Permission(fn PermissionFunc) *RouteBuilder {
	b.router.update(b.index, func(d RouteDefinition) RouteDefinition { return d.WithPermission(fn) })
	return b
}

// Definition returns the current definition of the route.
func (b *RouteBuilder) Definition() RouteDefinition {
	return b.router.route(b.index)
}

// NormalizeURI returns uri with one leading slash and no trailing slash,
// except for the root.
func NormalizeURI(uri string) string {
	trimmed := strings.Trim(uri, "/")
	if trimmed == "" {
		return "/"
	}
	return "/" + trimmed
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
