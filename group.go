package restroute

import "net/http"

// Scope declares routes under a prefix with a fixed middleware list and
// default tags. Scopes are values: Group derives a child scope and never
// changes the parent.
type Scope struct {
	router     *Router
	prefix     string
	middleware []Middleware
	tags       []string
}

// GroupOption configures a child scope.
type GroupOption func(*Scope)

// WithGroupMiddleware adds middlewares to the group. They run after the
// middlewares of enclosing scopes.
func WithGroupMiddleware(mws ...Middleware) GroupOption {
	return func(s *Scope) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithGroupTags adds default tags to all routes declared in the group.
func WithGroupTags(tags ...string) GroupOption {
	return func(s *Scope) {
		s.tags = append(s.tags, tags...)
	}
}

// Group runs fn with a child scope whose prefix is s's prefix followed by
// prefix. The child scope is discarded when fn returns.
func (s Scope) Group(prefix string, fn func(Scope), opts ...GroupOption) {
	child := Scope{
		router:     s.router,
		prefix:     joinURI(s.prefix, prefix),
		middleware: append([]Middleware(nil), s.middleware...),
		tags:       append([]string(nil), s.tags...),
	}
	for _, opt := range opts {
		opt(&child)
	}
	fn(child)
}

// Prefix returns the URI prefix of s.
func (s Scope) Prefix() string { return s.prefix }

// Handle declares a route with an arbitrary method.
func (s Scope) Handle(method, uri string, handler any) *RouteBuilder {
	def := RouteDefinition{
		Method:  method,
		URI:     joinURI(s.prefix, uri),
		Handler: handler,
		Meta:    map[string]any{},
	}
	if len(s.tags) > 0 {
		def.Meta["tags"] = append([]string(nil), s.tags...)
	}
	return s.router.add(def, s.middleware)
}

// Get declares a GET route.
func (s Scope) Get(uri string, handler any) *RouteBuilder {
	return s.Handle(http.MethodGet, uri, handler)
}

// Post declares a POST route.
func (s Scope) Post(uri string, handler any) *RouteBuilder {
	return s.Handle(http.MethodPost, uri, handler)
}

// Put declares a PUT route.
func (s Scope) Put(uri string, handler any) *RouteBuilder {
	return s.Handle(http.MethodPut, uri, handler)
}

// Patch declares a PATCH route.
func (s Scope) Patch(uri string, handler any) *RouteBuilder {
	return s.Handle(http.MethodPatch, uri, handler)
}

// Delete declares a DELETE route.
func (s Scope) Delete(uri string, handler any) *RouteBuilder {
	return s.Handle(http.MethodDelete, uri, handler)
}

func joinURI(prefix, uri string) string {
	p := NormalizeURI(prefix)
	u := NormalizeURI(uri)
	switch {
	case p == "/":
		return u
	case u == "/":
		return p
	default:
		return p + u
	}
}
