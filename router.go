package restroute

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
)

// Router holds the route table of one namespace (vendor/version) together
// with the collaborators used to build and dispatch route pipelines.
type Router struct {
	vendor  string
	version string

	global []Middleware
	routes []RouteDefinition

	pipeline Pipeline
	handlers HandlerFactory
	host     HostAdapter
	logger   *slog.Logger
	newID    func() string

	mu sync.Mutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithMiddlewareFactory sets the factory resolving MiddlewareKey values.
func WithMiddlewareFactory(f MiddlewareFactory) RouterOption {
	return func(r *Router) {
		r.pipeline.Factory = f
	}
}

// WithHandlerFactory sets the factory resolving HandlerKey values.
func WithHandlerFactory(f HandlerFactory) RouterOption {
	return func(r *Router) {
		r.handlers = f
	}
}

// WithHostAdapter selects the host the router returns responses to.
func WithHostAdapter(h HostAdapter) RouterOption {
	return func(r *Router) {
		r.host = h
	}
}

// WithLogger sets the logger used for failed requests.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithRequestIDGenerator overrides how request ids are generated when the
// inbound request carries none.
func WithRequestIDGenerator(fn func() string) RouterOption {
	return func(r *Router) {
		r.newID = fn
	}
}

// NewRouter creates a Router for the vendor/version namespace.
func NewRouter(vendor, version string, opts ...RouterOption) *Router {
	r := &Router{
		vendor:  vendor,
		version: version,
		host:    PassthroughAdapter{},
		logger:  slog.Default(),
		newID:   NewRequestID,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.host == nil {
		r.host = PassthroughAdapter{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Namespace returns vendor/version.
func (r *Router) Namespace() string {
	return strings.Trim(r.vendor, "/") + "/" + strings.Trim(r.version, "/")
}

var namespacePart = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// SplitNamespace splits "vendor[/...]/version" at its last segment. Every
// segment must be non-empty and made of letters, digits, '_', '.' or '-'.
func SplitNamespace(ns string) (vendor, version string, err error) {
	parts := strings.Split(strings.Trim(ns, "/"), "/")
	if len(parts) < 2 {
		return "", "", configErrorf("namespace %q must look like vendor/version", ns)
	}
	for _, p := range parts {
		if !namespacePart.MatchString(p) {
			return "", "", configErrorf("namespace %q has an invalid segment %q", ns, p)
		}
	}
	last := len(parts) - 1
	return strings.Join(parts[:last], "/"), parts[last], nil
}

// Use adds global middleware. Routes capture the global list at the time
// they are declared.
func (r *Router) Use(mws ...Middleware) *Router {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = append(r.global, mws...)
	return r
}

// Root returns the top-level scope.
func (r *Router) Root() Scope {
	return Scope{router: r, prefix: "/"}
}

// Group runs fn with a scope rooted at prefix.
func (r *Router) Group(prefix string, fn func(Scope), opts ...GroupOption) *Router {
	r.Root().Group(prefix, fn, opts...)
	return r
}

// Get declares a GET route at the top level.
func (r *Router) Get(uri string, handler any) *RouteBuilder {
	return r.Root().Get(uri, handler)
}

// Post declares a POST route at the top level.
func (r *Router) Post(uri string, handler any) *RouteBuilder {
	return r.Root().Post(uri, handler)
}

// Put declares a PUT route at the top level.
func (r *Router) Put(uri string, handler any) *RouteBuilder {
	return r.Root().Put(uri, handler)
}

// Patch declares a PATCH route at the top level.
func (r *Router) Patch(uri string, handler any) *RouteBuilder {
	return r.Root().Patch(uri, handler)
}

// Delete declares a DELETE route at the top level.
func (r *Router) Delete(uri string, handler any) *RouteBuilder {
	return r.Root().Delete(uri, handler)
}

// Routes returns a snapshot of the declared routes.
func (r *Router) Routes() []RouteDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RouteDefinition, len(r.routes))
	copy(out, r.routes)
	return out
}

// Contracts returns one contract per route. With openAPIOnly set, routes
// whose meta excludes them from API documents are skipped.
func (r *Router) Contracts(openAPIOnly bool) []Contract {
	routes := r.Routes()
	out := make([]Contract, 0, len(routes))
	for _, def := range routes {
		meta := def.RouteMeta()
		if openAPIOnly && !meta.Include {
			continue
		}
		out = append(out, Contract{
			Namespace: r.Namespace(),
			Method:    def.Method,
			Path:      def.URI,
			Args:      copyMap(def.Args),
			Meta:      meta,
		})
	}
	return out
}

func (r *Router) add(def RouteDefinition, scoped []Middleware) *RouteBuilder {
	r.mu.Lock()
	defer r.mu.Unlock()

	def.Method = strings.ToUpper(def.Method)
	if def.Method == "" {
		def.Method = http.MethodGet
	}
	def.URI = NormalizeURI(def.URI)
	mws := make([]Middleware, 0, len(r.global)+len(scoped))
	mws = append(mws, r.global...)
	def.Middlewares = append(mws, scoped...)

	r.routes = append(r.routes, def)
	return &RouteBuilder{router: r, index: len(r.routes) - 1}
}

func (r *Router) update(index int, fn func(RouteDefinition) RouteDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[index] = fn(r.routes[index])
}

func (r *Router) route(index int) RouteDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[index]
}
