package restroute

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// ErrNoHost is returned by NullDispatcher.
var ErrNoHost = errors.New("restroute: no host dispatcher is configured")

// Callback is the function a host invokes for a matched route. It returns
// the host-shaped response produced by the router's HostAdapter.
type Callback func(req Request) any

// Dispatcher binds routes into a host routing table.
type Dispatcher interface {
	Register(namespace string, def RouteDefinition, callback Callback, permission PermissionFunc) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(namespace string, def RouteDefinition, callback Callback, permission PermissionFunc) error

// Register calls f.
func (f DispatcherFunc) Register(namespace string, def RouteDefinition, callback Callback, permission PermissionFunc) error {
	return f(namespace, def, callback, permission)
}

// NullDispatcher fails every registration. It stands in when no host is
// available.
type NullDispatcher struct{}

// Register returns ErrNoHost.
func (NullDispatcher) Register(namespace string, def RouteDefinition, _ Callback, _ PermissionFunc) error {
	return fmt.Errorf("%w: cannot register %s /%s%s", ErrNoHost, def.Method, namespace, def.URI)
}

// Binding is one route bound into a MemoryDispatcher.
type Binding struct {
	Namespace  string
	Definition RouteDefinition
	Callback   Callback
	Permission PermissionFunc
}

// Allowed runs the permission check of the binding.
func (b Binding) Allowed(req Request) bool {
	return b.Permission == nil || b.Permission(req)
}

// MemoryDispatcher records bindings in memory. It backs tests and tools
// that invoke routes without a host.
type MemoryDispatcher struct {
	mu       sync.Mutex
	bindings []Binding
}

// Register records the binding.
func (m *MemoryDispatcher) Register(namespace string, def RouteDefinition, callback Callback, permission PermissionFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, Binding{
		Namespace:  namespace,
		Definition: def,
		Callback:   callback,
		Permission: permission,
	})
	return nil
}

// Bindings returns the recorded bindings in registration order.
func (m *MemoryDispatcher) Bindings() []Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Binding(nil), m.bindings...)
}

// Find returns the binding for method and URI pattern.
func (m *MemoryDispatcher) Find(method, uri string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		if b.Definition.Method == strings.ToUpper(method) && b.Definition.URI == uri {
			return b, true
		}
	}
	return Binding{}, false
}

// Register resolves every route's handler and middleware pipeline and binds
// it through d. A nil d uses NullDispatcher. Resolution failures are
// returned before any route is bound.
func (r *Router) Register(d Dispatcher) error {
	if d == nil {
		d = NullDispatcher{}
	}

	type bound struct {
		def      RouteDefinition
		callback Callback
	}
	routes := r.Routes()
	pending := make([]bound, 0, len(routes))
	for _, def := range routes {
		handler, err := ResolveHandler(def.Handler, r.handlers)
		if err != nil {
			return fmt.Errorf("route %s %s: %w", def.Method, def.URI, err)
		}
		chain, err := r.pipeline.Build(def.Middlewares, func(rc RequestContext) (any, error) {
			return handler(rc, rc.Request())
		})
		if err != nil {
			return fmt.Errorf("route %s %s: %w", def.Method, def.URI, err)
		}
		pending = append(pending, bound{def: def, callback: r.callback(def, chain)})
	}

	for _, b := range pending {
		permission := b.def.Permission
		if permission == nil {
			permission = AllowAll
		}
		if err := d.Register(r.Namespace(), b.def, b.callback, permission); err != nil {
			return err
		}
	}
	return nil
}

// AllowAll is the permission check of routes that declare none.
func AllowAll(Request) bool { return true }

func (r *Router) callback(def RouteDefinition, chain Next) Callback {
	routePath := "/" + r.Namespace()
	if def.URI != "/" {
		routePath += def.URI
	}
	return func(req Request) any {
		requestID := RequestIDFrom(req, r.newID)
		rc := NewRequestContext(req.Context(), requestID, routePath, req)

		result, err := run(rc, chain)
		var normalized any
		if err != nil {
			resp := NormalizeError(err, requestID)
			if resp.StatusCode() >= http.StatusInternalServerError {
				r.logger.LogAttrs(rc.Context(), slog.LevelError, "request failed",
					slog.String("request_id", requestID),
					slog.String("route", routePath),
					slog.String("method", def.Method),
					slog.String("error", err.Error()),
				)
			}
			normalized = resp
		} else {
			normalized = NormalizeResult(result, requestID, r.host)
		}

		if resp, ok := normalized.(*Response); ok {
			return r.host.Convert(resp)
		}
		return normalized
	}
}

func run(rc RequestContext, chain Next) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, &PanicError{Value: rec}
		}
	}()
	return chain(rc)
}
