package restroute

// Handler is the terminal step of a route pipeline.
type Handler interface {
	Serve(rc RequestContext, req Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(rc RequestContext, req Request) (any, error)

// Serve calls f.
func (f HandlerFunc) Serve(rc RequestContext, req Request) (any, error) { return f(rc, req) }

// HandlerKey names a handler resolved through a HandlerFactory when routes
// are registered.
type HandlerKey string

// HandlerFactory resolves handler keys.
type HandlerFactory interface {
	Handler(key string) (Handler, bool)
}

// Handlers is a map-backed HandlerFactory.
type Handlers map[string]Handler

// Handler returns the handler registered under key.
func (h Handlers) Handler(key string) (Handler, bool) {
	v, ok := h[key]
	return v, ok
}

// ResolveHandler picks the invocation shape of h once. Supported shapes:
//
//	func() (any, error)
//	func(RequestContext) (any, error)
//	func(Request) (any, error)
//	func(RequestContext, Request) (any, error)
//	Handler, HandlerFunc
//	HandlerKey (looked up in factory)
func ResolveHandler(h any, factory HandlerFactory) (HandlerFunc, error) {
	switch fn := h.(type) {
	case nil:
		return nil, configErrorf("route handler must be callable, got nil")
	case HandlerFunc:
		return fn, nil
	case func() (any, error):
		return func(RequestContext, Request) (any, error) { return fn() }, nil
	case func(RequestContext) (any, error):
		return func(rc RequestContext, _ Request) (any, error) { return fn(rc) }, nil
	case func(Request) (any, error):
		return func(_ RequestContext, req Request) (any, error) { return fn(req) }, nil
	case func(RequestContext, Request) (any, error):
		return fn, nil
	case Handler:
		return fn.Serve, nil
	case HandlerKey:
		if factory == nil {
			return nil, configErrorf("handler %q requires a handler factory", string(fn))
		}
		resolved, ok := factory.Handler(string(fn))
		if !ok || resolved == nil {
			return nil, configErrorf("handler %q is not registered", string(fn))
		}
		return resolved.Serve, nil
	default:
		return nil, configErrorf("route handler must be callable, got %T", h)
	}
}
