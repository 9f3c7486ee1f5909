package restroute

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Next invokes the rest of the pipeline.
type Next func(rc RequestContext) (any, error)

// Middleware wraps the rest of a pipeline. It may short-circuit by
// returning without calling next, pass a derived RequestContext downstream,
// or post-process the result or error of next.
type Middleware interface {
	Handle(rc RequestContext, next Next) (any, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(rc RequestContext, next Next) (any, error)

// Handle calls f.
func (f MiddlewareFunc) Handle(rc RequestContext, next Next) (any, error) { return f(rc, next) }

// MiddlewareKey is a middleware declared by name and resolved through a
// MiddlewareFactory when the pipeline is built.
type MiddlewareKey string

// Handle fails: keys must be resolved before a pipeline runs.
func (k MiddlewareKey) Handle(RequestContext, Next) (any, error) {
	return nil, configErrorf("middleware %q was not resolved", string(k))
}

// MiddlewareFactory builds named middlewares.
type MiddlewareFactory interface {
	Middleware(key string) (Middleware, error)
}

// Registry is a concurrency-safe MiddlewareFactory backed by constructors.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]func() (Middleware, error)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]func() (Middleware, error))}
}

// Register binds key to a constructor.
func (r *Registry) Register(key string, ctor func() (Middleware, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[key] = ctor
}

// RegisterValue binds key to an already-built middleware.
func (r *Registry) RegisterValue(key string, mw Middleware) {
	r.Register(key, func() (Middleware, error) { return mw, nil })
}

// Middleware builds the middleware registered under key.
func (r *Registry) Middleware(key string) (Middleware, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[key]
	r.mu.RUnlock()
	if !ok {
		return nil, configErrorf("middleware %q is not registered", key)
	}
	mw, err := ctor()
	if err != nil {
		return nil, configErrorf("middleware %q: %v", key, err)
	}
	return mw, nil
}

// Pipeline composes middlewares around a destination.
type Pipeline struct {
	Factory MiddlewareFactory
}

// Resolve replaces every MiddlewareKey with the middleware its factory builds.
func (p Pipeline) Resolve(mws []Middleware) ([]Middleware, error) {
	out := make([]Middleware, 0, len(mws))
	for i, mw := range mws {
		switch v := mw.(type) {
		case nil:
			return nil, configErrorf("middleware at position %d is nil", i)
		case MiddlewareKey:
			if p.Factory == nil {
				return nil, configErrorf("middleware %q requires a middleware factory", string(v))
			}
			resolved, err := p.Factory.Middleware(string(v))
			if err != nil {
				return nil, err
			}
			out = append(out, resolved)
		default:
			out = append(out, mw)
		}
	}
	return out, nil
}

// Build folds mws right-to-left around destination so that mws[0] runs
// first and has outermost control.
func (p Pipeline) Build(mws []Middleware, destination Next) (Next, error) {
	resolved, err := p.Resolve(mws)
	if err != nil {
		return nil, err
	}
	next := destination
	for i := len(resolved) - 1; i >= 0; i-- {
		next = wrap(resolved[i], next)
	}
	return next, nil
}

// Process builds the pipeline and runs it once.
func (p Pipeline) Process(rc RequestContext, mws []Middleware, destination Next) (any, error) {
	next, err := p.Build(mws, destination)
	if err != nil {
		return nil, err
	}
	return next(rc)
}

func wrap(mw Middleware, next Next) Next {
	return func(rc RequestContext) (any, error) {
		return mw.Handle(rc, next)
	}
}

// Recovery returns middleware that converts panics raised downstream into
// a *PanicError.
func Recovery(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return MiddlewareFunc(func(rc RequestContext, next Next) (result any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"panic", rec,
					"stack", string(debug.Stack()),
					"request_id", rc.RequestID(),
					"route", rc.RoutePath(),
				)
				result, err = nil, &PanicError{Value: rec}
			}
		}()
		return next(rc)
	})
}
