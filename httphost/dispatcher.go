package httphost

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bjaus/restroute"
)

var chiMethods = map[string]bool{
	http.MethodGet: true, http.MethodHead: true, http.MethodPost: true,
	http.MethodPut: true, http.MethodPatch: true, http.MethodDelete: true,
	http.MethodOptions: true, http.MethodConnect: true, http.MethodTrace: true,
}

var namedGroup = regexp.MustCompile(`\(\?P<([A-Za-z0-9_]+)>([^)]+)\)`)

// Dispatcher binds restroute routes into a chi route table and serves
// them. It implements restroute.Dispatcher and http.Handler.
type Dispatcher struct {
	mux      chi.Router
	prefix   string
	maxBytes int64
	encoders encoders
	logger   *slog.Logger
	newID    func() string
}

var (
	_ restroute.Dispatcher = (*Dispatcher)(nil)
	_ http.Handler         = (*Dispatcher)(nil)
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrefix mounts every namespace under prefix, e.g. "/wp-json".
func WithPrefix(prefix string) Option {
	return func(d *Dispatcher) {
		d.prefix = "/" + strings.Trim(prefix, "/")
		if d.prefix == "/" {
			d.prefix = ""
		}
	}
}

// WithMaxBodyBytes caps request bodies. Default: DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(d *Dispatcher) {
		d.maxBytes = n
	}
}

// WithEncoder adds a response encoder selectable through Accept.
func WithEncoder(enc Encoder) Option {
	return func(d *Dispatcher) {
		d.encoders = append(d.encoders, enc)
	}
}

// WithLogger sets the logger for response write failures.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// WithMiddleware installs net/http middleware in front of every route.
// It must be given before any route is registered.
func WithMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(d *Dispatcher) {
		d.mux.Use(mws...)
	}
}

// New returns an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		mux:      chi.NewRouter(),
		maxBytes: DefaultMaxBodyBytes,
		encoders: newEncoders(nil),
		logger:   slog.Default(),
		newID:    restroute.NewRequestID,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mux exposes the chi router for mounting non-restroute handlers such as
// a metrics endpoint.
func (d *Dispatcher) Mux() chi.Router { return d.mux }

// Pattern returns the chi pattern a route is served at. Named regex
// groups are rewritten to chi's {name:regex} form.
func (d *Dispatcher) Pattern(namespace, uri string) string {
	uri = namedGroup.ReplaceAllString(strings.Trim(uri, "/"), "{$1:$2}")
	pattern := d.prefix + "/" + strings.Trim(namespace, "/")
	if uri != "" {
		pattern += "/" + uri
	}
	return pattern
}

// Register implements restroute.Dispatcher.
func (d *Dispatcher) Register(namespace string, def restroute.RouteDefinition, callback restroute.Callback, permission restroute.PermissionFunc) error {
	method := strings.ToUpper(def.Method)
	if !chiMethods[method] {
		return &restroute.ConfigError{Message: "httphost: unsupported method " + def.Method}
	}
	if callback == nil {
		return &restroute.ConfigError{Message: "httphost: nil callback for " + method + " " + def.URI}
	}
	if permission == nil {
		permission = restroute.AllowAll
	}
	d.mux.Method(method, d.Pattern(namespace, def.URI), d.handler(callback, permission))
	return nil
}

// Mount registers every route of routers on d.
func (d *Dispatcher) Mount(routers ...interface{ Register(restroute.Dispatcher) error }) error {
	for _, r := range routers {
		if err := r.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.ServeHTTP(w, r)
}

func (d *Dispatcher) handler(callback restroute.Callback, permission restroute.PermissionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := NewRequest(r, urlParams(r), d.maxBytes)
		if err != nil {
			d.write(w, r, restroute.NormalizeError(err, d.requestID(r)))
			return
		}
		if !permission(req) {
			forbidden := restroute.NewError(http.StatusForbidden, restroute.CodeForbidden, "Sorry, you are not allowed to do that.", nil)
			d.write(w, r, restroute.NormalizeError(forbidden, d.requestID(r)))
			return
		}
		d.write(w, r, callback(req))
	}
}

func (d *Dispatcher) requestID(r *http.Request) string {
	if id := r.Header.Get(restroute.RequestIDHeader); id != "" {
		return id
	}
	return d.newID()
}

func urlParams(r *http.Request) map[string]string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return nil
	}
	out := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		if key == "*" {
			continue
		}
		out[key] = rctx.URLParams.Values[i]
	}
	return out
}

// write serves a callback result: native handlers run as-is, responses are
// encoded, any other value is encoded with status 200.
func (d *Dispatcher) write(w http.ResponseWriter, r *http.Request, out any) {
	if h, ok := out.(http.Handler); ok {
		h.ServeHTTP(w, r)
		return
	}
	resp, ok := out.(*restroute.Response)
	if !ok || resp == nil {
		resp = restroute.NewResponse(out, http.StatusOK)
	}

	enc, ok := d.encoders.negotiate(r.Header.Get("Accept"))
	if !ok {
		enc = d.encoders[0]
		resp = restroute.NormalizeError(
			restroute.NewError(http.StatusNotAcceptable, restroute.CodeInvalidRequest, "No acceptable response media type.", map[string]any{
				"available": d.contentTypes(),
			}),
			d.requestID(r),
		)
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	status := resp.StatusCode()
	if status == http.StatusNoContent || status == http.StatusNotModified || r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", enc.ContentType())
	w.WriteHeader(status)
	if err := enc.Encode(w, resp.Body); err != nil {
		d.logger.LogAttrs(r.Context(), slog.LevelError, "encode response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) contentTypes() []string {
	out := make([]string, len(d.encoders))
	for i, enc := range d.encoders {
		out[i] = enc.ContentType()
	}
	return out
}
