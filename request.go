package restroute

import (
	"context"
	"strings"
)

// Request is the host request as seen by handlers and middlewares. Hosts
// parse the inbound call; the core only reads from it.
type Request interface {
	Context() context.Context
	Method() string
	Header(name string) string
	PathParams() map[string]string
	QueryParams() map[string]any
	BodyParams() map[string]any
	JSONParams() map[string]any
	Params() map[string]any
	Param(name string) (any, bool)
}

// MergeParams flattens the parameter sources of r. Later sources win:
// query, form body, JSON body, then path parameters.
func MergeParams(r Request) map[string]any {
	out := make(map[string]any)
	for k, v := range r.QueryParams() {
		out[k] = v
	}
	for k, v := range r.BodyParams() {
		out[k] = v
	}
	for k, v := range r.JSONParams() {
		out[k] = v
	}
	for k, v := range r.PathParams() {
		out[k] = v
	}
	return out
}

// StaticRequest is an in-memory Request. It is used by tests and by hosts
// that have already decoded the inbound call into maps.
type StaticRequest struct {
	Ctx     context.Context
	Verb    string
	Headers map[string]string
	Path    map[string]string
	Query   map[string]any
	Form    map[string]any
	JSON    map[string]any
}

var _ Request = (*StaticRequest)(nil)

// Context returns the request context, never nil.
func (r *StaticRequest) Context() context.Context {
	if r.Ctx == nil {
		return context.Background()
	}
	return r.Ctx
}

// Method returns the upper-cased verb, GET when unset.
func (r *StaticRequest) Method() string {
	if r.Verb == "" {
		return "GET"
	}
	return strings.ToUpper(r.Verb)
}

// Header looks up a header case-insensitively.
func (r *StaticRequest) Header(name string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (r *StaticRequest) PathParams() map[string]string { return r.Path }
func (r *StaticRequest) QueryParams() map[string]any   { return r.Query }
func (r *StaticRequest) BodyParams() map[string]any    { return r.Form }
func (r *StaticRequest) JSONParams() map[string]any    { return r.JSON }
func (r *StaticRequest) Params() map[string]any        { return MergeParams(r) }

// Param returns one merged parameter.
func (r *StaticRequest) Param(name string) (any, bool) {
	v, ok := MergeParams(r)[name]
	return v, ok
}
