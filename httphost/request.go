// Package httphost runs restroute routers on net/http. Routes are bound
// into a chi route table under /<namespace><uri>; inbound requests are
// parsed into Request values and normalized responses are encoded with
// the codec negotiated from the Accept header.
package httphost

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/bjaus/restroute"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Request is a parsed *http.Request.
type Request struct {
	raw   *http.Request
	path  map[string]string
	query map[string]any
	form  map[string]any
	json  map[string]any
}

var _ restroute.Request = (*Request)(nil)

// NewRequest reads and parses r. Query strings become strings, or lists
// when a key repeats or ends in "[]". JSON bodies must be objects. Bodies
// above maxBytes fail with 413; maxBytes <= 0 selects DefaultMaxBodyBytes.
func NewRequest(r *http.Request, path map[string]string, maxBytes int64) (*Request, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	if path == nil {
		path = map[string]string{}
	}
	req := &Request{
		raw:   r,
		path:  path,
		query: values(r.URL.Query()),
		form:  map[string]any{},
		json:  map[string]any{},
	}
	if r.Body == nil || r.Body == http.NoBody {
		return req, nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err)
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return req, nil
		}
		if err := json.Unmarshal(body, &req.json); err != nil {
			return nil, restroute.NewError(http.StatusBadRequest, restroute.CodeInvalidRequest, "Invalid JSON body.", map[string]any{
				"reason": err.Error(),
			})
		}
	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err)
		}
		req.form = values(r.PostForm)
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			return nil, bodyError(err)
		}
		req.form = values(r.MultipartForm.Value)
	}
	return req, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return restroute.Errorf(http.StatusRequestEntityTooLarge, restroute.CodeInvalidRequest,
			"Request body exceeds %d bytes.", tooLarge.Limit)
	}
	return restroute.NewError(http.StatusBadRequest, restroute.CodeInvalidRequest, "Malformed request body.", map[string]any{
		"reason": err.Error(),
	})
}

func values(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for key, list := range v {
		name, isList := strings.CutSuffix(key, "[]")
		if !isList && len(list) == 1 {
			out[name] = list[0]
			continue
		}
		items := make([]any, len(list))
		for i, s := range list {
			items[i] = s
		}
		out[name] = items
	}
	return out
}

// HTTPRequest returns the underlying request.
func (r *Request) HTTPRequest() *http.Request { return r.raw }

// Context returns the request context.
func (r *Request) Context() context.Context { return r.raw.Context() }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.raw.Method }

// Header returns the first value of the named header.
func (r *Request) Header(name string) string { return r.raw.Header.Get(name) }

func (r *Request) PathParams() map[string]string { return r.path }
func (r *Request) QueryParams() map[string]any   { return r.query }
func (r *Request) BodyParams() map[string]any    { return r.form }
func (r *Request) JSONParams() map[string]any    { return r.json }
func (r *Request) Params() map[string]any        { return restroute.MergeParams(r) }

// Param returns one merged parameter.
func (r *Request) Param(name string) (any, bool) {
	v, ok := r.Params()[name]
	return v, ok
}

// FromRequest returns the *http.Request behind req when req came from
// this package.
func FromRequest(req restroute.Request) (*http.Request, bool) {
	if hr, ok := req.(*Request); ok {
		return hr.raw, true
	}
	return nil, false
}
