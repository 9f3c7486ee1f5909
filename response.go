package restroute

import "net/http"

// Response is the normalized result of a route: a body, a status code and
// response headers.
type Response struct {
	Body    any
	Status  int
	Headers map[string]string
}

// NewResponse returns a Response with the given body and status.
// A zero status means 200.
func NewResponse(body any, status int) *Response {
	if status == 0 {
		status = http.StatusOK
	}
	return &Response{Body: body, Status: status}
}

// StatusCode returns the HTTP status code.
func (r *Response) StatusCode() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

// WithHeaders returns a copy of r with headers merged over the existing ones.
func (r *Response) WithHeaders(headers map[string]string) *Response {
	merged := make(map[string]string, len(r.Headers)+len(headers))
	for k, v := range r.Headers {
		merged[k] = v
	}
	for k, v := range headers {
		merged[k] = v
	}
	return &Response{Body: r.Body, Status: r.Status, Headers: merged}
}

// Header returns the response header set under name, matched case-insensitively.
func (r *Response) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if http.CanonicalHeaderKey(k) == http.CanonicalHeaderKey(name) {
			return v
		}
	}
	return ""
}

// HostAdapter bridges the router to one host runtime. Hosts recognize their
// own native response and error values and convert normalized responses to
// what their registration callback must return.
type HostAdapter interface {
	// IsNativeResponse reports whether v is a host response to pass through.
	IsNativeResponse(v any) bool
	// NativeError converts a host error value into a normalized response.
	NativeError(v any, requestID string) (*Response, bool)
	// Convert turns a normalized response into the host return value.
	Convert(resp *Response) any
}

// PassthroughAdapter is the HostAdapter used when no host is configured:
// nothing is host-native and responses are returned as-is.
type PassthroughAdapter struct{}

func (PassthroughAdapter) IsNativeResponse(any) bool { return false }

func (PassthroughAdapter) NativeError(any, string) (*Response, bool) { return nil, false }

func (PassthroughAdapter) Convert(resp *Response) any { return resp }

// NormalizeResult maps a handler result to a Response. Responses are kept,
// host-native responses pass through untouched, host-native errors become
// error responses and any other value is wrapped with status 200.
func NormalizeResult(result any, requestID string, host HostAdapter) any {
	if host == nil {
		host = PassthroughAdapter{}
	}
	switch v := result.(type) {
	case *Response:
		if v == nil {
			return NewResponse(nil, http.StatusOK)
		}
		return v
	case Response:
		return &v
	}
	if host.IsNativeResponse(result) {
		return result
	}
	if resp, ok := host.NativeError(result, requestID); ok {
		return resp
	}
	return NewResponse(result, http.StatusOK)
}
