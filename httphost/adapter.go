package httphost

import (
	"net/http"

	"github.com/bjaus/restroute"
)

// Problem is a host-native error value. Handlers may return it as a
// result, or as an error; either way it is rendered in the error envelope.
type Problem struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (p *Problem) Error() string {
	if p.Message == "" {
		return http.StatusText(p.StatusCode())
	}
	return p.Message
}

// StatusCode returns the HTTP status code, 500 when unset.
func (p *Problem) StatusCode() int {
	if p.Status == 0 {
		return http.StatusInternalServerError
	}
	return p.Status
}

func (p *Problem) ErrorCode() string { return p.Code }

func (p *Problem) ErrorDetails() map[string]any {
	if p.Details == nil {
		return map[string]any{}
	}
	return p.Details
}

// Adapter is the restroute.HostAdapter for net/http. An http.Handler
// returned by a route handler is served as-is; a *Problem becomes an error
// response.
type Adapter struct{}

var _ restroute.HostAdapter = Adapter{}

func (Adapter) IsNativeResponse(v any) bool {
	_, ok := v.(http.Handler)
	return ok
}

func (Adapter) NativeError(v any, requestID string) (*restroute.Response, bool) {
	p, ok := v.(*Problem)
	if !ok || p == nil {
		return nil, false
	}
	code := p.Code
	if code == "" {
		code = restroute.CodeInternal
	}
	return restroute.NewResponse(restroute.ErrorBody(code, p.Error(), requestID, p.ErrorDetails()), p.StatusCode()), true
}

func (Adapter) Convert(resp *restroute.Response) any { return resp }
