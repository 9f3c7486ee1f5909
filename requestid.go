package restroute

import "github.com/google/uuid"

// RequestIDHeader is the inbound header whose value becomes the request id.
const RequestIDHeader = "X-Request-Id"

// NewRequestID returns a random request id.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestIDFrom returns the inbound request id of req, or a generated one.
func RequestIDFrom(req Request, generate func() string) string {
	if req != nil {
		if id := req.Header(RequestIDHeader); id != "" {
			return id
		}
	}
	if generate == nil {
		generate = NewRequestID
	}
	return generate()
}
