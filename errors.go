package restroute

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes produced by the router and the built-in middlewares.
const (
	CodeInternal                   = "internal_error"
	CodeInvalidRequest             = "invalid_request"
	CodeValidationFailed           = "validation_failed"
	CodeUnauthorized               = "unauthorized"
	CodeInvalidToken               = "invalid_token"
	CodeInvalidCredentials         = "invalid_credentials"
	CodeInvalidAuthorizationHeader = "invalid_authorization_header"
	CodeInsufficientScope          = "insufficient_scope"
	CodeInvalidNonce               = "invalid_nonce"
	CodeForbidden                  = "forbidden"
	CodeNotFound                   = "not_found"
	CodeConflict                   = "conflict"
	CodeIdempotencyConflict        = "idempotency_conflict"
	CodeIdempotencyKeyRequired     = "idempotency_key_required"
	CodeVersionUnavailable         = "version_unavailable"
	CodePreconditionFailed         = "precondition_failed"
	CodePreconditionRequired       = "precondition_required"
	CodeOptimisticLockFailed       = "optimistic_lock_failed"
	CodeRateLimited                = "rate_limited"
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// ErrorCoder is implemented by errors that carry a machine-readable code.
type ErrorCoder interface {
	ErrorCode() string
}

// Detailer is implemented by errors that carry structured details.
type Detailer interface {
	ErrorDetails() map[string]any
}

// APIError is the canonical recoverable error: an HTTP status, an error
// code and optional details rendered into the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

// Error returns the error message.
func (e *APIError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int { return e.Status }

// ErrorCode returns the machine-readable code.
func (e *APIError) ErrorCode() string { return e.Code }

// ErrorDetails returns the details map, never nil.
func (e *APIError) ErrorDetails() map[string]any {
	if e.Details == nil {
		return map[string]any{}
	}
	return e.Details
}

// NewError returns an APIError.
func NewError(status int, code, message string, details map[string]any) *APIError {
	return &APIError{Status: status, Code: code, Message: message, Details: details}
}

// Errorf returns an APIError with a formatted message and no details.
func Errorf(status int, code, format string, args ...any) *APIError {
	return &APIError{Status: status, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a 404 not_found error.
func NotFound(message string) *APIError {
	if message == "" {
		message = "Resource not found."
	}
	return NewError(http.StatusNotFound, CodeNotFound, message, nil)
}

// Conflict returns a 409 error. An empty code means "conflict".
func Conflict(message, code string, details map[string]any) *APIError {
	if message == "" {
		message = "Conflict."
	}
	if code == "" {
		code = CodeConflict
	}
	return NewError(http.StatusConflict, code, message, details)
}

// PreconditionFailed returns a 412 error. An empty code means "precondition_failed".
func PreconditionFailed(message, code string, details map[string]any) *APIError {
	if message == "" {
		message = "Precondition failed."
	}
	if code == "" {
		code = CodePreconditionFailed
	}
	return NewError(http.StatusPreconditionFailed, code, message, details)
}

// ValidationFailed returns a 400 validation_failed error carrying every
// field violation under details.fieldErrors.
func ValidationFailed(fieldErrors map[string][]string) *APIError {
	return NewError(http.StatusBadRequest, CodeValidationFailed, "Invalid request.", map[string]any{
		"fieldErrors": fieldErrors,
	})
}

// ArgumentError reports invalid input detected locally, outside the
// APIError taxonomy. It normalizes to 400 invalid_request.
type ArgumentError struct {
	Message string
}

func (e *ArgumentError) Error() string { return e.Message }

// InvalidArgument returns an ArgumentError with a formatted message.
func InvalidArgument(format string, args ...any) error {
	return &ArgumentError{Message: fmt.Sprintf(format, args...)}
}

// ConfigError reports an invalid route, middleware or resource
// declaration. It is returned at registration time.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

func configErrorf(format string, args ...any) error {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// PanicError wraps a value recovered from a panicking handler or middleware.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// ErrorCode extracts the machine-readable code of err, falling back to
// invalid_request for argument errors and internal_error otherwise.
func ErrorCode(err error) string {
	var ec ErrorCoder
	if errors.As(err, &ec) && ec.ErrorCode() != "" {
		return ec.ErrorCode()
	}
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return CodeInvalidRequest
	}
	return CodeInternal
}

// ErrorBody builds the user-visible error envelope.
func ErrorBody(code, message, requestID string, details map[string]any) map[string]any {
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"error": map[string]any{
			"code":      code,
			"message":   message,
			"requestId": requestID,
			"details":   details,
		},
	}
}

// NormalizeError converts any error into an error Response. Status, code
// and details come from the error when it carries them; argument errors map
// to 400 invalid_request; everything else maps to 500 internal_error with
// the Go type of the error as detail.
func NormalizeError(err error, requestID string) *Response {
	status := ErrorStatus(err)
	code := ErrorCode(err)

	details := map[string]any{"exception": fmt.Sprintf("%T", err)}
	var d Detailer
	var sc StatusCoder
	if errors.As(err, &d) {
		details = d.ErrorDetails()
	} else if errors.As(err, &sc) {
		details = map[string]any{}
	}

	message := err.Error()
	if message == "" {
		message = "Unexpected error."
	}
	return NewResponse(ErrorBody(code, message, requestID, details), status)
}
