package restroute

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"
)

// Audit outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// AuditEvent describes one completed request.
type AuditEvent struct {
	Event      string    `json:"event"`
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"requestId"`
	TraceID    string    `json:"traceId"`
	Route      string    `json:"route"`
	Method     string    `json:"method"`
	Outcome    string    `json:"outcome"`
	StatusCode int       `json:"statusCode"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	// Status is "ok" or "error", kept for consumers of the older event shape.
	Status string `json:"status"`
}

// AuditLogger records audit events.
type AuditLogger interface {
	LogAudit(ctx context.Context, event AuditEvent)
}

// AuditLoggerFunc adapts a function to AuditLogger.
type AuditLoggerFunc func(ctx context.Context, event AuditEvent)

// LogAudit calls f.
func (f AuditLoggerFunc) LogAudit(ctx context.Context, event AuditEvent) { f(ctx, event) }

// SlogAuditLogger writes audit events as structured log records.
type SlogAuditLogger struct {
	Logger *slog.Logger
}

// LogAudit implements AuditLogger.
func (l SlogAuditLogger) LogAudit(ctx context.Context, e AuditEvent) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("trace_id", e.TraceID),
		slog.String("route", e.Route),
		slog.String("method", e.Method),
		slog.String("outcome", e.Outcome),
		slog.Int("status", e.StatusCode),
		slog.Int64("duration_ms", e.DurationMs),
	}
	level := slog.LevelInfo
	if e.Outcome == OutcomeError {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_code", e.ErrorCode),
			slog.String("error", e.Error),
		)
	}
	logger.LogAttrs(ctx, level, e.Event, attrs...)
}

// AuditConfig configures the Audit middleware.
type AuditConfig struct {
	Logger AuditLogger
	Clock  func() time.Time // default: time.Now
}

// Audit returns middleware that records one AuditEvent per request. Errors
// are recorded and returned unchanged.
func Audit(cfg AuditConfig) Middleware {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = SlogAuditLogger{}
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		start := cfg.Clock()
		result, err := next(rc)

		event := AuditEvent{
			Event:     "http_request",
			Timestamp: cfg.Clock().UTC(),
			RequestID: rc.RequestID(),
			TraceID:   rc.RequestID(),
			Route:     rc.RoutePath(),
			Method:    requestMethod(rc),
		}
		event.DurationMs = int64(math.Round(float64(cfg.Clock().Sub(start)) / float64(time.Millisecond)))
		if err != nil {
			event.Outcome = OutcomeError
			event.Status = "error"
			event.StatusCode = ErrorStatus(err)
			event.ErrorCode = ErrorCode(err)
			event.Error = err.Error()
		} else {
			event.Outcome = OutcomeSuccess
			event.Status = "ok"
			event.StatusCode = resultStatus(result)
		}
		cfg.Logger.LogAudit(rc.Context(), event)

		return result, err
	})
}

func requestMethod(rc RequestContext) string {
	if req := rc.Request(); req != nil && req.Method() != "" {
		return req.Method()
	}
	return "UNKNOWN"
}

func resultStatus(result any) int {
	switch v := result.(type) {
	case *Response:
		if v != nil {
			return v.StatusCode()
		}
	case Response:
		return v.StatusCode()
	case StatusCoder:
		return v.StatusCode()
	}
	return http.StatusOK
}
