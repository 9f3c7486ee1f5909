package observability

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bjaus/restroute"
)

// LogrusAuditLogger writes audit events through a logrus logger. Failed
// requests log at warn level with the error code and message.
type LogrusAuditLogger struct {
	Logger logrus.FieldLogger
}

var _ restroute.AuditLogger = LogrusAuditLogger{}

// LogAudit implements restroute.AuditLogger.
func (l LogrusAuditLogger) LogAudit(ctx context.Context, e restroute.AuditEvent) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	fields := logrus.Fields{
		"request_id":  e.RequestID,
		"trace_id":    e.TraceID,
		"route":       e.Route,
		"method":      e.Method,
		"outcome":     e.Outcome,
		"status":      e.StatusCode,
		"duration_ms": e.DurationMs,
		"timestamp":   e.Timestamp,
	}
	entry := logger.WithFields(fields).WithContext(ctx)
	if e.Outcome == restroute.OutcomeError {
		entry.WithFields(logrus.Fields{
			"error_code": e.ErrorCode,
			"error":      e.Error,
		}).Warn(e.Event)
		return
	}
	entry.Info(e.Event)
}
