package restroute

import (
	"fmt"
	"net/http"
	"time"
)

// MetricSink receives counter increments and duration observations.
type MetricSink interface {
	Increment(name string, value float64, labels map[string]string)
	Observe(name string, value float64, labels map[string]string)
}

// MetricsConfig configures the Metrics middleware.
type MetricsConfig struct {
	Sink   MetricSink
	Prefix string           // default: "restroute_"
	Clock  func() time.Time // default: time.Now
}

// Metrics returns middleware recording <prefix>requests_total and
// <prefix>request_duration_seconds labeled by route, method and status
// class, plus <prefix>errors_total with an error_code label for failed
// requests. Errors are returned unchanged.
func Metrics(cfg MetricsConfig) Middleware {
	if cfg.Prefix == "" {
		cfg.Prefix = "restroute_"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return MiddlewareFunc(func(rc RequestContext, next Next) (any, error) {
		if cfg.Sink == nil {
			return next(rc)
		}
		method := http.MethodGet
		if req := rc.Request(); req != nil && req.Method() != "" {
			method = req.Method()
		}
		start := cfg.Clock()

		result, err := next(rc)

		status := resultStatus(result)
		errorCode := responseErrorCode(result)
		if err != nil {
			status = ErrorStatus(err)
			errorCode = ErrorCode(err)
		}
		labels := map[string]string{
			"route":        rc.RoutePath(),
			"method":       method,
			"status_class": StatusClass(status),
		}
		cfg.Sink.Increment(cfg.Prefix+"requests_total", 1, labels)
		cfg.Sink.Observe(cfg.Prefix+"request_duration_seconds", cfg.Clock().Sub(start).Seconds(), labels)
		if err != nil || status >= http.StatusBadRequest {
			errLabels := make(map[string]string, len(labels)+1)
			for k, v := range labels {
				errLabels[k] = v
			}
			errLabels["error_code"] = errorCode
			cfg.Sink.Increment(cfg.Prefix+"errors_total", 1, errLabels)
		}
		return result, err
	})
}

// StatusClass buckets a status code by hundreds ("2xx"). Codes outside
// 100-599 are "unknown".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return fmt.Sprintf("%dxx", status/100)
}

func responseErrorCode(result any) string {
	body := result
	if resp, ok := result.(*Response); ok && resp != nil {
		body = resp.Body
	}
	if m, ok := body.(map[string]any); ok {
		if e, ok := m["error"].(map[string]any); ok {
			if code, ok := e["code"].(string); ok {
				return code
			}
		}
	}
	return "unknown"
}
