package observability_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bjaus/restroute"
	"github.com/bjaus/restroute/observability"
)

func TestSeriesKey(t *testing.T) {
	t.Parallel()

	a := observability.SeriesKey("hits", map[string]string{"route": "/x", "method": "GET"})
	b := observability.SeriesKey("hits", map[string]string{"method": "GET", "route": "/x"})
	assert.Equal(t, a, b)
	assert.Equal(t, `hits|{"method":"GET","route":"/x"}`, a)
	assert.Equal(t, "hits|{}", observability.SeriesKey("hits", nil))
}

func TestMemorySink(t *testing.T) {
	t.Parallel()

	sink := observability.NewMemorySink()
	labels := map[string]string{"route": "/things"}

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sink.Increment("requests_total", 1, labels)
			sink.Observe("duration_seconds", 0.5, labels)
		}()
	}
	wg.Wait()

	assert.InDelta(t, 10.0, sink.Counter("requests_total", labels), 1e-9)
	assert.Equal(t, observability.Observation{Count: 10, Sum: 5}, sink.Observation("duration_seconds", labels))
	assert.Zero(t, sink.Counter("requests_total", map[string]string{"route": "/other"}))
	assert.Len(t, sink.Counters(), 1)
	assert.Len(t, sink.Observations(), 1)
}

func TestMemorySinkWithMetricsMiddleware(t *testing.T) {
	t.Parallel()

	sink := observability.NewMemorySink()
	r := restroute.NewRouter("acme", "v1")
	r.Use(restroute.Metrics(restroute.MetricsConfig{Sink: sink}))
	r.Get("/fail", func(restroute.RequestContext) (any, error) {
		return nil, restroute.NotFound("")
	})

	d := &restroute.MemoryDispatcher{}
	require.NoError(t, r.Register(d))
	b, ok := d.Find(http.MethodGet, "/fail")
	require.True(t, ok)
	b.Callback(&restroute.StaticRequest{Verb: http.MethodGet})

	labels := map[string]string{"route": "/acme/v1/fail", "method": "GET", "status_class": "4xx"}
	assert.InDelta(t, 1.0, sink.Counter("restroute_requests_total", labels), 1e-9)
	assert.Equal(t, 1, sink.Observation("restroute_request_duration_seconds", labels).Count)
	labels["error_code"] = restroute.CodeNotFound
	assert.InDelta(t, 1.0, sink.Counter("restroute_errors_total", labels), 1e-9)
}

func TestPrometheusSinkHandler(t *testing.T) {
	t.Parallel()

	sink := observability.NewPrometheusSink()
	labels := map[string]string{"route": "/things", "method": "GET"}
	sink.Increment("restroute_requests_total", 1, labels)
	sink.Increment("restroute_requests_total", 1, labels)
	sink.Increment("restroute_requests_total", -3, labels)
	sink.Observe("restroute_request_duration_seconds", 0.25, labels)

	srv := httptest.NewServer(sink.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, "# TYPE restroute_requests_total counter")
	assert.Contains(t, out, `restroute_requests_total{method="GET",route="/things"} 2`)
	assert.Contains(t, out, "# TYPE restroute_request_duration_seconds summary")
	assert.Contains(t, out, `restroute_request_duration_seconds_sum{method="GET",route="/things"} 0.25`)
	assert.Contains(t, out, `restroute_request_duration_seconds_count{method="GET",route="/things"} 1`)
}

func TestPrometheusSinkLabelDrift(t *testing.T) {
	t.Parallel()

	sink := observability.NewPrometheusSink()
	sink.Increment("hits_total", 1, map[string]string{"route": "/a", "method": "GET"})
	sink.Increment("hits_total", 1, map[string]string{"route": "/b", "extra": "dropped"})
	sink.Increment("hits_total", 1, map[string]string{"route": "/a", "method": "GET"})

	n, err := testutil.GatherAndCount(sink.Registry(), "hits_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPrometheusSinkRegisterConflict(t *testing.T) {
	t.Parallel()

	var failed []string
	sink := observability.NewPrometheusSink(observability.WithRegisterErrorHandler(func(name string, err error) {
		require.Error(t, err)
		failed = append(failed, name)
	}))
	sink.Increment("dup", 1, nil)
	sink.Observe("dup", 1, nil)

	assert.Equal(t, []string{"dup"}, failed)
}

func TestOTelSink(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sink := observability.NewOTelSink(provider.Meter("restroute"))

	labels := map[string]string{"route": "/things", "status_class": "2xx"}
	sink.Increment("restroute_requests_total", 1, labels)
	sink.Increment("restroute_requests_total", 2, labels)
	sink.Observe("restroute_request_duration_seconds", 0.5, labels)
	sink.Observe("restroute_request_duration_seconds", 1.5, labels)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var sawCounter, sawHistogram bool
	for _, m := range rm.ScopeMetrics[0].Metrics {
		switch m.Name {
		case "restroute_requests_total":
			sawCounter = true
			sum, ok := m.Data.(metricdata.Sum[float64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 1)
			assert.InDelta(t, 3.0, sum.DataPoints[0].Value, 1e-9)
			route, ok := sum.DataPoints[0].Attributes.Value(attribute.Key("route"))
			require.True(t, ok)
			assert.Equal(t, "/things", route.AsString())
		case "restroute_request_duration_seconds":
			sawHistogram = true
			hist, ok := m.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 1)
			assert.Equal(t, uint64(2), hist.DataPoints[0].Count)
			assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 1e-9)
		}
	}
	assert.True(t, sawCounter)
	assert.True(t, sawHistogram)
}

func TestLogrusAuditLogger(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		event     restroute.AuditEvent
		wantLevel logrus.Level
		wantCode  any
	}{
		"success": {
			event: restroute.AuditEvent{
				Event: "http_request", RequestID: "req-1", Route: "/things",
				Method: "GET", Outcome: restroute.OutcomeSuccess, StatusCode: 200,
			},
			wantLevel: logrus.InfoLevel,
		},
		"error": {
			event: restroute.AuditEvent{
				Event: "http_request", RequestID: "req-2", Route: "/things",
				Method: "POST", Outcome: restroute.OutcomeError, StatusCode: 409,
				ErrorCode: restroute.CodeConflict, Error: errors.New("boom").Error(),
			},
			wantLevel: logrus.WarnLevel,
			wantCode:  restroute.CodeConflict,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			logger, hook := logtest.NewNullLogger()
			tc.event.Timestamp = time.Unix(0, 0).UTC()
			observability.LogrusAuditLogger{Logger: logger}.LogAudit(context.Background(), tc.event)

			entry := hook.LastEntry()
			require.NotNil(t, entry)
			assert.Equal(t, tc.wantLevel, entry.Level)
			assert.Equal(t, "http_request", entry.Message)
			assert.Equal(t, tc.event.RequestID, entry.Data["request_id"])
			assert.Equal(t, tc.event.StatusCode, entry.Data["status"])
			assert.Equal(t, tc.wantCode, entry.Data["error_code"])
		})
	}
}
