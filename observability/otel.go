package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/bjaus/restroute"
)

// OTelSink forwards increments to Float64Counter instruments and
// observations to Float64Histogram instruments created lazily on meter.
type OTelSink struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

var _ restroute.MetricSink = (*OTelSink)(nil)

// NewOTelSink returns a sink recording on meter.
func NewOTelSink(meter metric.Meter) *OTelSink {
	return &OTelSink{
		meter:      meter,
		counters:   map[string]metric.Float64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
}

// Increment adds value to the counter name.
func (s *OTelSink) Increment(name string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	c, err := s.counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), value, metric.WithAttributes(attributes(labels)...))
}

// Observe records value on the histogram name.
func (s *OTelSink) Observe(name string, value float64, labels map[string]string) {
	h, err := s.histogram(name)
	if err != nil {
		return
	}
	h.Record(context.Background(), value, metric.WithAttributes(attributes(labels)...))
}

func (s *OTelSink) counter(name string) (metric.Float64Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c, nil
	}
	c, err := s.meter.Float64Counter(name)
	if err != nil {
		return nil, err
	}
	s.counters[name] = c
	return c, nil
}

func (s *OTelSink) histogram(name string) (metric.Float64Histogram, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.histograms[name]; ok {
		return h, nil
	}
	h, err := s.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	s.histograms[name] = h
	return h, nil
}

func attributes(labels map[string]string) []attribute.KeyValue {
	keys := labelNames(labels)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, labels[k]))
	}
	return attrs
}
