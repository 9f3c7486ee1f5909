package observability

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bjaus/restroute"
)

// PrometheusSink registers a counter or summary vector per metric name on
// its own registry. A vector's label names are fixed by the first call for
// that name; later calls fill missing labels with "" and drop extra ones.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*counterSeries
	summaries  map[string]*summarySeries
	onRegister func(name string, err error)
}

type counterSeries struct {
	vec    *prometheus.CounterVec
	labels []string
}

type summarySeries struct {
	vec    *prometheus.SummaryVec
	labels []string
}

var _ restroute.MetricSink = (*PrometheusSink)(nil)

// PrometheusOption configures a PrometheusSink.
type PrometheusOption func(*PrometheusSink)

// WithRegistry registers the sink's collectors on reg instead of a fresh
// registry.
func WithRegistry(reg *prometheus.Registry) PrometheusOption {
	return func(s *PrometheusSink) {
		s.registry = reg
	}
}

// WithRegisterErrorHandler is called when a collector fails to register,
// for example because another collector already owns the name. The
// metric is then dropped.
func WithRegisterErrorHandler(fn func(name string, err error)) PrometheusOption {
	return func(s *PrometheusSink) {
		s.onRegister = fn
	}
}

// NewPrometheusSink returns a sink with its own registry.
func NewPrometheusSink(opts ...PrometheusOption) *PrometheusSink {
	s := &PrometheusSink{
		counters:  map[string]*counterSeries{},
		summaries: map[string]*summarySeries{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}
	return s
}

// Registry returns the registry the sink's collectors live on.
func (s *PrometheusSink) Registry() *prometheus.Registry { return s.registry }

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Increment adds value to the counter name. Negative values are ignored.
func (s *PrometheusSink) Increment(name string, value float64, labels map[string]string) {
	if value < 0 {
		return
	}
	series := s.counter(name, labels)
	if series == nil {
		return
	}
	series.vec.With(labelValues(series.labels, labels)).Add(value)
}

// Observe records value on the summary name.
func (s *PrometheusSink) Observe(name string, value float64, labels map[string]string) {
	series := s.summary(name, labels)
	if series == nil {
		return
	}
	series.vec.With(labelValues(series.labels, labels)).Observe(value)
}

func (s *PrometheusSink) counter(name string, labels map[string]string) *counterSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[name]; ok {
		return c
	}
	names := labelNames(labels)
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: name,
	}, names)
	if err := s.registry.Register(vec); err != nil {
		s.failed(name, err)
		return nil
	}
	c := &counterSeries{vec: vec, labels: names}
	s.counters[name] = c
	return c
}

func (s *PrometheusSink) summary(name string, labels map[string]string) *summarySeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.summaries[name]; ok {
		return m
	}
	names := labelNames(labels)
	vec := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name: name,
		Help: name,
	}, names)
	if err := s.registry.Register(vec); err != nil {
		s.failed(name, err)
		return nil
	}
	m := &summarySeries{vec: vec, labels: names}
	s.summaries[name] = m
	return m
}

func (s *PrometheusSink) failed(name string, err error) {
	if s.onRegister != nil {
		s.onRegister(name, err)
	}
}

func labelNames(labels map[string]string) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func labelValues(names []string, labels map[string]string) prometheus.Labels {
	out := make(prometheus.Labels, len(names))
	for _, n := range names {
		out[n] = labels[n]
	}
	return out
}
