// Package observability provides restroute.MetricSink and
// restroute.AuditLogger implementations backed by an in-process map,
// Prometheus, OpenTelemetry and logrus.
package observability

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/bjaus/restroute"
)

// Observation aggregates the values observed for one series.
type Observation struct {
	Count int
	Sum   float64
}

// MemorySink keeps counters and observations in memory, keyed by metric
// name and label set. It is safe for concurrent use.
type MemorySink struct {
	mu           sync.Mutex
	counters     map[string]float64
	observations map[string]Observation
}

var _ restroute.MetricSink = (*MemorySink)(nil)

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		counters:     map[string]float64{},
		observations: map[string]Observation{},
	}
}

// Increment adds value to the counter for name and labels.
func (s *MemorySink) Increment(name string, value float64, labels map[string]string) {
	key := SeriesKey(name, labels)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += value
}

// Observe records value for name and labels.
func (s *MemorySink) Observe(name string, value float64, labels map[string]string) {
	key := SeriesKey(name, labels)
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.observations[key]
	o.Count++
	o.Sum += value
	s.observations[key] = o
}

// Counter returns the current value of a counter series.
func (s *MemorySink) Counter(name string, labels map[string]string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[SeriesKey(name, labels)]
}

// Observation returns the aggregate of an observed series.
func (s *MemorySink) Observation(name string, labels map[string]string) Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observations[SeriesKey(name, labels)]
}

// Counters returns a copy of every counter keyed by SeriesKey.
func (s *MemorySink) Counters() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// Observations returns a copy of every observation keyed by SeriesKey.
func (s *MemorySink) Observations() map[string]Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Observation, len(s.observations))
	for k, v := range s.observations {
		out[k] = v
	}
	return out
}

// SeriesKey identifies a series as name|{"label":"value",...} with labels
// sorted by name, so equal label sets map to the same key.
func SeriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte(name + "|{")
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(labels[k])
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf)
}
