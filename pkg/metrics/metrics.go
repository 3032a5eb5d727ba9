// Package metrics provides metrics implementations for the importer
package metrics

import (
	"sort"
	"strings"
	"sync"

	"github.com/bttc/roundrobin/pkg/interfaces"
)

// Metric names recorded by the import pipeline
const (
	DocumentsProcessed = "documents_processed_total"
	ImportOutcomes     = "import_outcomes_total"
	GroupsExtracted    = "groups_extracted_total"
	MatchesExtracted   = "matches_extracted_total"
	OCRPages           = "ocr_pages_total"
	ParseDuration      = "parse_duration_seconds"
	LinksDiscovered    = "links_discovered"
)

// NoOpMetrics is a no-operation metrics implementation
type NoOpMetrics struct{}

// Counter increments a counter metric
func (m *NoOpMetrics) Counter(name string, value float64, labels map[string]string) {}

// Gauge sets a gauge metric
func (m *NoOpMetrics) Gauge(name string, value float64, labels map[string]string) {}

// Histogram records a histogram metric
func (m *NoOpMetrics) Histogram(name string, value float64, labels map[string]string) {}

// Timer records timing metrics
func (m *NoOpMetrics) Timer(name string, duration float64, labels map[string]string) {}

// MemoryMetrics keeps metrics in process so an import run can report a summary
type MemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMemoryMetrics creates an empty in-process metrics store
func NewMemoryMetrics() *MemoryMetrics {
	return &MemoryMetrics{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// Counter increments a counter metric
func (m *MemoryMetrics) Counter(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key(name, labels)] += value
}

// Gauge sets a gauge metric
func (m *MemoryMetrics) Gauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[key(name, labels)] = value
}

// Histogram records a histogram metric
func (m *MemoryMetrics) Histogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(name, labels)
	m.histograms[k] = append(m.histograms[k], value)
}

// Timer records timing metrics
func (m *MemoryMetrics) Timer(name string, duration float64, labels map[string]string) {
	m.Histogram(name, duration, labels)
}

// CounterValue returns the current value of a counter
func (m *MemoryMetrics) CounterValue(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key(name, labels)]
}

// GaugeValue returns the last value set on a gauge
func (m *MemoryMetrics) GaugeValue(name string, labels map[string]string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[key(name, labels)]
}

// Observations returns a copy of the values recorded for a histogram
func (m *MemoryMetrics) Observations(name string, labels map[string]string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	values := m.histograms[key(name, labels)]
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

// Snapshot returns a copy of all counters keyed by name{labels}
func (m *MemoryMetrics) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func key(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for k, v := range labels {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}

var _ interfaces.Metrics = (*NoOpMetrics)(nil)
var _ interfaces.Metrics = (*MemoryMetrics)(nil)

// NewNoOpMetrics creates a new no-op metrics implementation
func NewNoOpMetrics() interfaces.Metrics {
	return &NoOpMetrics{}
}

// NewTestMetrics creates a metrics implementation for testing
func NewTestMetrics() *MemoryMetrics {
	return NewMemoryMetrics()
}
