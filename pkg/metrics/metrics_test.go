package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpMetrics(t *testing.T) {
	m := NewNoOpMetrics()
	assert.NotPanics(t, func() {
		m.Counter("c", 1, nil)
		m.Gauge("g", 1, nil)
		m.Histogram("h", 1, nil)
		m.Timer("t", 1, nil)
	})
}

func TestMemoryMetrics(t *testing.T) {
	t.Run("Counter accumulates per label set", func(t *testing.T) {
		m := NewMemoryMetrics()
		m.Counter(ImportOutcomes, 1, map[string]string{"status": "success"})
		m.Counter(ImportOutcomes, 2, map[string]string{"status": "success"})
		m.Counter(ImportOutcomes, 1, map[string]string{"status": "parsing_failed"})

		assert.Equal(t, 3.0, m.CounterValue(ImportOutcomes, map[string]string{"status": "success"}))
		assert.Equal(t, 1.0, m.CounterValue(ImportOutcomes, map[string]string{"status": "parsing_failed"}))
		assert.Equal(t, 0.0, m.CounterValue(ImportOutcomes, nil))
	})

	t.Run("Gauge keeps last value", func(t *testing.T) {
		m := NewMemoryMetrics()
		m.Gauge(LinksDiscovered, 10, nil)
		m.Gauge(LinksDiscovered, 12, nil)
		assert.Equal(t, 12.0, m.GaugeValue(LinksDiscovered, nil))
	})

	t.Run("Timer records observations", func(t *testing.T) {
		m := NewMemoryMetrics()
		m.Timer(ParseDuration, 0.5, map[string]string{"format": "pdf"})
		m.Timer(ParseDuration, 0.25, map[string]string{"format": "pdf"})
		assert.Equal(t, []float64{0.5, 0.25}, m.Observations(ParseDuration, map[string]string{"format": "pdf"}))
	})

	t.Run("label order does not matter", func(t *testing.T) {
		m := NewMemoryMetrics()
		m.Counter("c", 1, map[string]string{"a": "1", "b": "2"})
		m.Counter("c", 1, map[string]string{"b": "2", "a": "1"})
		assert.Equal(t, 2.0, m.Snapshot()["c{a=1,b=2}"])
	})

	t.Run("concurrent use", func(t *testing.T) {
		m := NewMemoryMetrics()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Counter(DocumentsProcessed, 1, nil)
			}()
		}
		wg.Wait()
		assert.Equal(t, 50.0, m.CounterValue(DocumentsProcessed, nil))
	})
}
