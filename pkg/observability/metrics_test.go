package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m Metrics = NoopMetrics{}
	assert.NotPanics(t, func() {
		m.Counter(MetricGrants, 1)
		m.Gauge(MetricActiveCount, 1)
		m.Timing(MetricConvergeDuration, time.Second)
	})
}

func TestInMemoryMetrics(t *testing.T) {
	t.Run("counter by tags", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Counter(MetricGrants, 1, T("kind", "paid"))
		m.Counter(MetricGrants, 1, T("kind", "trial"))
		m.Counter(MetricGrants, 2, T("kind", "paid"))

		assert.Equal(t, int64(3), m.GetCounter(MetricGrants, T("kind", "paid")))
		assert.Equal(t, int64(1), m.GetCounter(MetricGrants, T("kind", "trial")))
		assert.Zero(t, m.GetCounter(MetricGrants))
	})

	t.Run("gauge keeps last value", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Gauge(MetricResourceUsage, 71)
		m.Gauge(MetricResourceUsage, 84)
		assert.Equal(t, 84.0, m.GetGauge(MetricResourceUsage))
	})

	t.Run("timings append", func(t *testing.T) {
		m := NewInMemoryMetrics()

		m.Timing(MetricConvergeDuration, 100*time.Millisecond)
		m.Timing(MetricConvergeDuration, 200*time.Millisecond)
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, m.GetTimings(MetricConvergeDuration))
	})
}

func TestFormatKey(t *testing.T) {
	tests := []struct {
		name     string
		tags     []Tag
		expected string
	}{
		{"no tags", nil, "mtgate.access.grants"},
		{"single tag", []Tag{T("kind", "paid")}, "mtgate.access.grants:kind=paid"},
		{"multiple tags", []Tag{T("kind", "paid"), T("plan", "week")}, "mtgate.access.grants:kind=paid:plan=week"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatKey(MetricGrants, tt.tags))
		})
	}
}
