package observability

import (
	"strings"
	"sync"
	"time"
)

// Metrics records counters, gauges and timings. Tags become labels; a metric
// name is always recorded with the same tag keys.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(name string, value int64, tags ...Tag)           {}
func (NoopMetrics) Gauge(name string, value float64, tags ...Tag)           {}
func (NoopMetrics) Timing(name string, duration time.Duration, tags ...Tag) {}

// InMemoryMetrics keeps metrics in maps for tests.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string][]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string][]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[formatKey(name, tags)] = value
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := formatKey(name, tags)
	m.timings[key] = append(m.timings[key], duration)
}

// GetCounter returns the counter for name and tags.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// GetGauge returns the last gauge value for name and tags.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[formatKey(name, tags)]
}

// GetTimings returns the recorded durations for name and tags.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timings[formatKey(name, tags)]
}

func formatKey(name string, tags []Tag) string {
	var b strings.Builder
	b.WriteString(name)
	for _, t := range tags {
		b.WriteString(":" + t.Key + "=" + t.Value)
	}
	return b.String()
}

// Metric names.
const (
	MetricOperationTotal    = "mtgate.operation.total"
	MetricOperationDuration = "mtgate.operation.duration"
	MetricOperationErrors   = "mtgate.operation.errors"

	MetricGrants        = "mtgate.access.grants"
	MetricGrantRejected = "mtgate.access.grant_rejected"
	MetricRevocations   = "mtgate.access.revocations"
	MetricReactivations = "mtgate.access.reactivations"
	MetricExpirations   = "mtgate.access.expirations"
	MetricActiveCount   = "mtgate.access.active"
	MetricSalesBlocked  = "mtgate.access.sales_blocked"

	MetricConvergences        = "mtgate.proxy.convergences"
	MetricConvergenceFailures = "mtgate.proxy.convergence_failures"
	MetricConvergeDuration    = "mtgate.proxy.converge_duration"
	MetricProxyRunning        = "mtgate.proxy.running"
	MetricResourceUsage       = "mtgate.proxy.resource_usage_percent"
	MetricProbeFailures       = "mtgate.proxy.probe_failures"
	MetricRuntimeCalls        = "mtgate.runtime.calls"
	MetricBreakerState        = "mtgate.runtime.breaker_state"

	MetricAlertsSent   = "mtgate.alerts.sent"
	MetricAlertsFailed = "mtgate.alerts.failed"

	MetricEventsPublished = "mtgate.events.published"
)
