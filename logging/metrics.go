package logging

import "sync"

// Metrics is a lightweight counter and gauge registry shared across the
// server. Counters accumulate with TelemetryAdd, gauges overwrite with
// TelemetryStore; Snapshot merges both for the diagnostics endpoint.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]uint64
	gauges   map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		counters: make(map[string]uint64),
		gauges:   make(map[string]uint64),
	}
}

// TelemetryAdd increments the named counter by delta.
func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.counters[key] += delta
	m.mu.Unlock()
}

// TelemetryStore records the latest value of the named gauge.
func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	m.gauges[key] = value
	m.mu.Unlock()
}

// Counter returns the current value of the named counter.
func (m *Metrics) Counter(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[key]
}

// Gauge returns the last stored value of the named gauge.
func (m *Metrics) Gauge(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gauges[key]
}

// Snapshot copies every counter and gauge into a single map. Gauges win when
// a key is present in both, which never happens with the key conventions the
// server uses.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	merged := make(map[string]uint64, len(m.counters)+len(m.gauges))
	for k, v := range m.counters {
		merged[k] = v
	}
	for k, v := range m.gauges {
		merged[k] = v
	}
	return merged
}
