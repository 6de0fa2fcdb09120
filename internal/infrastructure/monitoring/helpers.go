package monitoring

import "time"

// Snapshot returns the current values tracked for the health endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageLatency is the mean HTTP request duration so far
func (s MetricsSnapshot) AverageLatency() time.Duration {
	if s.RequestCount == 0 {
		return 0
	}
	return time.Duration(s.TotalDuration / float64(s.RequestCount) * float64(time.Second))
}

// ErrorRate is the share of requests answered with a 4xx or 5xx status
func (s MetricsSnapshot) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalRequests)
}

// UptimeSeconds reports how long the collector has existed
func (m *Metrics) UptimeSeconds() float64 {
	return time.Since(m.startTime).Seconds()
}
