package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MetricsSummary provides high-level daemon metrics
type MetricsSummary struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalRequests     int64     `json:"total_requests"`
	AverageLatencyMs  float64   `json:"average_latency_ms"`
	ErrorRate         float64   `json:"error_rate"`
	ActiveSessions    int64     `json:"active_sessions"`
	ActiveConnections int64     `json:"active_connections"`
	UptimeSeconds     float64   `json:"uptime_seconds"`
}

// GetMetricsSummary returns the JSON view of the collected metrics.
// Prometheus scrapes /metrics instead.
func (h *Handlers) GetMetricsSummary(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.summary())
}

func (h *Handlers) summary() MetricsSummary {
	snap := h.metrics.Snapshot()
	return MetricsSummary{
		Timestamp:         time.Now(),
		TotalRequests:     snap.TotalRequests,
		AverageLatencyMs:  float64(snap.AverageLatency().Microseconds()) / 1000,
		ErrorRate:         snap.ErrorRate(),
		ActiveSessions:    snap.ActiveSessions,
		ActiveConnections: snap.ActiveConnections,
		UptimeSeconds:     h.metrics.UptimeSeconds(),
	}
}
