package database

import (
	"context"
	"time"
)

// HealthStatus reports database connectivity for the health endpoint.
type HealthStatus struct {
	Connected bool   `json:"connected"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Health pings the pool and reports round-trip latency.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if err := c.pool.Ping(ctx); err != nil {
		return HealthStatus{Connected: false, Error: err.Error()}
	}
	return HealthStatus{Connected: true, LatencyMS: time.Since(start).Milliseconds()}
}
