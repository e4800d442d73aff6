package pgmodel

import (
	"context"
	"database/sql"
	"time"
)

// HealthStatus is one point-in-time health observation of a client
type HealthStatus struct {
	Healthy   bool          `json:"healthy"`
	State     ConnState     `json:"-"`
	Latency   time.Duration `json:"latency"`
	Error     string        `json:"error,omitempty"`
	PoolStats PoolStats     `json:"pool_stats"`
}

// PoolStats mirrors sql.DBStats in a JSON-friendly shape
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed  int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

// Health pings the database and reports reachability, connection state,
// round-trip latency, and pool statistics.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := c.Ping(ctx)

	status := HealthStatus{
		Healthy:   err == nil,
		State:     c.State(),
		Latency:   time.Since(start),
		PoolStats: PoolStatsFromSQL(c.Stats()),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// IsHealthy reports whether the database answers a ping
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.Ping(ctx) == nil
}

// PoolStatsFromSQL converts sql.DBStats to PoolStats
func PoolStatsFromSQL(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}
