package pgmodel

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// ConnectionParameters identifies a PostgreSQL database. These five fields
// are the whole connection surface: no TLS, timeout, or pool options are
// recognized. The zero value carries no defaults; callers supply every field.
type ConnectionParameters struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// Addr returns the host:port dial address.
func (p ConnectionParameters) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// String renders the target as a postgres URL with the password omitted,
// safe for logs.
func (p ConnectionParameters) String() string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", p.User, p.Host, p.Port, p.Database)
}

// Config holds client configuration
type Config struct {
	// Connection target (required)
	Conn ConnectionParameters

	// Observability (all optional)
	Logger          *slog.Logger          // Structured logger
	LogQueries      bool                  // Log all queries
	LogSlowQueries  time.Duration         // Log queries slower than this (0 = disabled)
	MetricsRegistry prometheus.Registerer // Prometheus registry for metrics
	Tracer          trace.Tracer          // OpenTelemetry tracer
}

// DefaultConfig returns a config for the given target
func DefaultConfig(params ConnectionParameters) Config {
	return Config{Conn: params}
}

// WithLogger enables query logging
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	c.LogQueries = true
	return c
}

// WithSlowQueryLog logs queries slower than the threshold
func (c Config) WithSlowQueryLog(threshold time.Duration) Config {
	c.LogSlowQueries = threshold
	return c
}

// WithMetrics enables Prometheus metrics
func (c Config) WithMetrics(registry prometheus.Registerer) Config {
	c.MetricsRegistry = registry
	return c
}

// WithTracing enables OpenTelemetry tracing
func (c Config) WithTracing(tracer trace.Tracer) Config {
	c.Tracer = tracer
	return c
}
