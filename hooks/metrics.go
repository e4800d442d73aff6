package hooks

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsHook records per-operation Prometheus metrics: a query duration
// histogram, a total counter, and an error counter.
type MetricsHook struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewMetricsHook creates a metrics hook with its collectors registered on
// registry. When a collector with the same name is already registered, the
// existing one is adopted, so several clients can share one registry.
func NewMetricsHook(registry prometheus.Registerer) (*MetricsHook, error) {
	h := &MetricsHook{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pgmodel_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmodel_queries_total",
			Help: "Total number of database queries",
		}, []string{"operation"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pgmodel_query_errors_total",
			Help: "Total number of database query errors",
		}, []string{"operation"}),
	}

	if err := registry.Register(h.duration); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		h.duration = already.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := registry.Register(h.total); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		h.total = already.ExistingCollector.(*prometheus.CounterVec)
	}
	if err := registry.Register(h.failed); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		h.failed = already.ExistingCollector.(*prometheus.CounterVec)
	}

	return h, nil
}

// BeforeQuery implements QueryHook
func (h *MetricsHook) BeforeQuery(ctx context.Context, event *QueryEvent) context.Context {
	return ctx
}

// AfterQuery implements QueryHook
func (h *MetricsHook) AfterQuery(ctx context.Context, event *QueryEvent) {
	op := OperationType(event.Query)

	h.duration.WithLabelValues(op).Observe(event.Duration().Seconds())
	h.total.WithLabelValues(op).Inc()
	if event.Err != nil {
		h.failed.WithLabelValues(op).Inc()
	}
}
