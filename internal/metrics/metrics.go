package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector records calculator activity in its own registry.
type PrometheusCollector struct {
	intervalsTotal  *prometheus.CounterVec
	rebuildDuration *prometheus.HistogramVec
	importsTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	coverage        *prometheus.GaugeVec
	registry        *prometheus.Registry
}

// NewCollector creates a new Prometheus metrics collector
func NewCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	intervalsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoats_intervals_total",
			Help: "Intervals visited by interval calculators, by owner and outcome",
		},
		[]string{"owner", "outcome"},
	)

	rebuildDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stoats_rebuild_duration_seconds",
			Help:    "Duration of composite chain rebuilds by owner and status",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"owner", "status"},
	)

	importsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoats_imports_total",
			Help: "Activity files processed by status",
		},
		[]string{"status"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stoats_errors_total",
			Help: "Errors by owner and error type",
		},
		[]string{"owner", "error_type"},
	)

	coverage := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stoats_coverage_percent",
			Help: "Coverage of the most recent load, by owner and statistic",
		},
		[]string{"owner", "name"},
	)

	registry.MustRegister(intervalsTotal)
	registry.MustRegister(rebuildDuration)
	registry.MustRegister(importsTotal)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(coverage)

	return &PrometheusCollector{
		intervalsTotal:  intervalsTotal,
		rebuildDuration: rebuildDuration,
		importsTotal:    importsTotal,
		errorsTotal:     errorsTotal,
		coverage:        coverage,
		registry:        registry,
	}
}

// RecordInterval counts one interval outcome.
func (m *PrometheusCollector) RecordInterval(ctx context.Context, owner string, outcome string) {
	m.intervalsTotal.WithLabelValues(owner, outcome).Inc()
}

// RecordRebuild observes one chain rebuild.
func (m *PrometheusCollector) RecordRebuild(ctx context.Context, owner string, status string, durationMs int64) {
	m.rebuildDuration.WithLabelValues(owner, status).Observe(float64(durationMs) / 1000.0)
}

// RecordImport counts one processed file.
func (m *PrometheusCollector) RecordImport(ctx context.Context, status string) {
	m.importsTotal.WithLabelValues(status).Inc()
}

// RecordError records an error occurrence
func (m *PrometheusCollector) RecordError(ctx context.Context, owner string, errorType string) {
	m.errorsTotal.WithLabelValues(owner, errorType).Inc()
}

// SetCoverage sets the latest coverage percentage for a statistic.
func (m *PrometheusCollector) SetCoverage(ctx context.Context, owner string, name string, percent float64) {
	m.coverage.WithLabelValues(owner, name).Set(percent)
}

// Registry returns the Prometheus registry for exposure or dumping.
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
