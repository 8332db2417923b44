// Package metrics counts calculator outcomes for diagnostics.
package metrics

import "context"

// Collector is the interface for metrics collection.
// Implementations are the Prometheus-backed collector and the no-op
// collector used when metrics are not requested.
type Collector interface {
	RecordInterval(ctx context.Context, owner string, outcome string)
	RecordRebuild(ctx context.Context, owner string, status string, durationMs int64)
	RecordImport(ctx context.Context, status string)
	RecordError(ctx context.Context, owner string, errorType string)
	SetCoverage(ctx context.Context, owner string, name string, percent float64)
}

// Interval outcomes.
const (
	OutcomeCompute = "compute"
	OutcomeSkip    = "skip"
	OutcomeMissing = "missing"
	OutcomeError   = "error"
)
