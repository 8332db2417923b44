package metrics

import "context"

// NoopCollector discards everything.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

func (n *NoopCollector) RecordInterval(ctx context.Context, owner string, outcome string) {}

func (n *NoopCollector) RecordRebuild(ctx context.Context, owner string, status string, durationMs int64) {
}

func (n *NoopCollector) RecordImport(ctx context.Context, status string) {}

func (n *NoopCollector) RecordError(ctx context.Context, owner string, errorType string) {}

func (n *NoopCollector) SetCoverage(ctx context.Context, owner string, name string, percent float64) {
}
