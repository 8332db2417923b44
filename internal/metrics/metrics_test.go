package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector_RecordInterval(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordInterval(ctx, "RestHR", OutcomeCompute)
	collector.RecordInterval(ctx, "RestHR", OutcomeCompute)
	collector.RecordInterval(ctx, "RestHR", OutcomeSkip)
	collector.RecordInterval(ctx, "Other", OutcomeMissing)

	if got := testutil.CollectAndCount(collector.intervalsTotal); got != 3 {
		t.Errorf("expected 3 series, got %d", got)
	}

	if got := testutil.ToFloat64(collector.intervalsTotal.WithLabelValues("RestHR", OutcomeCompute)); got != 2 {
		t.Errorf("expected 2 computed intervals, got %f", got)
	}
}

func TestPrometheusCollector_RecordRebuild(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordRebuild(ctx, "Response", "ok", 120)
	collector.RecordRebuild(ctx, "Response", "error", 30)

	if got := testutil.CollectAndCount(collector.rebuildDuration); got != 2 {
		t.Errorf("expected 2 histogram series, got %d", got)
	}
}

func TestPrometheusCollector_ErrorsImportsCoverage(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordError(ctx, "Response", "INCOMPLETE_CHAIN_REBUILD")
	collector.RecordImport(ctx, "ok")
	collector.RecordImport(ctx, "skip")
	collector.SetCoverage(ctx, "Activity", "heart_rate", 50)
	collector.SetCoverage(ctx, "Activity", "heart_rate", 75)

	if got := testutil.ToFloat64(collector.errorsTotal.WithLabelValues("Response", "INCOMPLETE_CHAIN_REBUILD")); got != 1 {
		t.Errorf("expected 1 error, got %f", got)
	}
	if got := testutil.CollectAndCount(collector.importsTotal); got != 2 {
		t.Errorf("expected 2 import series, got %d", got)
	}
	if got := testutil.ToFloat64(collector.coverage.WithLabelValues("Activity", "heart_rate")); got != 75 {
		t.Errorf("expected latest coverage 75, got %f", got)
	}
}

func TestPrometheusCollector_Registry(t *testing.T) {
	collector := NewCollector()
	collector.RecordImport(context.Background(), "ok")

	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("expected gathered metric families")
	}
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NewNoopCollector()
	ctx := context.Background()

	c.RecordInterval(ctx, "x", OutcomeError)
	c.RecordRebuild(ctx, "x", "ok", 1)
	c.RecordImport(ctx, "ok")
	c.RecordError(ctx, "x", "y")
	c.SetCoverage(ctx, "x", "y", 1)
}

var (
	_ Collector = (*PrometheusCollector)(nil)
	_ Collector = (*NoopCollector)(nil)
)
