package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/metrics"
	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
)

// FreshnessThreshold is how far the latest response output may lag "now"
// before the chain is considered incomplete.
const FreshnessThreshold = 3 * time.Hour

// Rebuild statuses recorded in metrics.
const (
	RebuildOK      = "ok"
	RebuildSkipped = "skipped"
	RebuildFailed  = "failed"
)

// Response describes one exponentially decaying response to the input.
type Response struct {
	Title   string
	TauDays float64
	Start   float64
	Scale   float64
}

// Completeness is the oracle's verdict on existing response outputs.
type Completeness struct {
	// Stale lists response names whose latest output is missing or older
	// than FreshnessThreshold.
	Stale []string
	// Unused lists leaf sources with input data that no output depends on.
	Unused []ir.SourceID
}

// Complete reports whether outputs need no rebuild.
func (c Completeness) Complete() bool {
	return len(c.Stale) == 0 && len(c.Unused) == 0
}

// ResponseCalculator keeps response series, and the composite chain that
// sources them, in step with every leaf source of the input.
//
// Rebuilds are all or nothing: outputs and chain are discarded and
// regenerated in a single transaction.
type ResponseCalculator struct {
	OwnerIn   string
	OwnerOut  string
	Input     Input
	Coverage  Input
	Responses []Response
	Registry  *loader.Registry
	Clock     Clock
	Metrics   metrics.Collector
	Force     bool
}

// NewResponseCalculator reads "HR Impulse 10" written by impulseOwner,
// scaled by the "Coverage Heart Rate" of the activity that produced it.
func NewResponseCalculator(impulseOwner, activityOwner string, responses []Response, registry *loader.Registry) *ResponseCalculator {
	return &ResponseCalculator{
		OwnerIn:   impulseOwner,
		OwnerOut:  "Response",
		Input:     Input{Name: "HR Impulse 10", Owner: impulseOwner},
		Coverage:  Input{Name: ir.CoverageName("Heart Rate"), Owner: activityOwner},
		Responses: responses,
		Registry:  registry,
	}
}

func (c *ResponseCalculator) clock() Clock {
	if c.Clock == nil {
		return SystemClock{}
	}
	return c.Clock
}

func (c *ResponseCalculator) collector() metrics.Collector {
	if c.Metrics == nil {
		return metrics.NewNoopCollector()
	}
	return c.Metrics
}

// Check asks the completeness oracle about the current outputs.
func (c *ResponseCalculator) Check(ctx context.Context, tx *store.Tx, now time.Time) (Completeness, error) {
	var result Completeness
	for _, r := range c.Responses {
		latest, ok, err := tx.LatestTime(ctx, r.Title, c.OwnerOut)
		if err != nil {
			return result, fmt.Errorf("check %s: %w", r.Title, err)
		}
		if !ok || now.Sub(latest) > FreshnessThreshold {
			result.Stale = append(result.Stale, r.Title)
		}
	}

	unused, err := tx.UnusedLeafSources(ctx, c.Input.Name, c.Input.Owner, c.OwnerOut)
	if err != nil {
		return result, fmt.Errorf("check sources: %w", err)
	}
	result.Unused = unused
	return result, nil
}

// Run rebuilds chain and outputs when the oracle reports them incomplete,
// or unconditionally when Force is set.
func (c *ResponseCalculator) Run(ctx context.Context, s *store.Store) error {
	now := c.clock().Now()
	run := RunID(ctx)

	var verdict Completeness
	err := s.View(ctx, func(tx *store.Tx) error {
		var err error
		verdict, err = c.Check(ctx, tx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", c.OwnerOut, err)
	}

	if verdict.Complete() && !c.Force {
		slog.Info("responses complete", "owner", c.OwnerOut, "run", run)
		c.collector().RecordRebuild(ctx, c.OwnerOut, RebuildSkipped, 0)
		return nil
	}
	if len(verdict.Stale) > 0 {
		slog.Info("incomplete coverage, recalculating", "owner", c.OwnerOut, "stale", verdict.Stale, "run", run)
	}
	if len(verdict.Unused) > 0 {
		slog.Info("additional sources, recalculating", "owner", c.OwnerOut, "unused", len(verdict.Unused), "run", run)
		if len(verdict.Unused) <= 10 {
			slog.Debug("unused sources", "owner", c.OwnerOut, "sources", verdict.Unused)
		}
	}

	start := time.Now()
	err = s.Update(ctx, func(tx *store.Tx) error {
		if err := c.discard(ctx, tx); err != nil {
			return err
		}
		return c.rebuild(ctx, tx, now)
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		c.collector().RecordRebuild(ctx, c.OwnerOut, RebuildFailed, elapsed)
		return NewIncompleteChainRebuildError(c.OwnerOut, err)
	}
	c.collector().RecordRebuild(ctx, c.OwnerOut, RebuildOK, elapsed)
	return nil
}

// discard deletes every composite sourcing this owner's outputs, which
// cascades to the outputs, then unzips what is left of the chain.
func (c *ResponseCalculator) discard(ctx context.Context, tx *store.Tx) error {
	ids, err := tx.OutputComposites(ctx, c.OwnerOut)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	n, err := tx.DeleteSources(ctx, ids)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	cleaned, err := tx.CleanComposites(ctx)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if n > 0 {
		slog.Warn("deleted response composites", "owner", c.OwnerOut, "deleted", n, "cleaned", cleaned)
	}
	return nil
}

func (c *ResponseCalculator) rebuild(ctx context.Context, tx *store.Tx, now time.Time) error {
	points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
		Names: []string{c.Input.Name},
		Owner: c.Input.Owner,
	})
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if len(points) == 0 {
		slog.Info("no input data", "owner", c.OwnerOut)
		return nil
	}

	coverage, err := c.coverage(ctx, tx)
	if err != nil {
		return err
	}

	slog.Info("creating sources", "owner", c.OwnerOut)
	links, err := BuildChain(ctx, tx, Transitions(points))
	if err != nil {
		return err
	}

	hourly := HourlySums(points, coverage)
	grid := HourGrid(points[0].Time, points[len(points)-1].Time, now)

	l := loader.New(c.OwnerOut, c.Registry)
	for _, r := range c.Responses {
		slog.Info("creating values", "owner", c.OwnerOut, "response", r.Title)
		values := r.Values(grid, hourly)
		tags := newTagger(links)
		for i, t := range grid {
			tag, popped := tags.at(t)
			if popped > 1 {
				slog.Warn("skipping multiple sources", "owner", c.OwnerOut, "time", t, "skipped", popped-1)
			}
			err := l.Add(loader.Entry{
				Name:        r.Title,
				Units:       "FF",
				Summary:     "[max],[avg]",
				Description: fmt.Sprintf("The response for a decay of %g days.", r.TauDays),
				Source:      tag,
				Value:       ir.FloatValue(values[i]),
				Time:        t,
			})
			if err != nil {
				return err
			}
		}
	}
	if _, err := l.Load(ctx, tx); err != nil {
		return err
	}
	slog.Info("responses rebuilt",
		"owner", c.OwnerOut,
		"links", len(links),
		"hours", len(grid),
	)
	return nil
}

// coverage maps each leaf source to its heart-rate coverage percentage.
func (c *ResponseCalculator) coverage(ctx context.Context, tx *store.Tx) (map[ir.SourceID]float64, error) {
	out := make(map[ir.SourceID]float64)
	if c.Coverage.Name == "" {
		return out, nil
	}
	points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
		Names: []string{c.Coverage.Name},
		Owner: c.Coverage.Owner,
	})
	if err != nil {
		return nil, fmt.Errorf("read coverage: %w", err)
	}
	for _, p := range points {
		if v, ok := p.Value.AsFloat(); ok {
			out[p.SourceID] = v
		}
	}
	return out, nil
}

// HourlySums adds input values into hour buckets. A value at t lands in
// the bucket ending at RoundHour(t, up). Values are scaled by 100 over
// their source's coverage when that is known and positive.
func HourlySums(points []ir.Point, coverage map[ir.SourceID]float64) map[int64]float64 {
	sums := make(map[int64]float64)
	for _, p := range points {
		v, ok := p.Value.AsFloat()
		if !ok || math.IsNaN(v) {
			continue
		}
		if cov, ok := coverage[p.SourceID]; ok && cov > 0 {
			v = v * 100 / cov
		}
		sums[RoundHour(p.Time, true).Unix()] += v
	}
	return sums
}

// HourGrid returns hourly output times from the hour before the first
// input up to the later of the last input and now, rounded up.
func HourGrid(first, last, now time.Time) []time.Time {
	from := RoundHour(first, true).Add(-time.Hour)
	to := RoundHour(now, true)
	if end := RoundHour(last, true); end.After(to) {
		to = end
	}
	var grid []time.Time
	for t := from; !t.After(to); t = t.Add(time.Hour) {
		grid = append(grid, t)
	}
	return grid
}

// Values integrates hourly sums over grid with exponential decay.
func (r Response) Values(grid []time.Time, hourly map[int64]float64) []float64 {
	decay := 0.0
	if r.TauDays > 0 {
		decay = math.Exp(-1 / (r.TauDays * 24))
	}
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	values := make([]float64, len(grid))
	level := r.Start
	for i, t := range grid {
		level = level*decay + hourly[t.Unix()]
		values[i] = level * scale
	}
	return values
}

// Job adapts the calculator for the Scheduler.
func (c *ResponseCalculator) Job() Job { return responseJob{c} }

type responseJob struct{ c *ResponseCalculator }

func (j responseJob) Owner() string { return j.c.OwnerOut }

func (j responseJob) Run(ctx context.Context, s *store.Store) error { return j.c.Run(ctx, s) }
