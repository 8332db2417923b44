package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/metrics"
	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
)

// Input names a series read by a calculator. An empty Owner matches any
// owner.
type Input struct {
	Name  string
	Owner string
}

// Series holds input points keyed by canonical statistic name.
type Series map[string][]ir.Point

// IntervalFunc computes the output of one interval.
//
// Returning no entries, or a MISSING_INPUT error, leaves the interval
// unresolved; it will be retried on the next sweep. Entries need no
// Source: the calculator sets it to the interval.
type IntervalFunc interface {
	Inputs() []Input
	Calculate(ctx context.Context, interval ir.Interval, data Series) ([]loader.Entry, error)
}

// Range bounds a sweep. A zero Start means "from the earliest input
// data"; a zero Finish means "up to now", in which case only windows that
// have already closed are computed.
type Range struct {
	Start  time.Time
	Finish time.Time
	Force  bool
}

// IntervalSummary counts the outcome of each window in a sweep.
type IntervalSummary struct {
	Computed int
	Skipped  int
	Missing  int
	Failed   int
}

// IntervalCalculator applies an IntervalFunc to every window of a
// schedule, writing one interval source per resolved window.
type IntervalCalculator struct {
	Owner    string
	Schedule ir.Schedule
	Func     IntervalFunc
	Registry *loader.Registry
	Clock    Clock
	Metrics  metrics.Collector
}

func (c *IntervalCalculator) clock() Clock {
	if c.Clock == nil {
		return SystemClock{}
	}
	return c.Clock
}

func (c *IntervalCalculator) collector() metrics.Collector {
	if c.Metrics == nil {
		return metrics.NewNoopCollector()
	}
	return c.Metrics
}

// Sweep visits every window in r. Each window commits independently.
//
// A failing window is logged and counted and the sweep continues, except
// for provenance violations, which abort the sweep. Cancellation is
// checked between windows.
func (c *IntervalCalculator) Sweep(ctx context.Context, s *store.Store, r Range) (IntervalSummary, error) {
	var summary IntervalSummary
	now := c.clock().Now()
	run := RunID(ctx)

	start, finish := r.Start, r.Finish
	if start.IsZero() {
		earliest, ok, err := c.earliest(ctx, s)
		if err != nil {
			return summary, fmt.Errorf("%s: find start: %w", c.Owner, err)
		}
		if !ok {
			slog.Info("no input data", "owner", c.Owner, "run", run)
			return summary, nil
		}
		start = earliest
	}
	closedOnly := finish.IsZero()
	if closedOnly {
		finish = now
	}

	slog.Info("interval sweep starting",
		"owner", c.Owner,
		"schedule", c.Schedule.String(),
		"start", start.Format(time.DateOnly),
		"finish", finish.Format(time.DateOnly),
		"force", r.Force,
		"run", run,
	)

	for _, window := range c.Schedule.Windows(start, finish) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if closedOnly && window[1].After(now) {
			break
		}

		outcome, err := c.one(ctx, s, window[0], window[1], r.Force)
		if err != nil {
			summary.Failed++
			c.collector().RecordInterval(ctx, c.Owner, metrics.OutcomeError)
			c.collector().RecordError(ctx, c.Owner, errorType(err))
			slog.Error("interval failed",
				"owner", c.Owner,
				"interval", window[0].Format(time.DateOnly),
				"error", err,
				"run", run,
			)
			if store.IsProvenanceViolation(err) {
				return summary, err
			}
			continue
		}

		c.collector().RecordInterval(ctx, c.Owner, outcome)
		switch outcome {
		case metrics.OutcomeCompute:
			summary.Computed++
		case metrics.OutcomeSkip:
			summary.Skipped++
		case metrics.OutcomeMissing:
			summary.Missing++
		}
	}

	slog.Info("interval sweep finished",
		"owner", c.Owner,
		"computed", summary.Computed,
		"skipped", summary.Skipped,
		"missing", summary.Missing,
		"failed", summary.Failed,
		"run", run,
	)
	return summary, nil
}

// one resolves a single window inside its own transaction.
func (c *IntervalCalculator) one(ctx context.Context, s *store.Store, start, finish time.Time, force bool) (string, error) {
	outcome := metrics.OutcomeCompute
	day := start.Format(time.DateOnly)

	err := s.Update(ctx, func(tx *store.Tx) error {
		existing, err := tx.FindInterval(ctx, c.Owner, c.Schedule, start)
		switch {
		case err == nil:
			hasOutput, err := tx.IntervalHasOutput(ctx, existing.ID)
			if err != nil {
				return err
			}
			if hasOutput && !force {
				slog.Debug("interval exists, skipping", "owner", c.Owner, "interval", day)
				outcome = metrics.OutcomeSkip
				return nil
			}
			// Forced, or an empty leftover: start from scratch.
			if err := tx.DeleteSource(ctx, existing.ID); err != nil {
				return err
			}
		case !store.IsNotFound(err):
			return err
		}

		data, err := c.read(ctx, tx, start, finish)
		if err != nil {
			return err
		}

		interval := ir.Interval{Owner: c.Owner, Schedule: c.Schedule, Start: start, Finish: finish}
		entries, err := c.Func.Calculate(ctx, interval, data)
		if err != nil && !IsMissingInput(err) {
			return err
		}
		if len(entries) == 0 {
			slog.Warn("no value for interval", "owner", c.Owner, "interval", day, "reason", err)
			outcome = metrics.OutcomeMissing
			return nil
		}

		interval, _, err = tx.GetOrCreateInterval(ctx, c.Owner, c.Schedule, start)
		if err != nil {
			return err
		}

		l := loader.New(c.Owner, c.Registry)
		for _, e := range entries {
			e.Source = interval.ID
			if err := l.Add(e); err != nil {
				return err
			}
		}
		if _, err := l.Load(ctx, tx); err != nil {
			return err
		}

		slog.Debug("interval computed", "owner", c.Owner, "interval", day, "entries", len(entries))
		return nil
	})
	return outcome, err
}

func (c *IntervalCalculator) read(ctx context.Context, tx *store.Tx, start, finish time.Time) (Series, error) {
	data := make(Series)
	for _, input := range c.Func.Inputs() {
		points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
			Names:  []string{input.Name},
			Owner:  input.Owner,
			Start:  start,
			Finish: finish,
		})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", input.Name, err)
		}
		data[ir.CanonicalName(input.Name)] = points
	}
	return data, nil
}

func (c *IntervalCalculator) earliest(ctx context.Context, s *store.Store) (time.Time, bool, error) {
	var earliest time.Time
	var found bool
	err := s.View(ctx, func(tx *store.Tx) error {
		for _, input := range c.Func.Inputs() {
			t, ok, err := tx.EarliestTime(ctx, input.Owner, input.Name)
			if err != nil {
				return err
			}
			if ok && (!found || t.Before(earliest)) {
				earliest, found = t, true
			}
		}
		return nil
	})
	return earliest, found, err
}

// Job wraps a sweep over r for the Scheduler.
func (c *IntervalCalculator) Job(r Range) Job {
	return &intervalJob{calc: c, r: r}
}

type intervalJob struct {
	calc *IntervalCalculator
	r    Range
}

func (j *intervalJob) Owner() string { return j.calc.Owner }

func (j *intervalJob) Run(ctx context.Context, s *store.Store) error {
	_, err := j.calc.Sweep(ctx, s, j.r)
	return err
}

func errorType(err error) string {
	var re *RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	var se *store.Error
	if errors.As(err, &se) {
		return string(se.Code)
	}
	return "internal"
}
