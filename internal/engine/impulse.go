package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
)

// ImpulseParams shape the heart-rate impulse.
type ImpulseParams struct {
	// Lower and Upper bound the heart-rate range mapped onto [0, 1].
	Lower float64
	Upper float64
	// Gamma is applied to the clamped fraction.
	Gamma float64
	// MaxGap caps the time credited to one sample, so recording gaps do
	// not count as effort.
	MaxGap time.Duration
}

// DefaultImpulseParams are used when no configuration overrides them.
var DefaultImpulseParams = ImpulseParams{
	Lower:  100,
	Upper:  190,
	Gamma:  1,
	MaxGap: 30 * time.Second,
}

// ImpulseCalculator derives an impulse series from each activity's heart
// rate. Impulse values are written with the activity as their source.
type ImpulseCalculator struct {
	Owner    string
	Input    Input
	Output   string
	Params   ImpulseParams
	Registry *loader.Registry
	Force    bool
}

// NewImpulseCalculator returns a calculator reading "Heart Rate" written
// by activityOwner and producing "HR Impulse 10".
func NewImpulseCalculator(activityOwner string, registry *loader.Registry) *ImpulseCalculator {
	return &ImpulseCalculator{
		Owner:    "Impulse",
		Input:    Input{Name: "Heart Rate", Owner: activityOwner},
		Output:   "HR Impulse 10",
		Params:   DefaultImpulseParams,
		Registry: registry,
	}
}

// Impulse returns the impulse contributed by one heart-rate sample held
// for dt.
func (p ImpulseParams) Impulse(hr float64, dt time.Duration) float64 {
	if p.Upper <= p.Lower || math.IsNaN(hr) {
		return 0
	}
	fraction := (hr - p.Lower) / (p.Upper - p.Lower)
	fraction = math.Max(0, math.Min(1, fraction))
	gamma := p.Gamma
	if gamma <= 0 {
		gamma = 1
	}
	if p.MaxGap > 0 && dt > p.MaxGap {
		dt = p.MaxGap
	}
	return math.Pow(fraction, gamma) * dt.Seconds() / 10
}

// Run computes impulse for every activity that has none yet (or for all
// activities when Force is set). Each activity commits separately.
func (c *ImpulseCalculator) Run(ctx context.Context, s *store.Store) error {
	var activities []ir.Activity
	err := s.View(ctx, func(tx *store.Tx) error {
		var err error
		activities, err = tx.ListActivities(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: list activities: %w", c.Owner, err)
	}

	var computed, skipped int
	for _, a := range activities {
		if err := ctx.Err(); err != nil {
			return err
		}
		done, err := c.one(ctx, s, a)
		if err != nil {
			return fmt.Errorf("%s: activity %d: %w", c.Owner, a.ID, err)
		}
		if done {
			computed++
		} else {
			skipped++
		}
	}

	slog.Info("impulse finished",
		"owner", c.Owner,
		"computed", computed,
		"skipped", skipped,
		"run", RunID(ctx),
	)
	return nil
}

func (c *ImpulseCalculator) one(ctx context.Context, s *store.Store, a ir.Activity) (bool, error) {
	var done bool
	err := s.Update(ctx, func(tx *store.Tx) error {
		existing, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
			Names:     []string{c.Output},
			Owner:     c.Owner,
			SourceIDs: []ir.SourceID{a.ID},
			Limit:     1,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			if !c.Force {
				return nil
			}
			name, err := tx.GetName(ctx, c.Output, c.Owner, a.Group)
			if err != nil {
				return err
			}
			if _, err := tx.DeleteJournals(ctx, a.ID, name.ID); err != nil {
				return err
			}
		}

		hr, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
			Names:     []string{c.Input.Name},
			Owner:     c.Input.Owner,
			SourceIDs: []ir.SourceID{a.ID},
		})
		if err != nil {
			return err
		}
		if len(hr) == 0 {
			slog.Debug("no heart rate for activity", "owner", c.Owner, "activity", a.ID)
			return nil
		}

		l := loader.New(c.Owner, c.Registry)
		for i, p := range hr {
			v, ok := p.Value.AsFloat()
			if !ok {
				continue
			}
			var dt time.Duration
			if i+1 < len(hr) {
				dt = hr[i+1].Time.Sub(p.Time)
			}
			err := l.Add(loader.Entry{
				Name:        c.Output,
				Units:       "FF",
				Summary:     "[sum],[avg]",
				Description: "Heart rate impulse, used by the fitness and fatigue responses.",
				Group:       a.Group,
				Source:      a.ID,
				Value:       ir.FloatValue(c.Params.Impulse(v, dt)),
				Time:        p.Time,
			})
			if err != nil {
				return err
			}
		}
		if _, err := l.Load(ctx, tx); err != nil {
			return err
		}
		done = true
		return nil
	})
	return done, err
}

// Job adapts the calculator for the Scheduler.
func (c *ImpulseCalculator) Job() Job { return impulseJob{c} }

type impulseJob struct{ c *ImpulseCalculator }

func (j impulseJob) Owner() string { return j.c.Owner }

func (j impulseJob) Run(ctx context.Context, s *store.Store) error { return j.c.Run(ctx, s) }
