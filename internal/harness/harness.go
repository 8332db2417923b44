package harness

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/roach88/stoats/internal/activity"
	"github.com/roach88/stoats/internal/config"
	"github.com/roach88/stoats/internal/engine"
	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/kit"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
	"github.com/roach88/stoats/internal/testutil"
)

// Harness holds the components wired for one scenario.
type Harness struct {
	store       *store.Store
	config      *config.Config
	clock       *testutil.FixedClock
	kit         *kit.Manager
	importer    *activity.Importer
	calculators config.Calculators
}

// Run executes a scenario in a fresh in-memory store.
//
// Execution flow:
//  1. Parse the configuration overlay
//  2. Apply kit steps
//  3. Import activities, checking expected import errors
//  4. Run calculators through the scheduler, stage by stage
//  5. Snapshot the chain and evaluate assertions
//
// Setup problems (bad config, failing kit steps) are returned as errors.
// Everything else is reported in the Result.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cfg, err := config.Parse([]byte(scenario.Config), scenario.Name+".cue")
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	registry := loader.NewRegistry()
	clock := testutil.NewFixedClock(scenario.Now)
	kits := kit.NewManager(registry)
	h := &Harness{
		store:       st,
		config:      cfg,
		clock:       clock,
		kit:         kits,
		importer:    activity.NewImporter(st, cfg, registry, activity.WithKit(kits)),
		calculators: cfg.Calculators(registry, clock, nil),
	}

	ctx := context.Background()
	result := NewResult()

	if err := h.applyKit(ctx, scenario.Kit); err != nil {
		return nil, fmt.Errorf("failed to apply kit: %w", err)
	}
	h.runImports(ctx, scenario.Imports, result)
	if err := h.calculate(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to calculate: %w", err)
	}

	snap, err := h.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot: %w", err)
	}
	result.Snapshot = snap

	actx := &AssertionContext{Ctx: ctx, Store: st, Snapshot: snap}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) applyKit(ctx context.Context, steps []KitStep) error {
	for i, step := range steps {
		err := h.store.Update(ctx, func(tx *store.Tx) error {
			var err error
			switch step.Op {
			case "new":
				_, err = h.kit.New(ctx, tx, step.Group, step.Item, step.At, step.Force)
			case "add":
				_, err = h.kit.Add(ctx, tx, step.Item, step.Component, step.Model, step.At, step.Force)
			case "retire":
				err = h.kit.Retire(ctx, tx, step.Name, step.At, step.Force)
			case "delete":
				err = h.kit.Delete(ctx, tx, step.Name)
			default:
				err = fmt.Errorf("unknown op %q", step.Op)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("kit[%d] %s: %w", i, step.Op, err)
		}
	}
	return nil
}

func (h *Harness) runImports(ctx context.Context, imports []ImportStep, result *Result) {
	for i, imp := range imports {
		var res activity.Result
		var err error
		if imp.File != "" {
			res, err = h.importer.ImportFile(ctx, imp.File, imp.Define, imp.Force)
		} else {
			res, err = h.importer.Import(ctx, activity.Request{
				Hash:    imp.Hash,
				Records: generate(imp),
				Define:  imp.Define,
				Force:   imp.Force,
			})
		}

		outcome := ImportOutcome{Hash: imp.Hash, Activity: res.Activity, Group: res.Group, Written: res.Written}
		if err != nil {
			outcome.Err = err.Error()
		}
		result.Imports = append(result.Imports, outcome)

		switch {
		case imp.Error != "" && err == nil:
			result.AddError(fmt.Sprintf("imports[%d]: expected error containing %q, import succeeded", i, imp.Error))
		case imp.Error != "" && !strings.Contains(err.Error(), imp.Error):
			result.AddError(fmt.Sprintf("imports[%d]: expected error containing %q, got %v", i, imp.Error, err))
		case imp.Error == "" && err != nil:
			result.AddError(fmt.Sprintf("imports[%d]: %v", i, err))
		}
	}
}

// generate yields a sport record, when the step names one, then Count
// data records spaced by the step.
func generate(imp ImportStep) iter.Seq2[activity.Record, error] {
	return func(yield func(activity.Record, error) bool) {
		if imp.Sport != "" {
			sport := activity.Record{Name: activity.RecordSport, Fields: map[string]any{"sport": imp.Sport}}
			if !yield(sport, nil) {
				return
			}
		}
		step := imp.step()
		for i := range imp.Count {
			rec := activity.Record{
				Name:   activity.RecordData,
				Time:   imp.Start.UTC().Add(step * time.Duration(i)),
				Fields: maps.Clone(imp.Fields),
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (h *Harness) calculate(ctx context.Context, scenario *Scenario, result *Result) error {
	stages, err := h.calculators.Stages(scenario.Calculate, engine.Range{Force: scenario.Force})
	if err != nil {
		return err
	}

	sched := engine.NewScheduler(h.store)
	sched.Start(ctx)
	defer sched.Stop()

	for _, jr := range sched.RunStages(ctx, stages) {
		outcome := JobOutcome{Owner: jr.Owner}
		if jr.Err != nil {
			outcome.Err = jr.Err.Error()
			result.AddError(fmt.Sprintf("%s: %v", jr.Owner, jr.Err))
		}
		result.Jobs = append(result.Jobs, outcome)
	}
	return nil
}

func (h *Harness) snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{Chain: []ChainLink{}, Counts: []StatisticCount{}}
	response := h.calculators.Response

	err := h.store.View(ctx, func(tx *store.Tx) error {
		activities, err := tx.ListActivities(ctx)
		if err != nil {
			return err
		}
		hashes := make(map[ir.SourceID]string, len(activities))
		for _, a := range activities {
			hashes[a.ID] = a.FileHash
		}

		names, err := tx.ListNames(ctx)
		if err != nil {
			return err
		}
		for _, n := range names {
			constraint := n.Constraint
			points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
				Names:      []string{n.Name},
				Owner:      n.Owner,
				Constraint: &constraint,
			})
			if err != nil {
				return err
			}
			snap.Counts = append(snap.Counts, StatisticCount{
				Name:       n.Name,
				Owner:      n.Owner,
				Constraint: n.Constraint,
				Points:     len(points),
			})
		}

		titles := make([]string, len(response.Responses))
		for i, r := range response.Responses {
			titles[i] = r.Title
		}
		if len(titles) > 0 {
			outputs, err := tx.ReadSeries(ctx, querysql.SeriesQuery{Names: titles, Owner: response.OwnerOut})
			if err != nil {
				return err
			}
			seen := make(map[ir.SourceID]bool)
			for _, p := range outputs {
				if seen[p.SourceID] {
					continue
				}
				seen[p.SourceID] = true
				node, err := tx.Provenance(ctx, p.SourceID)
				if err != nil {
					return err
				}
				snap.Chain = append(snap.Chain, ChainLink{
					First:  p.Time,
					Source: p.SourceID,
					Leaves: leaves(node, hashes),
				})
			}
		}

		verdict, err := response.Check(ctx, tx, h.clock.Now())
		if err != nil {
			return err
		}
		snap.Complete = verdict.Complete()
		return nil
	})
	return snap, err
}

// leaves collects the file hashes of every activity under node.
func leaves(node store.ProvenanceNode, hashes map[ir.SourceID]string) []string {
	set := make(map[string]bool)
	var walk func(n store.ProvenanceNode)
	walk = func(n store.ProvenanceNode) {
		if n.Source.Kind == ir.SourceActivity {
			set[hashes[n.Source.ID]] = true
		}
		for _, in := range n.Inputs {
			walk(in)
		}
	}
	walk(node)
	out := slices.Sorted(maps.Keys(set))
	if out == nil {
		out = []string{}
	}
	return out
}
