package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stoats/internal/engine"
	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/metrics"
)

// OwnerRestHR owns the rest heart rate intervals.
const OwnerRestHR = "RestHR"

// Calculators is the configured calculator set.
type Calculators struct {
	Impulse  *engine.ImpulseCalculator
	Response *engine.ResponseCalculator
	RestHR   *engine.IntervalCalculator
}

// Calculators builds the calculators the configuration describes. A nil
// clock or collector falls back to the system clock and no metrics.
func (c *Config) Calculators(registry *loader.Registry, clock engine.Clock, m metrics.Collector) Calculators {
	impulse := engine.NewImpulseCalculator(c.ActivityOwner, registry)
	impulse.Params = c.ImpulseParams()

	response := engine.NewResponseCalculator(impulse.Owner, c.ActivityOwner, c.EngineResponses(), registry)
	response.Clock = clock
	response.Metrics = m

	return Calculators{
		Impulse:  impulse,
		Response: response,
		RestHR: &engine.IntervalCalculator{
			Owner:    OwnerRestHR,
			Schedule: c.RestHRSchedule(),
			Func:     engine.NewRestHR(),
			Registry: registry,
			Clock:    clock,
			Metrics:  m,
		},
	}
}

// Owners lists every calculator owner.
func (cs Calculators) Owners() []string {
	return []string{cs.Impulse.Owner, cs.RestHR.Owner, cs.Response.Owner}
}

// OwnersFor maps output statistic names to the owners that write them.
func (cs Calculators) OwnersFor(names []string) ([]string, error) {
	outputs := map[string]string{
		ir.CanonicalName(cs.Impulse.Output): cs.Impulse.Owner,
		ir.CanonicalName(engine.RestHRName): cs.RestHR.Owner,
	}
	for _, r := range cs.Response.Responses {
		outputs[ir.CanonicalName(r.Title)] = cs.Response.OwnerOut
	}

	var owners []string
	for _, name := range names {
		owner, ok := outputs[ir.CanonicalName(name)]
		if !ok {
			return nil, fmt.Errorf("no calculator writes %q", name)
		}
		if !slices.Contains(owners, owner) {
			owners = append(owners, owner)
		}
	}
	return owners, nil
}

// Stages returns scheduler jobs for the named owners, or for all owners
// when none are named. Jobs within a stage may run in parallel; each stage
// reads what earlier stages wrote. r.Force also forces impulse and
// response recalculation.
func (cs Calculators) Stages(owners []string, r engine.Range) ([][]engine.Job, error) {
	want := make(map[string]bool)
	for _, o := range owners {
		found := false
		for _, known := range cs.Owners() {
			if strings.EqualFold(o, known) {
				want[known] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown calculator %q (known: %s)", o, strings.Join(cs.Owners(), ", "))
		}
	}
	selected := func(owner string) bool { return len(want) == 0 || want[owner] }

	cs.Impulse.Force = r.Force
	cs.Response.Force = r.Force

	var first, second []engine.Job
	if selected(cs.Impulse.Owner) {
		first = append(first, cs.Impulse.Job())
	}
	if selected(cs.RestHR.Owner) {
		first = append(first, cs.RestHR.Job(r))
	}
	if selected(cs.Response.Owner) {
		second = append(second, cs.Response.Job())
	}

	var stages [][]engine.Job
	for _, stage := range [][]engine.Job{first, second} {
		if len(stage) > 0 {
			stages = append(stages, stage)
		}
	}
	return stages, nil
}
