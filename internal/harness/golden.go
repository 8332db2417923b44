package harness

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stoats/internal/ir"
)

// Canonical returns the snapshot as canonical JSON for golden files.
// Source IDs are left out so snapshots survive unrelated changes to
// creation order.
func (s *Snapshot) Canonical(scenarioName string) ([]byte, error) {
	chain := make([]any, len(s.Chain))
	for i, link := range s.Chain {
		leaves := make([]any, len(link.Leaves))
		for j, l := range link.Leaves {
			leaves[j] = l
		}
		chain[i] = map[string]any{
			"first":  link.First.UTC().Format(time.RFC3339),
			"leaves": leaves,
		}
	}

	counts := make([]any, len(s.Counts))
	for i, c := range s.Counts {
		counts[i] = map[string]any{
			"name":       c.Name,
			"owner":      c.Owner,
			"constraint": c.Constraint,
			"points":     c.Points,
		}
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario_name": scenarioName,
		"chain":         chain,
		"counts":        counts,
		"complete":      s.Complete,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := result.Snapshot.Canonical(scenarioName)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
