package harness

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
)

// DefaultTolerance applies to value assertions that give none.
const DefaultTolerance = 1e-6

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext carries what assertions read from.
type AssertionContext struct {
	Ctx      context.Context
	Store    *store.Store
	Snapshot *Snapshot
}

// EvaluateAssertions runs every assertion and returns the failure
// messages.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertCount:
			err = assertCount(actx, a)
		case AssertValue:
			err = assertValue(actx, a)
		case AssertChain:
			err = assertChain(actx, a)
		case AssertComplete:
			err = assertComplete(actx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return errors
}

func assertCount(actx *AssertionContext, a Assertion) error {
	if actx.Store == nil {
		return fmt.Errorf("count requires a store")
	}
	var n int
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		points, err := tx.ReadSeries(actx.Ctx, querysql.SeriesQuery{Names: []string{a.Name}, Owner: a.Owner})
		n = len(points)
		return err
	})
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d points of %s/%s", *a.Count, a.Owner, a.Name),
			Actual:   fmt.Sprintf("%d points", n),
		}
	}
	return nil
}

func assertValue(actx *AssertionContext, a Assertion) error {
	if actx.Store == nil {
		return fmt.Errorf("value requires a store")
	}
	var got []float64
	err := actx.Store.View(actx.Ctx, func(tx *store.Tx) error {
		points, err := tx.ReadSeries(actx.Ctx, querysql.SeriesQuery{
			Names:  []string{a.Name},
			Owner:  a.Owner,
			Start:  a.At,
			Finish: a.At.Add(time.Second),
		})
		for _, p := range points {
			if v, ok := p.Value.AsFloat(); ok {
				got = append(got, v)
			}
		}
		return err
	})
	if err != nil {
		return err
	}

	expected := fmt.Sprintf("%s/%s = %g at %s", a.Owner, a.Name, *a.Value, a.At.UTC().Format(time.RFC3339))
	if len(got) == 0 {
		return &AssertionError{Type: AssertValue, Expected: expected, Actual: "no numeric value"}
	}
	tolerance := a.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if math.Abs(got[0]-*a.Value) > tolerance {
		return &AssertionError{Type: AssertValue, Expected: expected, Actual: fmt.Sprintf("%g", got[0])}
	}
	return nil
}

func assertChain(actx *AssertionContext, a Assertion) error {
	if actx.Snapshot == nil {
		return fmt.Errorf("chain requires a snapshot")
	}
	if n := len(actx.Snapshot.Chain); n != *a.Links {
		return &AssertionError{
			Type:     AssertChain,
			Expected: fmt.Sprintf("%d links", *a.Links),
			Actual:   fmt.Sprintf("%d links", n),
		}
	}
	return nil
}

func assertComplete(actx *AssertionContext, a Assertion) error {
	if actx.Snapshot == nil {
		return fmt.Errorf("complete requires a snapshot")
	}
	if actx.Snapshot.Complete != *a.Complete {
		return &AssertionError{
			Type:     AssertComplete,
			Expected: fmt.Sprintf("complete=%t", *a.Complete),
			Actual:   fmt.Sprintf("complete=%t", actx.Snapshot.Complete),
		}
	}
	return nil
}
