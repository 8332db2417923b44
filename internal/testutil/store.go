package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// OpenStore opens a store in a temporary directory, closed at cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "stoats.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// Update runs fn in a write transaction and fails the test on error.
func Update(t *testing.T, s *store.Store, fn func(ctx context.Context, tx *store.Tx) error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx *store.Tx) error {
		return fn(ctx, tx)
	}))
}

// Sample is one float value for SeedActivity.
type Sample struct {
	Time  time.Time
	Value float64
}

// SeedActivity creates an activity leaf source in group and writes
// samples as float statistic name under owner. The activity spans the
// samples.
func SeedActivity(t *testing.T, s *store.Store, group, hash, owner, name string, samples []Sample) ir.SourceID {
	t.Helper()
	require.NotEmpty(t, samples)

	var id ir.SourceID
	Update(t, s, func(ctx context.Context, tx *store.Tx) error {
		var err error
		id, err = tx.CreateActivity(ctx, ir.Activity{
			Group:    group,
			Start:    samples[0].Time,
			Finish:   samples[len(samples)-1].Time,
			FileHash: hash,
		})
		if err != nil {
			return err
		}
		stat, err := tx.RegisterName(ctx, ir.StatisticName{
			Title:      name,
			Owner:      owner,
			Constraint: group,
			Type:       ir.JournalFloat,
		})
		if err != nil {
			return err
		}
		for _, sample := range samples {
			if _, err := tx.Write(ctx, stat, id, sample.Time, ir.FloatValue(sample.Value), false); err != nil {
				return err
			}
		}
		return nil
	})
	return id
}

// Every returns n samples of value spaced by step from start.
func Every(start time.Time, step time.Duration, n int, value float64) []Sample {
	samples := make([]Sample, n)
	for i := range samples {
		samples[i] = Sample{Time: start.Add(time.Duration(i) * step), Value: value}
	}
	return samples
}
