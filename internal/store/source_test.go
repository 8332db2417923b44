package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
)

func TestCreateSource_InvalidKind(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.CreateSource(ctx, ir.SourceKind("bogus"))
		assert.Error(t, err)
	})
}

func TestActivityByHash(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.ActivityByHash(ctx, "missing")
		assert.True(t, IsNotFound(err))

		id := createActivity(t, ctx, tx, "abc")

		a, err := tx.ActivityByHash(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, id, a.ID)
		assert.Equal(t, "bike", a.Group)
		assert.Equal(t, testDay, a.Start)

		_, err = tx.CreateActivity(ctx, ir.Activity{Group: "bike", FileHash: "abc"})
		assert.Error(t, err, "file hash is unique")

		all, err := tx.ListActivities(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestGetOrCreateInterval(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		at := testDay.Add(13 * time.Hour)

		first, created, err := tx.GetOrCreateInterval(ctx, "RestHR", ir.Daily, at)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, testDay, first.Start)
		assert.Equal(t, testDay.AddDate(0, 0, 1), first.Finish)

		again, created, err := tx.GetOrCreateInterval(ctx, "RestHR", ir.Daily, testDay)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)

		weekly, created, err := tx.GetOrCreateInterval(ctx, "RestHR", ir.MustParseSchedule("w"), at)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotEqual(t, first.ID, weekly.ID)

		_, err = tx.FindInterval(ctx, "RestHR", ir.Daily, testDay.AddDate(0, 0, 1))
		assert.True(t, IsNotFound(err))
	})
}

func TestDeleteSource_CascadesJournals(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		a := createActivity(t, ctx, tx, "a")
		b := createActivity(t, ctx, tx, "b")
		hr := registerFloat(t, ctx, tx, "Heart Rate", "Activity")
		for _, src := range []ir.SourceID{a, b} {
			_, err := tx.Write(ctx, hr, src, testDay, ir.FloatValue(60), false)
			require.NoError(t, err)
		}

		require.NoError(t, tx.DeleteSource(ctx, a))

		n, err := tx.CountJournals(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = tx.CountJournals(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}
