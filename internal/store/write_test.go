package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/querysql"
)

func TestRegisterName_GetOrCreate(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		first, err := tx.RegisterName(ctx, ir.StatisticName{
			Title: "Rest HR", Owner: "RestHR", Units: "bpm", Type: ir.JournalInteger,
		})
		require.NoError(t, err)
		assert.Equal(t, "rest_hr", first.Name)
		assert.NotZero(t, first.ID)

		again, err := tx.RegisterName(ctx, ir.StatisticName{
			Title: "Rest HR", Owner: "RestHR", Summary: "[min]", Type: ir.JournalInteger,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "bpm", again.Units, "empty fields keep stored docs")
		assert.Equal(t, "[min]", again.Summary)

		other, err := tx.RegisterName(ctx, ir.StatisticName{
			Title: "Rest HR", Owner: "Other", Type: ir.JournalInteger,
		})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, other.ID, "owner is part of the key")
	})
}

func TestRegisterName_TypeConflict(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.RegisterName(ctx, ir.StatisticName{Title: "HR", Owner: "x", Type: ir.JournalInteger})
		require.NoError(t, err)

		_, err = tx.RegisterName(ctx, ir.StatisticName{Title: "HR", Owner: "x", Type: ir.JournalFloat})
		var se *Error
		require.ErrorAs(t, err, &se)
		assert.Equal(t, ErrCodeNameConflict, se.Code)
	})
}

func TestRegisterName_Invalid(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		_, err := tx.RegisterName(ctx, ir.StatisticName{Owner: "x", Type: ir.JournalFloat})
		assert.Error(t, err)
		_, err = tx.RegisterName(ctx, ir.StatisticName{Title: "a", Type: ir.JournalFloat})
		assert.Error(t, err)
		_, err = tx.RegisterName(ctx, ir.StatisticName{Title: "a", Owner: "x"})
		assert.Error(t, err)
	})
}

func TestWrite_DuplicateMeasurement(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		src := createActivity(t, ctx, tx, "a")
		name := registerFloat(t, ctx, tx, "Heart Rate", "Activity")

		_, err := tx.Write(ctx, name, src, testDay, ir.FloatValue(60), false)
		require.NoError(t, err)

		_, err = tx.Write(ctx, name, src, testDay, ir.FloatValue(61), false)
		require.Error(t, err)
		assert.True(t, IsDuplicate(err))

		_, err = tx.Write(ctx, name, src, testDay, ir.FloatValue(62), true)
		require.NoError(t, err)

		points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{Names: []string{"Heart Rate"}})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, ir.FloatValue(62), points[0].Value)
	})
}

func TestWrite_TypeMismatch(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		src := createActivity(t, ctx, tx, "a")
		name := registerFloat(t, ctx, tx, "Heart Rate", "Activity")

		_, err := tx.Write(ctx, name, src, testDay, ir.IntValue(60), false)
		assert.Error(t, err)
	})
}

func TestUpdate_RollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Update(ctx, func(tx *Tx) error {
		src, err := tx.CreateActivity(ctx, ir.Activity{Group: "run", Start: testDay, Finish: testDay, FileHash: "x"})
		require.NoError(t, err)
		name := registerFloat(t, ctx, tx, "Speed", "Activity")
		_, err = tx.Write(ctx, name, src, testDay, ir.FloatValue(3), false)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		n, err := tx.CountJournals(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		names, err := tx.ListNames(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
		return nil
	}))
}

func TestReadSeries_TypedValuesInOrder(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		src := createActivity(t, ctx, tx, "a")

		hr := registerFloat(t, ctx, tx, "Heart Rate", "Activity")
		note, err := tx.RegisterName(ctx, ir.StatisticName{Title: "Note", Owner: "Activity", Type: ir.JournalText})
		require.NoError(t, err)
		when, err := tx.RegisterName(ctx, ir.StatisticName{Title: "Kit Added", Owner: "Kit", Type: ir.JournalTimestamp})
		require.NoError(t, err)

		for i, v := range []float64{70, 65, 80} {
			_, err := tx.Write(ctx, hr, src, testDay.Add(time.Duration(2-i)*time.Minute), ir.FloatValue(v), false)
			require.NoError(t, err)
		}
		_, err = tx.Write(ctx, note, src, testDay, ir.TextValue("easy"), false)
		require.NoError(t, err)
		_, err = tx.Write(ctx, when, src, testDay, ir.TimestampValue(testDay), false)
		require.NoError(t, err)

		points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{Names: []string{"heart_rate"}})
		require.NoError(t, err)
		require.Len(t, points, 3)
		assert.Equal(t, ir.FloatValue(80), points[0].Value)
		assert.Equal(t, ir.FloatValue(70), points[2].Value)
		assert.True(t, points[0].Time.Before(points[1].Time))
		assert.Equal(t, src, points[0].SourceID)
		assert.Equal(t, "heart_rate", points[0].Name)

		window, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
			Names:  []string{"Heart Rate"},
			Start:  testDay,
			Finish: testDay.Add(2 * time.Minute),
		})
		require.NoError(t, err)
		assert.Len(t, window, 2)

		mixed, err := tx.ReadSeries(ctx, querysql.SeriesQuery{Names: []string{"Note", "Kit Added"}})
		require.NoError(t, err)
		require.Len(t, mixed, 2)
		values := map[string]ir.Value{}
		for _, p := range mixed {
			values[p.Name] = p.Value
		}
		assert.Equal(t, ir.TextValue("easy"), values["note"])
		assert.Equal(t, ir.TimestampValue(testDay), values["kit_added"])
	})
}

func TestLatestAndEarliestTime(t *testing.T) {
	s := openTestStore(t)

	update(t, s, func(ctx context.Context, tx *Tx) {
		_, ok, err := tx.LatestTime(ctx, "Heart Rate", "Activity")
		require.NoError(t, err)
		assert.False(t, ok)

		src := createActivity(t, ctx, tx, "a")
		hr := registerFloat(t, ctx, tx, "Heart Rate", "Activity")
		for _, h := range []int{5, 1, 9} {
			_, err := tx.Write(ctx, hr, src, testDay.Add(time.Duration(h)*time.Hour), ir.FloatValue(60), false)
			require.NoError(t, err)
		}

		latest, ok, err := tx.LatestTime(ctx, "Heart Rate", "Activity")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, testDay.Add(9*time.Hour), latest)

		earliest, ok, err := tx.EarliestTime(ctx, "", "Heart Rate", "Speed")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, testDay.Add(time.Hour), earliest)

		_, ok, err = tx.LatestTime(ctx, "Heart Rate", "Other")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
