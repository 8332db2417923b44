package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func update(t *testing.T, s *Store, fn func(ctx context.Context, tx *Tx)) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Update(ctx, func(tx *Tx) error {
		fn(ctx, tx)
		return nil
	}))
}

var testDay = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func createActivity(t *testing.T, ctx context.Context, tx *Tx, hash string) ir.SourceID {
	t.Helper()
	id, err := tx.CreateActivity(ctx, ir.Activity{
		Group:    "bike",
		Start:    testDay,
		Finish:   testDay.Add(time.Hour),
		FileHash: hash,
	})
	require.NoError(t, err)
	return id
}

func registerFloat(t *testing.T, ctx context.Context, tx *Tx, title, owner string) ir.StatisticName {
	t.Helper()
	name, err := tx.RegisterName(ctx, ir.StatisticName{Title: title, Owner: owner, Type: ir.JournalFloat})
	require.NoError(t, err)
	return name
}
