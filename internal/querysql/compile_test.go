package querysql

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stoats/internal/ir"
)

func TestCompile_SingleName(t *testing.T) {
	sql, params, err := Compile(SeriesQuery{Names: []string{"heart_rate"}})
	require.NoError(t, err)

	assert.Contains(t, sql, "FROM statistic_journal j")
	assert.Contains(t, sql, "n.name = ?")
	assert.Contains(t, sql, "ORDER BY j.time ASC, j.id ASC")
	assert.NotContains(t, sql, "heart_rate")
	assert.Equal(t, []any{"heart_rate"}, params)
}

func TestCompile_JoinsAllValueTables(t *testing.T) {
	sql, _, err := Compile(SeriesQuery{Names: []string{"x"}})
	require.NoError(t, err)

	for _, jt := range []ir.JournalType{ir.JournalInteger, ir.JournalFloat, ir.JournalText, ir.JournalTimestamp} {
		assert.Contains(t, sql, "LEFT JOIN "+jt.Table())
	}
}

func TestCompile_AllFilters(t *testing.T) {
	constraint := "Bike"
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	finish := start.AddDate(0, 0, 1)

	sql, params, err := Compile(SeriesQuery{
		Names:      []string{"a", "b"},
		Owner:      "RestHR",
		Constraint: &constraint,
		Start:      start,
		Finish:     finish,
		SourceIDs:  []ir.SourceID{7, 9},
		Descending: true,
		Limit:      1,
	})
	require.NoError(t, err)

	assert.Contains(t, sql, "n.name IN (?, ?)")
	assert.Contains(t, sql, "n.owner = ?")
	assert.Contains(t, sql, "n.constraint_ = ?")
	assert.Contains(t, sql, "j.time >= ? AND j.time < ?")
	assert.Contains(t, sql, "j.source_id IN (?, ?)")
	assert.Contains(t, sql, "ORDER BY j.time DESC, j.id DESC")
	assert.True(t, strings.HasSuffix(sql, "LIMIT ?"))

	assert.Equal(t, []any{
		"a", "b",
		"RestHR",
		"Bike",
		start.Unix(), finish.Unix(),
		int64(7), int64(9),
		1,
	}, params)
}

func TestCompile_OpenWindow(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	sql, params, err := Compile(SeriesQuery{Names: []string{"a"}, Start: start})
	require.NoError(t, err)

	assert.Contains(t, sql, "j.time >= ?")
	assert.NotContains(t, sql, "j.time < ?")
	assert.Equal(t, []any{"a", start.Unix()}, params)
}

func TestCompile_Errors(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		query SeriesQuery
	}{
		{"no names", SeriesQuery{}},
		{"negative limit", SeriesQuery{Names: []string{"a"}, Limit: -1}},
		{"inverted window", SeriesQuery{Names: []string{"a"}, Start: start, Finish: start.AddDate(0, 0, -1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Compile(tt.query)
			assert.Error(t, err)
		})
	}
}

func TestCompilePredicate(t *testing.T) {
	from, to := int64(10), int64(20)

	tests := []struct {
		name   string
		pred   Predicate
		sql    string
		params []any
	}{
		{"nil", nil, "1 = 1", nil},
		{"empty and", And{}, "1 = 1", nil},
		{"empty in", In{Field: "x"}, "1 = 0", nil},
		{"open range", Range{Field: "t"}, "1 = 1", nil},
		{"range", Range{Field: "t", From: &from, To: &to}, "t >= ? AND t < ?", []any{int64(10), int64(20)}},
		{"nested", And{Predicates: []Predicate{Equals{Field: "a", Value: 1}, And{Predicates: []Predicate{Equals{Field: "b", Value: "x"}}}}}, "a = ? AND b = ?", []any{1, "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := compilePredicate(tt.pred)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.params, params)
		})
	}
}
