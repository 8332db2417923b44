package ir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		want    Schedule
		wantErr bool
	}{
		{"d", Schedule{N: 1, Unit: 'd'}, false},
		{"2w", Schedule{N: 2, Unit: 'w'}, false},
		{"m", Schedule{N: 1, Unit: 'm'}, false},
		{"10y", Schedule{N: 10, Unit: 'y'}, false},
		{"", Schedule{}, true},
		{"x", Schedule{}, true},
		{"0d", Schedule{}, true},
		{"ad", Schedule{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSchedule(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestSchedule_Start(t *testing.T) {
	at := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC) // a Thursday

	assert.Equal(t, date(2024, 3, 14), Daily.Start(at))
	assert.Equal(t, date(2024, 3, 11), MustParseSchedule("w").Start(at))
	assert.Equal(t, date(2024, 3, 1), MustParseSchedule("m").Start(at))
	assert.Equal(t, date(2024, 1, 1), MustParseSchedule("3m").Start(at))
	assert.Equal(t, date(2024, 1, 1), MustParseSchedule("y").Start(at))
}

func TestSchedule_StartIsStable(t *testing.T) {
	sch := MustParseSchedule("2d")
	at := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC)
	start := sch.Start(at)
	assert.Equal(t, start, sch.Start(start))
	assert.Equal(t, start, sch.Start(sch.Next(start).Add(-time.Second)))
}

func TestSchedule_Windows(t *testing.T) {
	windows := Daily.Windows(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), date(2024, 1, 4))
	require.Len(t, windows, 3)
	assert.Equal(t, date(2024, 1, 1), windows[0][0])
	assert.Equal(t, date(2024, 1, 2), windows[0][1])
	assert.Equal(t, date(2024, 1, 3), windows[2][0])
	assert.Equal(t, date(2024, 1, 4), windows[2][1])
}

func TestInterval_Contains(t *testing.T) {
	i := Interval{Start: date(2024, 1, 1), Finish: date(2024, 1, 2)}
	assert.True(t, i.Contains(date(2024, 1, 1)))
	assert.True(t, i.Contains(date(2024, 1, 2).Add(-time.Second)))
	assert.False(t, i.Contains(date(2024, 1, 2)))
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "rest_hr", CanonicalName("Rest HR"))
	assert.Equal(t, "hr_impulse_10", CanonicalName("  HR   Impulse 10 "))
	assert.Equal(t, CanonicalName("Caf\u00e9"), CanonicalName("Cafe\u0301"))
}
