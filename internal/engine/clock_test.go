package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClock_UTC(t *testing.T) {
	now := SystemClock{}.Now()
	assert.Equal(t, time.UTC, now.Location())
	assert.WithinDuration(t, time.Now(), now, time.Second)
}

func TestRoundHour(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   time.Time
		up   bool
		want time.Time
	}{
		{"on the hour down", base, false, base},
		{"on the hour up", base, true, base},
		{"mid hour down", base.Add(20 * time.Minute), false, base},
		{"mid hour up", base.Add(20 * time.Minute), true, base.Add(time.Hour)},
		{"one second up", base.Add(time.Second), true, base.Add(time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RoundHour(tt.in, tt.up))
		})
	}
}
