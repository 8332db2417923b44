package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_Now(t *testing.T) {
	at := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(at)
	assert.Equal(t, at, clock.Now())
	assert.Equal(t, at, clock.Now(), "reading does not advance")
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	at := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(at)

	assert.Equal(t, at.Add(90*time.Minute), clock.Advance(90*time.Minute))

	clock.Set(at)
	assert.Equal(t, at, clock.Now())
}

func TestFixedClock_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	clock := NewFixedClock(time.Date(2024, 3, 4, 14, 0, 0, 0, loc))
	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, 12, clock.Now().Hour())
}

func TestFixedClock_ConcurrentAdvance(t *testing.T) {
	at := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	clock := NewFixedClock(at)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, at.Add(100*time.Second), clock.Now())
}
