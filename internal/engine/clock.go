package engine

import "time"

// Clock supplies the current time. Calculators never call time.Now
// directly so tests can pin "now".
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// RoundHour truncates t to the hour, or rounds up when up is true and t
// is not already on the hour.
func RoundHour(t time.Time, up bool) time.Time {
	down := t.UTC().Truncate(time.Hour)
	if up && down.Before(t) {
		return down.Add(time.Hour)
	}
	return down
}
