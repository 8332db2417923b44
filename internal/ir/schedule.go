package ir

import (
	"fmt"
	"strconv"
	"time"
)

// Schedule is a calendar granularity such as "d" (daily) or "2w".
type Schedule struct {
	N    int
	Unit byte // 'd', 'w', 'm' or 'y'
}

// Daily is the schedule used by most interval calculators.
var Daily = Schedule{N: 1, Unit: 'd'}

// ParseSchedule parses an optional count followed by a unit letter.
func ParseSchedule(s string) (Schedule, error) {
	if s == "" {
		return Schedule{}, fmt.Errorf("empty schedule")
	}
	unit := s[len(s)-1]
	switch unit {
	case 'd', 'w', 'm', 'y':
	default:
		return Schedule{}, fmt.Errorf("schedule %q: unknown unit %q", s, unit)
	}
	n := 1
	if len(s) > 1 {
		var err error
		n, err = strconv.Atoi(s[:len(s)-1])
		if err != nil || n < 1 {
			return Schedule{}, fmt.Errorf("schedule %q: invalid count", s)
		}
	}
	return Schedule{N: n, Unit: unit}, nil
}

// MustParseSchedule panics on invalid input. Used for constants.
func MustParseSchedule(s string) Schedule {
	sch, err := ParseSchedule(s)
	if err != nil {
		panic(err)
	}
	return sch
}

func (s Schedule) String() string {
	if s.N == 1 {
		return string(s.Unit)
	}
	return strconv.Itoa(s.N) + string(s.Unit)
}

// MarshalText lets schedules appear as plain strings in JSON and YAML.
func (s Schedule) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText is the inverse of MarshalText.
func (s *Schedule) UnmarshalText(b []byte) error {
	parsed, err := ParseSchedule(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Start returns the start of the window containing t (UTC).
//
// Multi-unit schedules are aligned to the unix epoch (days), to Monday
// 1970-01-05 (weeks), or to month/year zero, so windows are stable
// regardless of the requested range.
func (s Schedule) Start(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch s.Unit {
	case 'd':
		days := floorDiv(day.Unix(), 86400)
		return time.Unix((days-mod(days, int64(s.N)))*86400, 0).UTC()
	case 'w':
		monday := time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)
		weeks := floorDiv(day.Unix()-monday.Unix(), 7*86400)
		weeks -= mod(weeks, int64(s.N))
		return monday.AddDate(0, 0, int(weeks)*7)
	case 'm':
		months := int64(t.Year())*12 + int64(t.Month()-1)
		months -= mod(months, int64(s.N))
		return time.Date(int(months/12), time.Month(months%12+1), 1, 0, 0, 0, 0, time.UTC)
	case 'y':
		year := int64(t.Year())
		year -= mod(year, int64(s.N))
		return time.Date(int(year), 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return day
}

// Next returns the start of the window after the one starting at start.
func (s Schedule) Next(start time.Time) time.Time {
	switch s.Unit {
	case 'd':
		return start.AddDate(0, 0, s.N)
	case 'w':
		return start.AddDate(0, 0, 7*s.N)
	case 'm':
		return start.AddDate(0, s.N, 0)
	case 'y':
		return start.AddDate(s.N, 0, 0)
	}
	return start.AddDate(0, 0, 1)
}

// Windows enumerates [start, finish) pairs covering [from, to).
func (s Schedule) Windows(from, to time.Time) [][2]time.Time {
	var out [][2]time.Time
	for start := s.Start(from); start.Before(to); start = s.Next(start) {
		out = append(out, [2]time.Time{start, s.Next(start)})
	}
	return out
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
