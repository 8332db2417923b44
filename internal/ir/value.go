package ir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// JournalType selects which value table a journal row lives in.
type JournalType int

const (
	JournalInteger JournalType = iota + 1
	JournalFloat
	JournalText
	JournalTimestamp
)

func (t JournalType) String() string {
	switch t {
	case JournalInteger:
		return "integer"
	case JournalFloat:
		return "float"
	case JournalText:
		return "text"
	case JournalTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("JournalType(%d)", int(t))
	}
}

// Table returns the value table backing the type.
func (t JournalType) Table() string {
	return "statistic_journal_" + t.String()
}

// ParseJournalType is the inverse of String.
func ParseJournalType(s string) (JournalType, error) {
	switch s {
	case "integer", "int":
		return JournalInteger, nil
	case "float":
		return JournalFloat, nil
	case "text":
		return JournalText, nil
	case "timestamp":
		return JournalTimestamp, nil
	}
	return 0, fmt.Errorf("unknown journal type %q", s)
}

// Value is a tagged union over the journal types. Exactly the field
// selected by Type is meaningful.
type Value struct {
	Type  JournalType
	Int   int64
	Float float64
	Text  string
	Time  time.Time
}

// IntValue constructs an integer value.
func IntValue(v int64) Value { return Value{Type: JournalInteger, Int: v} }

// FloatValue constructs a float value.
func FloatValue(v float64) Value { return Value{Type: JournalFloat, Float: v} }

// TextValue constructs a text value.
func TextValue(v string) Value { return Value{Type: JournalText, Text: v} }

// TimestampValue constructs a timestamp value.
func TimestampValue(v time.Time) Value {
	return Value{Type: JournalTimestamp, Time: v.UTC().Truncate(time.Second)}
}

// AsFloat returns numeric values as float64.
// Text and timestamp values return false.
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case JournalInteger:
		return float64(v.Int), true
	case JournalFloat:
		return v.Float, true
	}
	return 0, false
}

// SQL returns the value in the form stored in its value table.
func (v Value) SQL() any {
	switch v.Type {
	case JournalInteger:
		return v.Int
	case JournalFloat:
		return v.Float
	case JournalText:
		return v.Text
	case JournalTimestamp:
		return v.Time.Unix()
	}
	return nil
}

func (v Value) String() string {
	switch v.Type {
	case JournalInteger:
		return strconv.FormatInt(v.Int, 10)
	case JournalFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case JournalText:
		return v.Text
	case JournalTimestamp:
		return v.Time.Format(time.RFC3339)
	}
	return "<invalid>"
}

// MarshalJSON writes the selected field only.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case JournalInteger:
		return json.Marshal(v.Int)
	case JournalFloat:
		return json.Marshal(v.Float)
	case JournalText:
		return json.Marshal(v.Text)
	case JournalTimestamp:
		return json.Marshal(v.Time.Format(time.RFC3339))
	}
	return nil, fmt.Errorf("marshal value: invalid type %d", v.Type)
}
