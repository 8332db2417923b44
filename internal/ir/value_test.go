package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_AsFloat(t *testing.T) {
	f, ok := IntValue(3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	f, ok = FloatValue(2.5).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 2.5, f)

	_, ok = TextValue("x").AsFloat()
	assert.False(t, ok)
}

func TestValue_SQL(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(7), IntValue(7).SQL())
	assert.Equal(t, 1.5, FloatValue(1.5).SQL())
	assert.Equal(t, "a", TextValue("a").SQL())
	assert.Equal(t, ts.Unix(), TimestampValue(ts).SQL())
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Value{IntValue(1), FloatValue(0.5), TextValue("x")})
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 0.5, "x"]`, string(data))

	_, err = json.Marshal(Value{})
	assert.Error(t, err)
}

func TestJournalType_RoundTrip(t *testing.T) {
	for _, jt := range []JournalType{JournalInteger, JournalFloat, JournalText, JournalTimestamp} {
		parsed, err := ParseJournalType(jt.String())
		require.NoError(t, err)
		assert.Equal(t, jt, parsed)
	}
	assert.Equal(t, "statistic_journal_float", JournalFloat.Table())
}
