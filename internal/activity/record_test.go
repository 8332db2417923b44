package activity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRecords(t *testing.T) {
	src := `{"name":"sport","fields":{"sport":"Cycling"}}
{"time":"2024-03-04T06:00:00+01:00","fields":{"heart_rate":140}}
{"name":"record","time":"2024-03-04T05:00:10Z","fields":{"heart_rate":141.5}}
`
	var records []Record
	for rec, err := range ReadRecords(strings.NewReader(src)) {
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.Len(t, records, 3)

	sport, ok := records[0].Sport()
	assert.True(t, ok)
	assert.Equal(t, "cycling", sport)

	assert.Equal(t, RecordData, records[1].Name, "name defaults to record")
	assert.Equal(t, time.Date(2024, 3, 4, 5, 0, 0, 0, time.UTC), records[1].Time)
	assert.Equal(t, json.Number("140"), records[1].Fields["heart_rate"])

	_, ok = records[2].Sport()
	assert.False(t, ok)
}

func TestReadRecords_StopsAtMalformed(t *testing.T) {
	src := `{"time":"2024-03-04T06:00:00Z","fields":{}}
{"time": oops}
{"time":"2024-03-04T06:00:10Z","fields":{}}
`
	var good int
	var lastErr error
	for _, err := range ReadRecords(strings.NewReader(src)) {
		if err != nil {
			lastErr = err
			continue
		}
		good++
	}
	assert.Equal(t, 1, good)
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "record 2")
}

func TestReadRecords_EarlyBreak(t *testing.T) {
	src := strings.Repeat(`{"time":"2024-03-04T06:00:00Z"}`+"\n", 5)
	n := 0
	for range ReadRecords(strings.NewReader(src)) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
