// Package activity imports activity recordings: it creates the leaf
// source for a file and loads its record fields as statistics.
package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
)

// Record names with special meaning.
const (
	RecordData    = "record"
	RecordSport   = "sport"
	RecordSession = "session"
)

// Record is one message from an activity file.
type Record struct {
	Name   string         `json:"name"`
	Time   time.Time      `json:"time"`
	Fields map[string]any `json:"fields"`
}

// Sport returns the sport carried by a sport or session record.
func (r Record) Sport() (string, bool) {
	if r.Name != RecordSport && r.Name != RecordSession {
		return "", false
	}
	sport, ok := r.Fields["sport"].(string)
	if !ok || sport == "" {
		return "", false
	}
	return strings.ToLower(sport), true
}

// ReadRecords decodes a stream of JSON records, one per line. Numbers are
// kept as json.Number so integers survive exactly.
//
// Iteration stops at the first malformed record, which is yielded as an
// error.
func ReadRecords(r io.Reader) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		dec := json.NewDecoder(r)
		dec.UseNumber()
		for n := 1; ; n++ {
			var rec Record
			err := dec.Decode(&rec)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Record{}, fmt.Errorf("record %d: %w", n, err))
				return
			}
			if rec.Name == "" {
				rec.Name = RecordData
			}
			rec.Time = rec.Time.UTC()
			if !yield(rec, nil) {
				return
			}
		}
	}
}
