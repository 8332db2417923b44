package harness

import (
	"time"

	"github.com/roach88/stoats/internal/ir"
)

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every import behaved as expected, every job
	// succeeded and every assertion held.
	Pass bool `json:"pass"`

	Errors []string `json:"errors,omitempty"`

	Imports []ImportOutcome `json:"imports"`
	Jobs    []JobOutcome    `json:"jobs"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// ImportOutcome records one import step.
type ImportOutcome struct {
	Hash     string      `json:"hash"`
	Activity ir.SourceID `json:"activity,omitempty"`
	Group    string      `json:"group,omitempty"`
	Written  int         `json:"written"`
	Err      string      `json:"error,omitempty"`
}

// JobOutcome records one calculator job.
type JobOutcome struct {
	Owner string `json:"owner"`
	Err   string `json:"error,omitempty"`
}

// Snapshot is the state compared against golden files.
type Snapshot struct {
	// Chain lists the composites sourcing response outputs in the order
	// they are first used.
	Chain []ChainLink `json:"chain"`

	// Counts has one entry per registered statistic name.
	Counts []StatisticCount `json:"counts"`

	// Complete is the oracle verdict after calculation.
	Complete bool `json:"complete"`
}

// ChainLink is one composite of the response chain.
type ChainLink struct {
	First  time.Time   `json:"first"`
	Source ir.SourceID `json:"source"`
	// Leaves are the file hashes of every activity the link depends on,
	// sorted.
	Leaves []string `json:"leaves"`
}

// StatisticCount is the number of stored points for one name.
type StatisticCount struct {
	Name       string `json:"name"`
	Owner      string `json:"owner"`
	Constraint string `json:"constraint"`
	Points     int    `json:"points"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Errors:  []string{},
		Imports: []ImportOutcome{},
		Jobs:    []JobOutcome{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
