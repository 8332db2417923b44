package ir

import (
	"fmt"
	"time"
)

// SourceID identifies a row in the source table.
type SourceID int64

// SourceKind discriminates the Source variants.
type SourceKind string

const (
	// SourceActivity is a leaf source: one imported activity file.
	SourceActivity SourceKind = "activity"
	// SourceComposite is derived from N other sources.
	SourceComposite SourceKind = "composite"
	// SourceInterval is one scheduled calculation window.
	SourceInterval SourceKind = "interval"
	// SourceKitItem is an individual piece of kit (a bike, a shoe).
	SourceKitItem SourceKind = "kit_item"
	// SourceKitModel is a part fitted to a kit item.
	SourceKitModel SourceKind = "kit_model"
)

// ValidSourceKinds lists the recognised discriminator values.
var ValidSourceKinds = map[SourceKind]bool{
	SourceActivity:  true,
	SourceComposite: true,
	SourceInterval:  true,
	SourceKitItem:   true,
	SourceKitModel:  true,
}

// Source is the shared identity row for all provenance units.
type Source struct {
	ID      SourceID   `json:"id"`
	Kind    SourceKind `json:"kind"`
	Created time.Time  `json:"created"`
}

// Composite is a source that combines NComponents other sources.
type Composite struct {
	ID            SourceID `json:"id"`
	NComponents   int      `json:"n_components"`
	ComponentHash string   `json:"component_hash"`
}

// CompositeComponent is a directed provenance edge.
type CompositeComponent struct {
	Input  SourceID `json:"input"`
	Output SourceID `json:"output"`
}

// Activity is the detail row for a leaf source created by an import.
type Activity struct {
	ID       SourceID  `json:"id"`
	Group    string    `json:"group"`
	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finish"`
	FileHash string    `json:"file_hash"`
}

// Interval is a half-open window [Start, Finish) at a schedule, owned by
// the calculator that records one output per window.
type Interval struct {
	ID       SourceID  `json:"id"`
	Owner    string    `json:"owner"`
	Schedule Schedule  `json:"schedule"`
	Start    time.Time `json:"start"`
	Finish   time.Time `json:"finish"`
}

// Contains reports whether t falls inside the interval.
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.Finish)
}

func (i Interval) String() string {
	return fmt.Sprintf("%s %s [%s, %s)", i.Owner, i.Schedule,
		i.Start.Format(time.DateOnly), i.Finish.Format(time.DateOnly))
}

// StatisticName identifies a named, unit-typed, owner-scoped statistic.
// (Name, Owner, Constraint) is unique. Only Title, Units, Summary and
// Description may change after creation.
type StatisticName struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Title       string      `json:"title"`
	Owner       string      `json:"owner"`
	Constraint  string      `json:"constraint,omitempty"`
	Units       string      `json:"units,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Description string      `json:"description,omitempty"`
	Type        JournalType `json:"type"`
}

// Journal is a single typed measurement.
type Journal struct {
	ID       int64     `json:"id"`
	NameID   int64     `json:"name_id"`
	SourceID SourceID  `json:"source_id"`
	Time     time.Time `json:"time"`
	Value    Value     `json:"value"`
}

// Point is one row of a series read back from the store.
type Point struct {
	Name     string
	Time     time.Time
	Value    Value
	SourceID SourceID
}
