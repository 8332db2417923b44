package loader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// DuplicatePolicy decides what happens when a row for (name, source, time)
// already exists.
type DuplicatePolicy int

const (
	// Fail aborts the batch with a DUPLICATE_MEASUREMENT error.
	Fail DuplicatePolicy = iota
	// Skip keeps the stored row and drops the new value.
	Skip
	// Overwrite replaces the stored row.
	Overwrite
)

func (p DuplicatePolicy) String() string {
	switch p {
	case Fail:
		return "fail"
	case Skip:
		return "skip"
	case Overwrite:
		return "overwrite"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
}

// Entry is one value waiting to be loaded.
type Entry struct {
	// Name is the statistic title or canonical name.
	Name string
	// Title defaults to Name.
	Title       string
	Units       string
	Summary     string
	Description string
	// Group constrains the statistic to an activity group. Empty for
	// statistics that apply to all groups.
	Group  string
	Source ir.SourceID
	Value  ir.Value
	Time   time.Time
	// Type defaults to Value.Type; when set it must match.
	Type ir.JournalType
}

// Result summarizes one Load.
type Result struct {
	Written int
	Skipped int
}

// Loader accumulates entries for one owner.
//
// Not safe for concurrent use: each calculator cycle builds its own.
type Loader struct {
	owner     string
	registry  *Registry
	policy    DuplicatePolicy
	reference string
	entries   []Entry
}

// Option configures a Loader.
type Option func(*Loader)

// WithDuplicatePolicy sets the duplicate handling policy (default Fail).
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(l *Loader) {
		l.policy = p
	}
}

// WithReference measures coverage against the timestamps of the named
// statistic instead of all timestamps in the batch.
func WithReference(name string) Option {
	return func(l *Loader) {
		l.reference = ir.CanonicalName(name)
	}
}

// New creates a loader for owner. A nil registry gets a private one.
func New(owner string, registry *Registry, opts ...Option) *Loader {
	if registry == nil {
		registry = NewRegistry()
	}
	l := &Loader{owner: owner, registry: registry}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Owner returns the owner recorded on every statistic this loader writes.
func (l *Loader) Owner() string { return l.owner }

// Len returns the number of buffered entries.
func (l *Loader) Len() int { return len(l.entries) }

// Add validates and buffers an entry.
func (l *Loader) Add(e Entry) error {
	if e.Name == "" && e.Title == "" {
		return fmt.Errorf("add entry: missing name")
	}
	if e.Value.Type < ir.JournalInteger || e.Value.Type > ir.JournalTimestamp {
		return fmt.Errorf("add %s: invalid value type %d", e.Name, e.Value.Type)
	}
	if e.Type == 0 {
		e.Type = e.Value.Type
	}
	if e.Type != e.Value.Type {
		return fmt.Errorf("add %s: value is %s, entry is %s", e.Name, e.Value.Type, e.Type)
	}
	if e.Source == 0 {
		return fmt.Errorf("add %s: missing source", e.Name)
	}
	if e.Time.IsZero() {
		return fmt.Errorf("add %s: missing time", e.Name)
	}
	l.entries = append(l.entries, e)
	return nil
}

// AddAll buffers several entries, stopping at the first invalid one.
func (l *Loader) AddAll(entries []Entry) error {
	for _, e := range entries {
		if err := l.Add(e); err != nil {
			return err
		}
	}
	return nil
}

// Load writes every buffered entry inside tx.
//
// Any error leaves the buffer intact and should be returned from the
// enclosing Update so the batch rolls back.
func (l *Loader) Load(ctx context.Context, tx *store.Tx) (Result, error) {
	var result Result
	names := make(map[batchKey]ir.StatisticName)

	for _, e := range l.entries {
		name, err := l.resolve(ctx, tx, names, e)
		if err != nil {
			return result, fmt.Errorf("load %s: %w", e.Name, err)
		}

		_, err = tx.Write(ctx, name, e.Source, e.Time, e.Value, l.policy == Overwrite)
		switch {
		case err == nil:
			result.Written++
		case store.IsDuplicate(err) && l.policy == Skip:
			result.Skipped++
		default:
			return result, fmt.Errorf("load: %w", err)
		}
	}

	slog.Debug("loaded statistics",
		"owner", l.owner,
		"written", result.Written,
		"skipped", result.Skipped,
	)
	return result, nil
}

type batchKey struct {
	name  string
	group string
}

func (l *Loader) resolve(ctx context.Context, tx *store.Tx, cache map[batchKey]ir.StatisticName, e Entry) (ir.StatisticName, error) {
	key := batchKey{name: ir.CanonicalName(firstNonEmpty(e.Name, e.Title)), group: e.Group}
	if name, ok := cache[key]; ok {
		if name.Type != e.Type {
			return name, fmt.Errorf("%s is %s in this batch, not %s", name.Name, name.Type, e.Type)
		}
		return name, nil
	}

	name, err := l.registry.Resolve(ctx, tx, ir.StatisticName{
		Name:        firstNonEmpty(e.Name, e.Title),
		Title:       firstNonEmpty(e.Title, e.Name),
		Owner:       l.owner,
		Constraint:  e.Group,
		Units:       e.Units,
		Summary:     e.Summary,
		Description: e.Description,
		Type:        e.Type,
	})
	if err != nil {
		return name, err
	}
	cache[key] = name
	return name, nil
}

// Coverage is the share of reference timestamps at which a statistic has
// a value.
type Coverage struct {
	Name    string
	Percent float64
}

// Coverage reports, for each statistic in the batch, the percentage of
// reference timestamps with a value. Results are sorted by name.
func (l *Loader) Coverage() []Coverage {
	reference := make(map[int64]struct{})
	byName := make(map[string]map[int64]struct{})

	for _, e := range l.entries {
		name := ir.CanonicalName(firstNonEmpty(e.Name, e.Title))
		ts := e.Time.Unix()
		if l.reference == "" || l.reference == name {
			reference[ts] = struct{}{}
		}
		if byName[name] == nil {
			byName[name] = make(map[int64]struct{})
		}
		byName[name][ts] = struct{}{}
	}

	coverage := make([]Coverage, 0, len(byName))
	for name, times := range byName {
		hit := 0
		for ts := range times {
			if _, ok := reference[ts]; ok {
				hit++
			}
		}
		percent := 0.0
		if len(reference) > 0 {
			percent = 100 * float64(hit) / float64(len(reference))
		}
		coverage = append(coverage, Coverage{Name: name, Percent: percent})
	}

	slices.SortFunc(coverage, func(a, b Coverage) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return coverage
}

// CoverageEntries turns Coverage into "Coverage <name>" float statistics
// recorded against source at time at.
func (l *Loader) CoverageEntries(source ir.SourceID, at time.Time) []Entry {
	titles := make(map[string]string)
	for _, e := range l.entries {
		name := ir.CanonicalName(firstNonEmpty(e.Name, e.Title))
		if _, ok := titles[name]; !ok {
			titles[name] = firstNonEmpty(e.Title, e.Name)
		}
	}

	var entries []Entry
	for _, c := range l.Coverage() {
		title := ir.CoverageName(titles[c.Name])
		entries = append(entries, Entry{
			Name:        title,
			Title:       title,
			Units:       "%",
			Summary:     "[min],[avg]",
			Description: "Percentage of records with a value for " + titles[c.Name] + ".",
			Source:      source,
			Value:       ir.FloatValue(c.Percent),
			Time:        at,
		})
	}
	return entries
}

// Reset drops all buffered entries.
func (l *Loader) Reset() {
	l.entries = l.entries[:0]
}
