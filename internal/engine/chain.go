package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// Transition marks the first point contributed by a new leaf source.
type Transition struct {
	Time time.Time
	Leaf ir.SourceID
}

// Transitions returns the points at which the contributing source
// changes, in order. points must be sorted by (time, journal id).
func Transitions(points []ir.Point) []Transition {
	var out []Transition
	var prev ir.SourceID
	for i, p := range points {
		if i == 0 || p.SourceID != prev {
			out = append(out, Transition{Time: p.Time, Leaf: p.SourceID})
			prev = p.SourceID
		}
	}
	return out
}

// Link is one composite in a provenance chain. Outputs at or after Onset
// (and before the next link's onset) are sourced by Composite.
type Link struct {
	Onset     time.Time
	Composite ir.SourceID
	Leaf      ir.SourceID
}

// BuildChain writes a chain of composites for transitions.
//
// The chain starts with an empty composite at the epoch. Each transition
// adds a composite of (leaf, previous tail), or of the previous tail
// alone when the leaf is zero, so the last link transitively depends on
// every leaf seen.
func BuildChain(ctx context.Context, tx *store.Tx, transitions []Transition) ([]Link, error) {
	zero, err := tx.CreateComposite(ctx)
	if err != nil {
		return nil, fmt.Errorf("build chain: %w", err)
	}
	links := make([]Link, 0, len(transitions)+1)
	links = append(links, Link{Onset: time.Unix(0, 0).UTC(), Composite: zero})

	prev := zero
	for _, tr := range transitions {
		inputs := []ir.SourceID{prev}
		if tr.Leaf != 0 {
			inputs = []ir.SourceID{tr.Leaf, prev}
		}
		id, err := tx.CreateComposite(ctx, inputs...)
		if err != nil {
			return nil, fmt.Errorf("build chain: link at %s: %w", tr.Time.Format(time.RFC3339), err)
		}
		links = append(links, Link{Onset: tr.Time, Composite: id, Leaf: tr.Leaf})
		prev = id
	}
	return links, nil
}

// tagger hands out the latest link whose onset is at or before a time.
// Times passed to next must not decrease.
type tagger struct {
	links []Link
	next  int
	tail  ir.SourceID
}

func newTagger(links []Link) *tagger {
	return &tagger{links: links}
}

// at returns the tag for t and how many links became current since the
// previous call.
func (g *tagger) at(t time.Time) (ir.SourceID, int) {
	popped := 0
	for g.next < len(g.links) && !g.links[g.next].Onset.After(t) {
		g.tail = g.links[g.next].Composite
		g.next++
		popped++
	}
	return g.tail, popped
}
