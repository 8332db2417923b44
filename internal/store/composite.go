package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/stoats/internal/ir"
)

const incompleteCompositesQuery = `
	SELECT c.id FROM composite c
	WHERE c.n_components != (
		SELECT COUNT(*) FROM composite_component cc WHERE cc.output_source_id = c.id
	)
	ORDER BY c.id ASC
`

const orphanCompositesQuery = `
	SELECT c.id FROM composite c
	WHERE NOT EXISTS (SELECT 1 FROM statistic_journal j WHERE j.source_id = c.id)
	  AND NOT EXISTS (SELECT 1 FROM composite_component cc WHERE cc.input_source_id = c.id)
	ORDER BY c.id ASC
`

// CleanComposites removes composites that can no longer carry provenance
// and returns how many were deleted.
//
// Two kinds are removed, repeatedly until nothing changes:
//   - incomplete composites, whose edge count no longer matches
//     n_components because an input was deleted
//   - orphans, with no journal rows and no edge into another composite
//
// Deleting one composite can expose the next link of a chain, hence the
// loop. Running it twice removes nothing the second time.
func (t *Tx) CleanComposites(ctx context.Context) (int, error) {
	total := 0
	for {
		incomplete, err := t.queryIDs(ctx, incompleteCompositesQuery)
		if err != nil {
			return total, fmt.Errorf("clean composites: %w", err)
		}
		orphans, err := t.queryIDs(ctx, orphanCompositesQuery)
		if err != nil {
			return total, fmt.Errorf("clean composites: %w", err)
		}

		doomed := append(incomplete, orphans...)
		slices.Sort(doomed)
		doomed = slices.Compact(doomed)
		if len(doomed) == 0 {
			break
		}

		n, err := t.DeleteSources(ctx, doomed)
		if err != nil {
			return total, fmt.Errorf("clean composites: %w", err)
		}
		total += n
		slog.Debug("cleaned composites",
			"incomplete", len(incomplete),
			"orphans", len(orphans))
	}
	return total, nil
}

// CheckComposites verifies that every composite has exactly n_components
// incoming edges. Offenders are reported as a provenance violation.
func (t *Tx) CheckComposites(ctx context.Context) error {
	bad, err := t.queryIDs(ctx, incompleteCompositesQuery)
	if err != nil {
		return fmt.Errorf("check composites: %w", err)
	}
	if len(bad) > 0 {
		return newProvenanceError(
			fmt.Sprintf("%d composite(s) with edge count != n_components", len(bad)),
			bad...)
	}
	return nil
}

// OutputComposites returns the composites that source rows of statistics
// owned by owner.
func (t *Tx) OutputComposites(ctx context.Context, owner string) ([]ir.SourceID, error) {
	ids, err := t.queryIDs(ctx, `
		SELECT DISTINCT j.source_id
		FROM statistic_journal j
		JOIN statistic_name n ON n.id = j.statistic_name_id
		JOIN source s ON s.id = j.source_id
		WHERE n.owner = ? AND s.type = ?
		ORDER BY j.source_id ASC
	`, owner, string(ir.SourceComposite))
	if err != nil {
		return nil, fmt.Errorf("output composites: %w", err)
	}
	return ids, nil
}

// UsedLeafSources returns the activity sources reachable upstream from
// the composites that source owner's statistics.
//
// The walk follows every composite edge, so a leaf folded into a chain
// link that never tagged an output row still counts as used.
func (t *Tx) UsedLeafSources(ctx context.Context, owner string) ([]ir.SourceID, error) {
	ids, err := t.queryIDs(ctx, `
		WITH RECURSIVE upstream(id) AS (
			SELECT j.source_id
			FROM statistic_journal j
			JOIN statistic_name n ON n.id = j.statistic_name_id
			JOIN source s ON s.id = j.source_id
			WHERE n.owner = ? AND s.type = ?
			UNION
			SELECT cc.input_source_id
			FROM composite_component cc
			JOIN upstream u ON cc.output_source_id = u.id
		)
		SELECT u.id FROM upstream u
		JOIN source s ON s.id = u.id
		WHERE s.type = ?
		ORDER BY u.id ASC
	`, owner, string(ir.SourceComposite), string(ir.SourceActivity))
	if err != nil {
		return nil, fmt.Errorf("used leaf sources: %w", err)
	}
	return ids, nil
}

// UnusedLeafSources returns activity sources that recorded inputName
// (owned by inputOwner) but are not yet part of outputOwner's chain.
func (t *Tx) UnusedLeafSources(ctx context.Context, inputName, inputOwner, outputOwner string) ([]ir.SourceID, error) {
	contributing, err := t.queryIDs(ctx, `
		SELECT DISTINCT j.source_id
		FROM statistic_journal j
		JOIN statistic_name n ON n.id = j.statistic_name_id
		JOIN source s ON s.id = j.source_id
		WHERE n.name = ? AND n.owner = ? AND s.type = ?
		ORDER BY j.source_id ASC
	`, ir.CanonicalName(inputName), inputOwner, string(ir.SourceActivity))
	if err != nil {
		return nil, fmt.Errorf("unused leaf sources: %w", err)
	}

	used, err := t.UsedLeafSources(ctx, outputOwner)
	if err != nil {
		return nil, err
	}

	unused := []ir.SourceID{}
	for _, id := range contributing {
		if _, found := slices.BinarySearch(used, id); !found {
			unused = append(unused, id)
		}
	}
	return unused, nil
}

// Outputs returns the composites that take source as an input.
func (t *Tx) Outputs(ctx context.Context, source ir.SourceID) ([]ir.SourceID, error) {
	ids, err := t.queryIDs(ctx, `
		SELECT output_source_id FROM composite_component
		WHERE input_source_id = ?
		ORDER BY output_source_id ASC
	`, source)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}
	return ids, nil
}

// ProvenanceNode is one source in an upstream provenance tree.
type ProvenanceNode struct {
	Source ir.Source        `json:"source"`
	Detail string           `json:"detail,omitempty"`
	Inputs []ProvenanceNode `json:"inputs,omitempty"`
}

// Provenance returns the full upstream tree of id.
func (t *Tx) Provenance(ctx context.Context, id ir.SourceID) (ProvenanceNode, error) {
	src, err := t.GetSource(ctx, id)
	if err != nil {
		return ProvenanceNode{}, err
	}
	node := ProvenanceNode{Source: src}

	node.Detail, err = t.describe(ctx, src)
	if err != nil {
		return node, err
	}

	if src.Kind != ir.SourceComposite {
		return node, nil
	}
	inputs, err := t.Components(ctx, id)
	if err != nil {
		return node, err
	}
	for _, input := range inputs {
		child, err := t.Provenance(ctx, input)
		if err != nil {
			return node, err
		}
		node.Inputs = append(node.Inputs, child)
	}
	return node, nil
}

func (t *Tx) describe(ctx context.Context, src ir.Source) (string, error) {
	var detail string
	var err error
	switch src.Kind {
	case ir.SourceActivity:
		err = t.tx.QueryRowContext(ctx, `
			SELECT activity_group || ' ' || file_hash FROM activity_journal WHERE id = ?
		`, src.ID).Scan(&detail)
	case ir.SourceInterval:
		err = t.tx.QueryRowContext(ctx, `
			SELECT owner || ' ' || schedule || ' ' || date(start, 'unixepoch') FROM interval WHERE id = ?
		`, src.ID).Scan(&detail)
	case ir.SourceComposite:
		var c ir.Composite
		c, err = t.GetComposite(ctx, src.ID)
		detail = fmt.Sprintf("n=%d", c.NComponents)
	case ir.SourceKitItem:
		err = t.tx.QueryRowContext(ctx, `SELECT name FROM kit_item WHERE id = ?`, src.ID).Scan(&detail)
	case ir.SourceKitModel:
		err = t.tx.QueryRowContext(ctx, `SELECT name FROM kit_model WHERE id = ?`, src.ID).Scan(&detail)
	}
	if err != nil {
		return "", fmt.Errorf("describe source %d: %w", src.ID, err)
	}
	return detail, nil
}

func (t *Tx) queryIDs(ctx context.Context, query string, args ...any) ([]ir.SourceID, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSourceIDs(rows)
}
