package querysql

import (
	"fmt"
	"time"

	"github.com/roach88/stoats/internal/ir"
)

// SeriesQuery selects journal rows for one or more statistic names.
type SeriesQuery struct {
	// Names are canonical statistic names. At least one is required.
	Names []string

	// Owner restricts names to one owner. Empty matches any owner.
	Owner string

	// Constraint restricts names to one constraint when non-nil.
	Constraint *string

	// Start and Finish bound the half-open time window [Start, Finish).
	// Zero values leave that side open.
	Start  time.Time
	Finish time.Time

	// SourceIDs restricts rows to these sources when non-empty.
	SourceIDs []ir.SourceID

	Descending bool
	Limit      int
}

// Columns returned by every compiled series query, in order.
var Columns = []string{
	"id", "name", "time", "source_id", "type",
	"int_value", "float_value", "text_value", "timestamp_value",
}

const seriesSelect = `SELECT j.id, n.name, j.time, j.source_id, j.type,
 vi.value, vf.value, vt.value, vs.value
FROM statistic_journal j
JOIN statistic_name n ON n.id = j.statistic_name_id
LEFT JOIN statistic_journal_integer vi ON vi.id = j.id
LEFT JOIN statistic_journal_float vf ON vf.id = j.id
LEFT JOIN statistic_journal_text vt ON vt.id = j.id
LEFT JOIN statistic_journal_timestamp vs ON vs.id = j.id`

// Compile converts q to parameterized SQL. Returns (sql, params, error).
//
// Every query orders by (time, journal id) so identical stores give
// identical reads.
func Compile(q SeriesQuery) (string, []any, error) {
	if len(q.Names) == 0 {
		return "", nil, fmt.Errorf("series query: no names")
	}
	if q.Limit < 0 {
		return "", nil, fmt.Errorf("series query: negative limit %d", q.Limit)
	}
	if !q.Start.IsZero() && !q.Finish.IsZero() && q.Finish.Before(q.Start) {
		return "", nil, fmt.Errorf("series query: finish %s before start %s",
			q.Finish.Format(time.RFC3339), q.Start.Format(time.RFC3339))
	}

	filter := q.filter()
	where, params, err := compilePredicate(filter)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}

	sql := seriesSelect + "\nWHERE " + where + "\nORDER BY " + orderKey(q.Descending)
	if q.Limit > 0 {
		sql += "\nLIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

func (q SeriesQuery) filter() Predicate {
	preds := []Predicate{}

	if len(q.Names) == 1 {
		preds = append(preds, Equals{Field: "n.name", Value: q.Names[0]})
	} else {
		names := make([]any, len(q.Names))
		for i, n := range q.Names {
			names[i] = n
		}
		preds = append(preds, In{Field: "n.name", Values: names})
	}

	if q.Owner != "" {
		preds = append(preds, Equals{Field: "n.owner", Value: q.Owner})
	}
	if q.Constraint != nil {
		preds = append(preds, Equals{Field: "n.constraint_", Value: *q.Constraint})
	}

	window := Range{Field: "j.time"}
	if !q.Start.IsZero() {
		from := q.Start.UTC().Unix()
		window.From = &from
	}
	if !q.Finish.IsZero() {
		to := q.Finish.UTC().Unix()
		window.To = &to
	}
	if window.From != nil || window.To != nil {
		preds = append(preds, window)
	}

	if len(q.SourceIDs) > 0 {
		ids := make([]any, len(q.SourceIDs))
		for i, id := range q.SourceIDs {
			ids[i] = int64(id)
		}
		preds = append(preds, In{Field: "j.source_id", Values: ids})
	}

	return And{Predicates: preds}
}

func orderKey(descending bool) string {
	if descending {
		return "j.time DESC, j.id DESC"
	}
	return "j.time ASC, j.id ASC"
}
