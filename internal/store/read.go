package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/querysql"
)

// ReadSeries returns the journal rows selected by q in time order
// (reverse time order when q.Descending).
func (t *Tx) ReadSeries(ctx context.Context, q querysql.SeriesQuery) ([]ir.Point, error) {
	names := make([]string, len(q.Names))
	for i, name := range q.Names {
		names[i] = ir.CanonicalName(name)
	}
	q.Names = names

	query, params, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}

	rows, err := t.tx.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("read series: %w", err)
	}
	defer rows.Close()

	points := []ir.Point{}
	for rows.Next() {
		var (
			id     int64
			p      ir.Point
			ts     int64
			typ    int
			intV   sql.NullInt64
			floatV sql.NullFloat64
			textV  sql.NullString
			timeV  sql.NullInt64
		)
		if err := rows.Scan(&id, &p.Name, &ts, &p.SourceID, &typ, &intV, &floatV, &textV, &timeV); err != nil {
			return nil, fmt.Errorf("scan series row: %w", err)
		}
		p.Time = fromUnix(ts)

		switch ir.JournalType(typ) {
		case ir.JournalInteger:
			p.Value = ir.IntValue(intV.Int64)
		case ir.JournalFloat:
			p.Value = ir.FloatValue(floatV.Float64)
		case ir.JournalText:
			p.Value = ir.TextValue(textV.String)
		case ir.JournalTimestamp:
			p.Value = ir.TimestampValue(fromUnix(timeV.Int64))
		default:
			return nil, fmt.Errorf("journal %d: unknown type %d", id, typ)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series: %w", err)
	}
	return points, nil
}

// LatestTime returns the time of the most recent row for name.
// ok is false when no row exists.
func (t *Tx) LatestTime(ctx context.Context, name, owner string) (latest time.Time, ok bool, err error) {
	return t.boundTime(ctx, "MAX", []string{name}, owner)
}

// EarliestTime returns the time of the oldest row across names.
// ok is false when none of the names has data.
func (t *Tx) EarliestTime(ctx context.Context, owner string, names ...string) (earliest time.Time, ok bool, err error) {
	return t.boundTime(ctx, "MIN", names, owner)
}

func (t *Tx) boundTime(ctx context.Context, agg string, names []string, owner string) (time.Time, bool, error) {
	if len(names) == 0 {
		return time.Time{}, false, nil
	}

	canonical := make([]any, len(names))
	for i, n := range names {
		canonical[i] = ir.CanonicalName(n)
	}
	filter := querysql.And{Predicates: []querysql.Predicate{
		querysql.In{Field: "n.name", Values: canonical},
	}}
	if owner != "" {
		filter.Predicates = append(filter.Predicates, querysql.Equals{Field: "n.owner", Value: owner})
	}
	where, params, err := querysql.CompileWhere(filter)
	if err != nil {
		return time.Time{}, false, err
	}

	var ts sql.NullInt64
	err = t.tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s(j.time) FROM statistic_journal j
		JOIN statistic_name n ON n.id = j.statistic_name_id
		WHERE %s
	`, agg, where), params...).Scan(&ts)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%s time: %w", agg, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return fromUnix(ts.Int64), true, nil
}

// IntervalHasOutput reports whether any journal row is sourced by the
// interval.
func (t *Tx) IntervalHasOutput(ctx context.Context, interval ir.SourceID) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM statistic_journal WHERE source_id = ?
	`, interval).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("interval output: %w", err)
	}
	return n > 0, nil
}

// CountJournals returns the number of rows sourced by source, or the total
// number of rows when source is zero.
func (t *Tx) CountJournals(ctx context.Context, source ir.SourceID) (int, error) {
	var n int
	var err error
	if source == 0 {
		err = t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM statistic_journal`).Scan(&n)
	} else {
		err = t.tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM statistic_journal WHERE source_id = ?
		`, source).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count journals: %w", err)
	}
	return n, nil
}

// CountSources returns the number of sources of the given kind.
func (t *Tx) CountSources(ctx context.Context, kind ir.SourceKind) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM source WHERE type = ?`, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count sources: %w", err)
	}
	return n, nil
}
