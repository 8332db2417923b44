package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stoats/internal/ir"
)

// CreateSource allocates a new source row of the given variant.
// Variant detail rows are written by the kind-specific constructors.
func (t *Tx) CreateSource(ctx context.Context, kind ir.SourceKind) (ir.SourceID, error) {
	if !ir.ValidSourceKinds[kind] {
		return 0, fmt.Errorf("create source: invalid kind %q", kind)
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO source (type, created) VALUES (?, ?)
	`, string(kind), toUnix(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("create source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create source: last insert id: %w", err)
	}
	return ir.SourceID(id), nil
}

// GetSource returns the shared identity row for id.
func (t *Tx) GetSource(ctx context.Context, id ir.SourceID) (ir.Source, error) {
	var src ir.Source
	var kind string
	var created int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, type, created FROM source WHERE id = ?
	`, id).Scan(&src.ID, &kind, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return src, newNotFoundError(fmt.Sprintf("source %d", id))
	}
	if err != nil {
		return src, fmt.Errorf("get source: %w", err)
	}
	src.Kind = ir.SourceKind(kind)
	src.Created = fromUnix(created)
	return src, nil
}

// DeleteSource removes a source. Journals, edges and detail rows cascade.
// Callers must run CleanComposites afterwards since the deletion can leave
// composites incomplete or orphaned.
func (t *Tx) DeleteSource(ctx context.Context, id ir.SourceID) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM source WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	return nil
}

// DeleteSources removes several sources; see DeleteSource.
func (t *Tx) DeleteSources(ctx context.Context, ids []ir.SourceID) (int, error) {
	n := 0
	for _, id := range ids {
		result, err := t.tx.ExecContext(ctx, `DELETE FROM source WHERE id = ?`, id)
		if err != nil {
			return n, fmt.Errorf("delete source %d: %w", id, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return n, fmt.Errorf("delete source %d: rows affected: %w", id, err)
		}
		n += int(affected)
	}
	return n, nil
}

// CreateActivity creates a leaf source for one imported file.
// The file hash is unique; see ActivityByHash.
func (t *Tx) CreateActivity(ctx context.Context, a ir.Activity) (ir.SourceID, error) {
	id, err := t.CreateSource(ctx, ir.SourceActivity)
	if err != nil {
		return 0, fmt.Errorf("create activity: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO activity_journal (id, activity_group, start, finish, file_hash)
		VALUES (?, ?, ?, ?, ?)
	`, id, a.Group, toUnix(a.Start), toUnix(a.Finish), a.FileHash)
	if err != nil {
		return 0, fmt.Errorf("create activity: %w", err)
	}
	return id, nil
}

// ActivityByHash finds a previously imported file.
// Returns a NOT_FOUND error when the file was never imported.
func (t *Tx) ActivityByHash(ctx context.Context, fileHash string) (ir.Activity, error) {
	var a ir.Activity
	var start, finish int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, activity_group, start, finish, file_hash
		FROM activity_journal WHERE file_hash = ?
	`, fileHash).Scan(&a.ID, &a.Group, &start, &finish, &a.FileHash)
	if errors.Is(err, sql.ErrNoRows) {
		return a, newNotFoundError(fmt.Sprintf("activity with hash %s", fileHash))
	}
	if err != nil {
		return a, fmt.Errorf("activity by hash: %w", err)
	}
	a.Start, a.Finish = fromUnix(start), fromUnix(finish)
	return a, nil
}

// ListActivities returns all activities ordered by start time.
func (t *Tx) ListActivities(ctx context.Context) ([]ir.Activity, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, activity_group, start, finish, file_hash
		FROM activity_journal
		ORDER BY start ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	activities := []ir.Activity{}
	for rows.Next() {
		var a ir.Activity
		var start, finish int64
		if err := rows.Scan(&a.ID, &a.Group, &start, &finish, &a.FileHash); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Start, a.Finish = fromUnix(start), fromUnix(finish)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// CreateComposite creates a composite of the given inputs.
//
// Every input must already exist, so the provenance graph is a DAG by
// insertion order. A missing input is a provenance invariant violation.
func (t *Tx) CreateComposite(ctx context.Context, inputs ...ir.SourceID) (ir.SourceID, error) {
	for _, input := range inputs {
		var exists int
		err := t.tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM source WHERE id = ?
		`, input).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("create composite: check input: %w", err)
		}
		if exists == 0 {
			return 0, newProvenanceError("composite input does not exist", input)
		}
	}

	hash, err := ir.ComponentHash(inputs)
	if err != nil {
		return 0, fmt.Errorf("create composite: %w", err)
	}

	id, err := t.CreateSource(ctx, ir.SourceComposite)
	if err != nil {
		return 0, fmt.Errorf("create composite: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO composite (id, n_components, component_hash) VALUES (?, ?, ?)
	`, id, len(inputs), hash)
	if err != nil {
		return 0, fmt.Errorf("create composite: %w", err)
	}

	for _, input := range inputs {
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO composite_component (input_source_id, output_source_id) VALUES (?, ?)
		`, input, id)
		if err != nil {
			return 0, fmt.Errorf("create composite: write edge: %w", err)
		}
	}

	return id, nil
}

// FindOrCreateComposite returns an existing composite with exactly these
// inputs, creating one if none exists.
func (t *Tx) FindOrCreateComposite(ctx context.Context, inputs ...ir.SourceID) (ir.SourceID, error) {
	hash, err := ir.ComponentHash(inputs)
	if err != nil {
		return 0, fmt.Errorf("find composite: %w", err)
	}

	var id ir.SourceID
	err = t.tx.QueryRowContext(ctx, `
		SELECT c.id FROM composite c
		WHERE c.component_hash = ? AND c.n_components = ?
		  AND (SELECT COUNT(*) FROM composite_component cc WHERE cc.output_source_id = c.id) = c.n_components
		ORDER BY c.id ASC
		LIMIT 1
	`, hash, len(inputs)).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		return t.CreateComposite(ctx, inputs...)
	default:
		return 0, fmt.Errorf("find composite: %w", err)
	}
}

// GetComposite returns the composite detail row.
func (t *Tx) GetComposite(ctx context.Context, id ir.SourceID) (ir.Composite, error) {
	var c ir.Composite
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, n_components, component_hash FROM composite WHERE id = ?
	`, id).Scan(&c.ID, &c.NComponents, &c.ComponentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return c, newNotFoundError(fmt.Sprintf("composite %d", id))
	}
	if err != nil {
		return c, fmt.Errorf("get composite: %w", err)
	}
	return c, nil
}

// Components returns the inputs of a composite, ordered by edge insertion.
func (t *Tx) Components(ctx context.Context, id ir.SourceID) ([]ir.SourceID, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT input_source_id FROM composite_component
		WHERE output_source_id = ?
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("components: %w", err)
	}
	defer rows.Close()
	return scanSourceIDs(rows)
}

// GetOrCreateInterval returns the interval source for (owner, schedule,
// start), creating it if needed. created reports whether a row was added.
func (t *Tx) GetOrCreateInterval(ctx context.Context, owner string, sch ir.Schedule, start time.Time) (ir.Interval, bool, error) {
	interval, err := t.FindInterval(ctx, owner, sch, start)
	if err == nil {
		return interval, false, nil
	}
	if !IsNotFound(err) {
		return interval, false, err
	}

	id, err := t.CreateSource(ctx, ir.SourceInterval)
	if err != nil {
		return interval, false, fmt.Errorf("create interval: %w", err)
	}

	start = sch.Start(start)
	finish := sch.Next(start)
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO interval (id, owner, schedule, start, finish) VALUES (?, ?, ?, ?, ?)
	`, id, owner, sch.String(), toUnix(start), toUnix(finish))
	if err != nil {
		return interval, false, fmt.Errorf("create interval: %w", err)
	}

	return ir.Interval{ID: id, Owner: owner, Schedule: sch, Start: start, Finish: finish}, true, nil
}

// FindInterval returns the interval source for (owner, schedule, start).
func (t *Tx) FindInterval(ctx context.Context, owner string, sch ir.Schedule, start time.Time) (ir.Interval, error) {
	interval := ir.Interval{Owner: owner, Schedule: sch}
	var s, f int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, start, finish FROM interval
		WHERE owner = ? AND schedule = ? AND start = ?
	`, owner, sch.String(), toUnix(sch.Start(start))).Scan(&interval.ID, &s, &f)
	if errors.Is(err, sql.ErrNoRows) {
		return interval, newNotFoundError(fmt.Sprintf("interval %s %s at %s", owner, sch, start.Format(time.DateOnly)))
	}
	if err != nil {
		return interval, fmt.Errorf("find interval: %w", err)
	}
	interval.Start, interval.Finish = fromUnix(s), fromUnix(f)
	return interval, nil
}

func scanSourceIDs(rows *sql.Rows) ([]ir.SourceID, error) {
	ids := []ir.SourceID{}
	for rows.Next() {
		var id ir.SourceID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan source id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source ids: %w", err)
	}
	return ids, nil
}
