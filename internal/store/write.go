package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/stoats/internal/ir"
)

// RegisterName gets or creates the statistic name (Name, Owner, Constraint).
//
// Name is canonicalised from Title when empty. An existing row keeps its
// identity; non-empty documentation fields in spec replace the stored
// ones. Re-registering with a different journal type is a NAME_CONFLICT.
func (t *Tx) RegisterName(ctx context.Context, spec ir.StatisticName) (ir.StatisticName, error) {
	if spec.Name == "" {
		spec.Name = ir.CanonicalName(spec.Title)
	} else {
		spec.Name = ir.CanonicalName(spec.Name)
	}
	if spec.Name == "" {
		return spec, fmt.Errorf("register name: empty name")
	}
	if spec.Title == "" {
		spec.Title = spec.Name
	}
	if spec.Owner == "" {
		return spec, fmt.Errorf("register name %s: empty owner", spec.Name)
	}
	if spec.Type < ir.JournalInteger || spec.Type > ir.JournalTimestamp {
		return spec, fmt.Errorf("register name %s: invalid type %d", spec.Name, spec.Type)
	}

	existing, err := t.GetName(ctx, spec.Name, spec.Owner, spec.Constraint)
	if err != nil && !IsNotFound(err) {
		return spec, err
	}

	if err == nil {
		if existing.Type != spec.Type {
			return existing, &Error{
				Code: ErrCodeNameConflict,
				Message: fmt.Sprintf("%s (owner %s) is %s, not %s",
					existing.Name, existing.Owner, existing.Type, spec.Type),
			}
		}
		updated := existing
		setIfNonEmpty(&updated.Title, spec.Title)
		setIfNonEmpty(&updated.Units, spec.Units)
		setIfNonEmpty(&updated.Summary, spec.Summary)
		setIfNonEmpty(&updated.Description, spec.Description)
		if updated == existing {
			return existing, nil
		}
		_, err := t.tx.ExecContext(ctx, `
			UPDATE statistic_name SET title = ?, units = ?, summary = ?, description = ?
			WHERE id = ?
		`, updated.Title, updated.Units, updated.Summary, updated.Description, updated.ID)
		if err != nil {
			return existing, fmt.Errorf("update name %s: %w", spec.Name, err)
		}
		return updated, nil
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO statistic_name
			(name, title, owner, constraint_, units, summary, description, statistic_journal_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, spec.Name, spec.Title, spec.Owner, spec.Constraint, spec.Units, spec.Summary, spec.Description, int(spec.Type))
	if err != nil {
		return spec, fmt.Errorf("insert name %s: %w", spec.Name, err)
	}
	spec.ID, err = result.LastInsertId()
	if err != nil {
		return spec, fmt.Errorf("insert name %s: last insert id: %w", spec.Name, err)
	}
	return spec, nil
}

func setIfNonEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// GetName looks up a statistic name by its unique key.
func (t *Tx) GetName(ctx context.Context, name, owner, constraint string) (ir.StatisticName, error) {
	var n ir.StatisticName
	var typ int
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, title, owner, constraint_, units, summary, description, statistic_journal_type
		FROM statistic_name
		WHERE name = ? AND owner = ? AND constraint_ = ?
	`, ir.CanonicalName(name), owner, constraint).Scan(
		&n.ID, &n.Name, &n.Title, &n.Owner, &n.Constraint,
		&n.Units, &n.Summary, &n.Description, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return n, newNotFoundError(fmt.Sprintf("statistic %s (owner %s)", name, owner))
	}
	if err != nil {
		return n, fmt.Errorf("get name %s: %w", name, err)
	}
	n.Type = ir.JournalType(typ)
	return n, nil
}

// ListNames returns all statistic names ordered by owner then name.
func (t *Tx) ListNames(ctx context.Context) ([]ir.StatisticName, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, name, title, owner, constraint_, units, summary, description, statistic_journal_type
		FROM statistic_name
		ORDER BY owner ASC, name ASC, constraint_ ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list names: %w", err)
	}
	defer rows.Close()

	names := []ir.StatisticName{}
	for rows.Next() {
		var n ir.StatisticName
		var typ int
		if err := rows.Scan(&n.ID, &n.Name, &n.Title, &n.Owner, &n.Constraint,
			&n.Units, &n.Summary, &n.Description, &typ); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		n.Type = ir.JournalType(typ)
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate names: %w", err)
	}
	return names, nil
}

// Write records one measurement.
//
// If a row for (name, source, at) exists and overwrite is false, Write
// returns a DUPLICATE_MEASUREMENT error. With overwrite the old row and
// its value are replaced.
func (t *Tx) Write(ctx context.Context, name ir.StatisticName, source ir.SourceID, at time.Time, v ir.Value, overwrite bool) (int64, error) {
	if name.ID == 0 {
		return 0, fmt.Errorf("write %s: name not registered", name.Name)
	}
	if v.Type != name.Type {
		return 0, fmt.Errorf("write %s: value is %s, statistic is %s", name.Name, v.Type, name.Type)
	}
	ts := toUnix(at)

	var existing int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM statistic_journal
		WHERE statistic_name_id = ? AND source_id = ? AND time = ?
	`, name.ID, source, ts).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("write %s: check existing: %w", name.Name, err)
	case !overwrite:
		return 0, newDuplicateError(name.Name, source, ts)
	default:
		if _, err := t.tx.ExecContext(ctx, `DELETE FROM statistic_journal WHERE id = ?`, existing); err != nil {
			return 0, fmt.Errorf("write %s: replace: %w", name.Name, err)
		}
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO statistic_journal (statistic_name_id, source_id, time, type)
		VALUES (?, ?, ?, ?)
	`, name.ID, source, ts, int(v.Type))
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", name.Name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write %s: last insert id: %w", name.Name, err)
	}

	// Table name comes from a closed enum, never from input.
	_, err = t.tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, value) VALUES (?, ?)", v.Type.Table()),
		id, v.SQL())
	if err != nil {
		return 0, fmt.Errorf("write %s: value: %w", name.Name, err)
	}
	return id, nil
}

// DeleteJournals removes every row of the given names written by source.
func (t *Tx) DeleteJournals(ctx context.Context, source ir.SourceID, nameIDs ...int64) (int, error) {
	total := 0
	for _, nameID := range nameIDs {
		result, err := t.tx.ExecContext(ctx, `
			DELETE FROM statistic_journal WHERE source_id = ? AND statistic_name_id = ?
		`, source, nameID)
		if err != nil {
			return total, fmt.Errorf("delete journals: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete journals: rows affected: %w", err)
		}
		total += int(n)
	}
	return total, nil
}
