package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/stoats/internal/ir"
)

// KitItem is an individual piece of kit within a group.
type KitItem struct {
	ID    ir.SourceID `json:"id"`
	Group string      `json:"group"`
	Name  string      `json:"name"`
}

// KitModel is a part of a given component fitted to an item.
type KitModel struct {
	ID        ir.SourceID `json:"id"`
	Item      string      `json:"item"`
	Component string      `json:"component"`
	Name      string      `json:"name"`
}

// KitNameKind reports which kit table already uses name: "group",
// "item", "component", "model", or "" when the name is free.
func (t *Tx) KitNameKind(ctx context.Context, name string) (string, error) {
	queries := []struct {
		kind  string
		query string
	}{
		{"group", `SELECT COUNT(*) FROM kit_group WHERE name = ?`},
		{"item", `SELECT COUNT(*) FROM kit_item WHERE name = ?`},
		{"component", `SELECT COUNT(*) FROM kit_component WHERE name = ?`},
		{"model", `SELECT COUNT(*) FROM kit_model WHERE name = ?`},
	}
	for _, q := range queries {
		var n int
		if err := t.tx.QueryRowContext(ctx, q.query, name).Scan(&n); err != nil {
			return "", fmt.Errorf("kit name %s: %w", name, err)
		}
		if n > 0 {
			return q.kind, nil
		}
	}
	return "", nil
}

// KitGroupID returns the id of the named group.
func (t *Tx) KitGroupID(ctx context.Context, name string) (int64, error) {
	return t.lookupID(ctx, `SELECT id FROM kit_group WHERE name = ?`, name, "kit group")
}

// CreateKitGroup inserts a new group.
func (t *Tx) CreateKitGroup(ctx context.Context, name string) (int64, error) {
	return t.insertName(ctx, `INSERT INTO kit_group (name) VALUES (?)`, name, "kit group")
}

// KitComponentID returns the id of the named component.
func (t *Tx) KitComponentID(ctx context.Context, name string) (int64, error) {
	return t.lookupID(ctx, `SELECT id FROM kit_component WHERE name = ?`, name, "kit component")
}

// CreateKitComponent inserts a new component.
func (t *Tx) CreateKitComponent(ctx context.Context, name string) (int64, error) {
	return t.insertName(ctx, `INSERT INTO kit_component (name) VALUES (?)`, name, "kit component")
}

// ListKitGroups returns group names in order.
func (t *Tx) ListKitGroups(ctx context.Context) ([]string, error) {
	return t.queryNames(ctx, `SELECT name FROM kit_group ORDER BY name ASC`)
}

// ListKitComponents returns component names in order.
func (t *Tx) ListKitComponents(ctx context.Context) ([]string, error) {
	return t.queryNames(ctx, `SELECT name FROM kit_component ORDER BY name ASC`)
}

// CreateKitItem creates the item source and its detail row.
func (t *Tx) CreateKitItem(ctx context.Context, groupID int64, name string) (ir.SourceID, error) {
	id, err := t.CreateSource(ctx, ir.SourceKitItem)
	if err != nil {
		return 0, fmt.Errorf("create kit item: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO kit_item (id, group_id, name) VALUES (?, ?, ?)
	`, id, groupID, name)
	if err != nil {
		return 0, fmt.Errorf("create kit item %s: %w", name, err)
	}
	return id, nil
}

// KitItemByName returns the named item.
func (t *Tx) KitItemByName(ctx context.Context, name string) (KitItem, error) {
	var item KitItem
	err := t.tx.QueryRowContext(ctx, `
		SELECT i.id, g.name, i.name FROM kit_item i
		JOIN kit_group g ON g.id = i.group_id
		WHERE i.name = ?
	`, name).Scan(&item.ID, &item.Group, &item.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return item, newNotFoundError(fmt.Sprintf("kit item %s", name))
	}
	if err != nil {
		return item, fmt.Errorf("kit item %s: %w", name, err)
	}
	return item, nil
}

// ListKitItems returns every item, optionally restricted to one group.
func (t *Tx) ListKitItems(ctx context.Context, group string) ([]KitItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT i.id, g.name, i.name FROM kit_item i
		JOIN kit_group g ON g.id = i.group_id
		WHERE ? = '' OR g.name = ?
		ORDER BY g.name ASC, i.name ASC
	`, group, group)
	if err != nil {
		return nil, fmt.Errorf("list kit items: %w", err)
	}
	defer rows.Close()

	items := []KitItem{}
	for rows.Next() {
		var item KitItem
		if err := rows.Scan(&item.ID, &item.Group, &item.Name); err != nil {
			return nil, fmt.Errorf("scan kit item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kit items: %w", err)
	}
	return items, nil
}

// CreateKitModel creates the model source and its detail row.
func (t *Tx) CreateKitModel(ctx context.Context, itemID ir.SourceID, componentID int64, name string) (ir.SourceID, error) {
	id, err := t.CreateSource(ctx, ir.SourceKitModel)
	if err != nil {
		return 0, fmt.Errorf("create kit model: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO kit_model (id, item_id, component_id, name) VALUES (?, ?, ?, ?)
	`, id, itemID, componentID, name)
	if err != nil {
		return 0, fmt.Errorf("create kit model %s: %w", name, err)
	}
	return id, nil
}

// KitModels returns the models fitted to an item, optionally restricted
// to one component, in creation order.
func (t *Tx) KitModels(ctx context.Context, itemID ir.SourceID, component string) ([]KitModel, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT m.id, i.name, c.name, m.name FROM kit_model m
		JOIN kit_item i ON i.id = m.item_id
		JOIN kit_component c ON c.id = m.component_id
		WHERE m.item_id = ? AND (? = '' OR c.name = ?)
		ORDER BY m.id ASC
	`, itemID, component, component)
	if err != nil {
		return nil, fmt.Errorf("kit models: %w", err)
	}
	defer rows.Close()

	models := []KitModel{}
	for rows.Next() {
		var m KitModel
		if err := rows.Scan(&m.ID, &m.Item, &m.Component, &m.Name); err != nil {
			return nil, fmt.Errorf("scan kit model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kit models: %w", err)
	}
	return models, nil
}

// DeleteUnusedKitComponents removes components with no models left.
func (t *Tx) DeleteUnusedKitComponents(ctx context.Context) (int, error) {
	result, err := t.tx.ExecContext(ctx, `
		DELETE FROM kit_component
		WHERE NOT EXISTS (SELECT 1 FROM kit_model m WHERE m.component_id = kit_component.id)
	`)
	if err != nil {
		return 0, fmt.Errorf("delete unused components: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete unused components: %w", err)
	}
	return int(n), nil
}

func (t *Tx) lookupID(ctx context.Context, query, name, what string) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, query, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, newNotFoundError(fmt.Sprintf("%s %s", what, name))
	}
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", what, name, err)
	}
	return id, nil
}

func (t *Tx) insertName(ctx context.Context, query, name, what string) (int64, error) {
	result, err := t.tx.ExecContext(ctx, query, name)
	if err != nil {
		return 0, fmt.Errorf("create %s %s: %w", what, name, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create %s %s: last insert id: %w", what, name, err)
	}
	return id, nil
}

func (t *Tx) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
