// Package kit tracks equipment: groups of items (a bike, a pair of shoes)
// built from components whose models are swapped over time.
//
// Items and models are provenance sources. Their lifetimes are recorded
// as "Kit Added" and "Kit Retired" timestamps sourced by the item or
// model itself. Using kit on an activity records "Kit Used" against a
// composite of (activity, item), so deleting either side removes the use.
package kit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/loader"
	"github.com/roach88/stoats/internal/querysql"
	"github.com/roach88/stoats/internal/store"
)

// Owner of every kit statistic.
const Owner = "Kit"

// Kit statistic names.
const (
	Added   = "Kit Added"
	Retired = "Kit Retired"
	Used    = "Kit Used"
)

var (
	// ErrNameInUse is returned when a name already belongs to another
	// kind of kit. Names are unique across groups, items, components and
	// models.
	ErrNameInUse = errors.New("kit name in use")

	// ErrForceRequired is returned when creating a new group or component
	// without force.
	ErrForceRequired = errors.New("force required")

	// ErrAlreadyRetired is returned when retiring retired kit without
	// force.
	ErrAlreadyRetired = errors.New("already retired")
)

var descriptions = map[string]string{
	Added:   "When the kit was added.",
	Retired: "When the kit was retired.",
	Used:    "When the kit was used in an activity.",
}

// Manager runs kit operations inside the caller's transaction.
type Manager struct {
	registry *loader.Registry
}

// NewManager creates a manager. A nil registry gets a private one.
func NewManager(registry *loader.Registry) *Manager {
	if registry == nil {
		registry = loader.NewRegistry()
	}
	return &Manager{registry: registry}
}

// New creates item in group, added at at. A group that does not exist
// yet is created only with force.
func (m *Manager) New(ctx context.Context, tx *store.Tx, group, item string, at time.Time, force bool) (ir.SourceID, error) {
	if err := requireFree(ctx, tx, item, ""); err != nil {
		return 0, err
	}

	groupID, err := tx.KitGroupID(ctx, group)
	if store.IsNotFound(err) {
		if !force {
			return 0, fmt.Errorf("new group %s: %w", group, ErrForceRequired)
		}
		if err := requireFree(ctx, tx, group, "group"); err != nil {
			return 0, err
		}
		slog.Warn("forcing creation of new group", "group", group)
		groupID, err = tx.CreateKitGroup(ctx, group)
	}
	if err != nil {
		return 0, err
	}

	id, err := tx.CreateKitItem(ctx, groupID, item)
	if err != nil {
		return 0, err
	}
	if err := m.stamp(ctx, tx, id, Added, at); err != nil {
		return 0, err
	}
	slog.Info("created kit item", "group", group, "item", item, "added", at.Format(time.DateOnly))
	return id, nil
}

// Add fits model as component of item at at.
//
// The model previously fitted for that component is retired at at. If a
// later model already exists, the new one is retired when that one was
// added.
func (m *Manager) Add(ctx context.Context, tx *store.Tx, item, component, model string, at time.Time, force bool) (ir.SourceID, error) {
	it, err := tx.KitItemByName(ctx, item)
	if err != nil {
		return 0, err
	}

	componentID, err := tx.KitComponentID(ctx, component)
	if store.IsNotFound(err) {
		if !force {
			return 0, fmt.Errorf("new component %s: %w", component, ErrForceRequired)
		}
		if err := requireFree(ctx, tx, component, "component"); err != nil {
			return 0, err
		}
		slog.Warn("forcing creation of new component", "component", component)
		componentID, err = tx.CreateKitComponent(ctx, component)
	}
	if err != nil {
		return 0, err
	}
	if err := requireFree(ctx, tx, model, "model"); err != nil {
		return 0, err
	}

	previous, err := m.models(ctx, tx, it.ID, component)
	if err != nil {
		return 0, err
	}

	id, err := tx.CreateKitModel(ctx, it.ID, componentID, model)
	if err != nil {
		return 0, err
	}
	if err := m.stamp(ctx, tx, id, Added, at); err != nil {
		return 0, err
	}

	var before, after *ModelView
	for i := range previous {
		p := &previous[i]
		if !p.Added.After(at) {
			before = p
		} else if after == nil {
			after = p
		}
	}
	if before != nil && (before.Retired == nil || before.Retired.After(at)) {
		if err := m.retire(ctx, tx, before.ID, at); err != nil {
			return 0, err
		}
		slog.Info("retired previous model", "component", component, "model", before.Name)
	}
	if after != nil {
		if err := m.stamp(ctx, tx, id, Retired, after.Added); err != nil {
			return 0, err
		}
		slog.Info("retired new model", "component", component, "model", model)
	}

	slog.Info("added kit model", "item", item, "component", component, "model", model)
	return id, nil
}

// Retire retires the named item, or every model with that name.
// Retiring something already retired replaces the date only with force.
func (m *Manager) Retire(ctx context.Context, tx *store.Tx, name string, at time.Time, force bool) error {
	kind, err := tx.KitNameKind(ctx, name)
	if err != nil {
		return err
	}

	var ids []ir.SourceID
	switch kind {
	case "item":
		it, err := tx.KitItemByName(ctx, name)
		if err != nil {
			return err
		}
		ids = []ir.SourceID{it.ID}
	case "model":
		ids, err = m.modelsNamed(ctx, tx, name)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("retire %s: not an item or model", name)
	}

	for _, id := range ids {
		_, retired, err := m.lifetime(ctx, tx, id)
		if err != nil {
			return err
		}
		if retired != nil && !force {
			return fmt.Errorf("retire %s: %w", name, ErrAlreadyRetired)
		}
		if err := m.retire(ctx, tx, id, at); err != nil {
			return err
		}
	}
	slog.Info("retired kit", "name", name, "retired", at.Format(time.DateOnly))
	return nil
}

// Use records that item, and every model fitted to it at at, was used by
// activity. Returns the number of kit sources stamped.
func (m *Manager) Use(ctx context.Context, tx *store.Tx, activity ir.SourceID, item string, at time.Time) (int, error) {
	it, err := tx.KitItemByName(ctx, item)
	if err != nil {
		return 0, err
	}

	sources := []ir.SourceID{it.ID}
	models, err := m.models(ctx, tx, it.ID, "")
	if err != nil {
		return 0, err
	}
	for _, model := range models {
		if model.ActiveAt(at) {
			sources = append(sources, model.ID)
		}
	}

	for _, source := range sources {
		composite, err := tx.FindOrCreateComposite(ctx, activity, source)
		if err != nil {
			return 0, err
		}
		if err := m.stamp(ctx, tx, composite, Used, at); err != nil {
			return 0, err
		}
	}
	slog.Debug("kit used", "item", item, "activity", activity, "sources", len(sources))
	return len(sources), nil
}

// Delete removes an item with all its models, or every model with the
// given name, then cleans composites and unused components.
func (m *Manager) Delete(ctx context.Context, tx *store.Tx, name string) error {
	kind, err := tx.KitNameKind(ctx, name)
	if err != nil {
		return err
	}

	var ids []ir.SourceID
	switch kind {
	case "item":
		it, err := tx.KitItemByName(ctx, name)
		if err != nil {
			return err
		}
		models, err := tx.KitModels(ctx, it.ID, "")
		if err != nil {
			return err
		}
		// Model sources first: the item cascade only removes their
		// detail rows.
		for _, model := range models {
			ids = append(ids, model.ID)
		}
		ids = append(ids, it.ID)
	case "model":
		ids, err = m.modelsNamed(ctx, tx, name)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("delete %s: not an item or model", name)
	}

	if _, err := tx.DeleteSources(ctx, ids); err != nil {
		return err
	}
	cleaned, err := tx.CleanComposites(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.DeleteUnusedKitComponents(ctx); err != nil {
		return err
	}
	slog.Info("deleted kit", "name", name, "sources", len(ids), "composites", cleaned)
	return nil
}

// requireFree fails when name is used by a kind other than allowed.
func requireFree(ctx context.Context, tx *store.Tx, name, allowed string) error {
	kind, err := tx.KitNameKind(ctx, name)
	if err != nil {
		return err
	}
	if kind != "" && kind != allowed {
		return fmt.Errorf("%q is already a %s: %w", name, kind, ErrNameInUse)
	}
	return nil
}

func (m *Manager) name(ctx context.Context, tx *store.Tx, name string) (ir.StatisticName, error) {
	return m.registry.Resolve(ctx, tx, ir.StatisticName{
		Name:        name,
		Title:       name,
		Owner:       Owner,
		Description: descriptions[name],
		Type:        ir.JournalTimestamp,
	})
}

func (m *Manager) stamp(ctx context.Context, tx *store.Tx, source ir.SourceID, name string, at time.Time) error {
	stat, err := m.name(ctx, tx, name)
	if err != nil {
		return err
	}
	// Repeated use of the same kit on the same activity is idempotent.
	_, err = tx.Write(ctx, stat, source, at, ir.TimestampValue(at), name == Used)
	return err
}

// retire replaces any existing retirement of source with at.
func (m *Manager) retire(ctx context.Context, tx *store.Tx, source ir.SourceID, at time.Time) error {
	stat, err := m.name(ctx, tx, Retired)
	if err != nil {
		return err
	}
	if _, err := tx.DeleteJournals(ctx, source, stat.ID); err != nil {
		return err
	}
	return m.stamp(ctx, tx, source, Retired, at)
}

func (m *Manager) timestamp(ctx context.Context, tx *store.Tx, source ir.SourceID, name string) (*time.Time, error) {
	points, err := tx.ReadSeries(ctx, querysql.SeriesQuery{
		Names:      []string{name},
		Owner:      Owner,
		SourceIDs:  []ir.SourceID{source},
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	t := points[0].Value.Time
	return &t, nil
}

func (m *Manager) lifetime(ctx context.Context, tx *store.Tx, source ir.SourceID) (time.Time, *time.Time, error) {
	added, err := m.timestamp(ctx, tx, source, Added)
	if err != nil {
		return time.Time{}, nil, err
	}
	if added == nil {
		return time.Time{}, nil, fmt.Errorf("kit source %d has no %s", source, Added)
	}
	retired, err := m.timestamp(ctx, tx, source, Retired)
	return *added, retired, err
}

// models returns the models of item (optionally one component) with
// their lifetimes, ordered by added time.
func (m *Manager) models(ctx context.Context, tx *store.Tx, item ir.SourceID, component string) ([]ModelView, error) {
	rows, err := tx.KitModels(ctx, item, component)
	if err != nil {
		return nil, err
	}
	views := make([]ModelView, 0, len(rows))
	for _, row := range rows {
		added, retired, err := m.lifetime(ctx, tx, row.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, ModelView{
			ID:        row.ID,
			Name:      row.Name,
			Component: row.Component,
			Added:     added,
			Retired:   retired,
		})
	}
	slices.SortStableFunc(views, func(a, b ModelView) int {
		return a.Added.Compare(b.Added)
	})
	return views, nil
}

// modelsNamed returns the ids of every model called name.
func (m *Manager) modelsNamed(ctx context.Context, tx *store.Tx, name string) ([]ir.SourceID, error) {
	items, err := tx.ListKitItems(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []ir.SourceID
	for _, it := range items {
		models, err := tx.KitModels(ctx, it.ID, "")
		if err != nil {
			return nil, err
		}
		for _, model := range models {
			if model.Name == name {
				ids = append(ids, model.ID)
			}
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("kit model %s: not found", name)
	}
	return ids, nil
}
