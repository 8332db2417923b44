package kit

import (
	"context"
	"time"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

// ItemView describes an item and its components.
type ItemView struct {
	ID         ir.SourceID     `json:"id"`
	Group      string          `json:"group"`
	Name       string          `json:"name"`
	Added      time.Time       `json:"added"`
	Retired    *time.Time      `json:"retired,omitempty"`
	Uses       int             `json:"uses"`
	Components []ComponentView `json:"components"`
}

// ComponentView lists the models fitted for one component, oldest first.
type ComponentView struct {
	Name   string      `json:"name"`
	Models []ModelView `json:"models"`
}

// ModelView is one model with its lifetime.
type ModelView struct {
	ID        ir.SourceID `json:"id"`
	Name      string      `json:"name"`
	Component string      `json:"-"`
	Added     time.Time   `json:"added"`
	Retired   *time.Time  `json:"retired,omitempty"`
}

// ActiveAt reports whether the model was fitted at t. The retirement
// instant itself still counts.
func (v ModelView) ActiveAt(t time.Time) bool {
	if t.Before(v.Added) {
		return false
	}
	return v.Retired == nil || !t.After(*v.Retired)
}

// Show describes the named item. With at non-zero only models fitted at
// that time are listed.
func (m *Manager) Show(ctx context.Context, tx *store.Tx, name string, at time.Time) (ItemView, error) {
	it, err := tx.KitItemByName(ctx, name)
	if err != nil {
		return ItemView{}, err
	}

	view := ItemView{ID: it.ID, Group: it.Group, Name: it.Name}
	view.Added, view.Retired, err = m.lifetime(ctx, tx, it.ID)
	if err != nil {
		return view, err
	}

	outputs, err := tx.Outputs(ctx, it.ID)
	if err != nil {
		return view, err
	}
	view.Uses = len(outputs)

	models, err := m.models(ctx, tx, it.ID, "")
	if err != nil {
		return view, err
	}
	index := make(map[string]int)
	for _, model := range models {
		if !at.IsZero() && !model.ActiveAt(at) {
			continue
		}
		i, ok := index[model.Component]
		if !ok {
			i = len(view.Components)
			index[model.Component] = i
			view.Components = append(view.Components, ComponentView{Name: model.Component})
		}
		view.Components[i].Models = append(view.Components[i].Models, model)
	}
	return view, nil
}

// ShowAll describes every item, ordered by group then name.
func (m *Manager) ShowAll(ctx context.Context, tx *store.Tx, at time.Time) ([]ItemView, error) {
	items, err := tx.ListKitItems(ctx, "")
	if err != nil {
		return nil, err
	}
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		view, err := m.Show(ctx, tx, it.Name, at)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}
