package loader

import (
	"context"
	"sync"

	"github.com/roach88/stoats/internal/ir"
	"github.com/roach88/stoats/internal/store"
)

type registryKey struct {
	name  string
	owner string
}

// Registry holds documentation declared for statistics ahead of use and
// resolves names against the store. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	docs map[registryKey]ir.StatisticName
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[registryKey]ir.StatisticName)}
}

// Declare records documentation for (name, owner). Later declarations
// replace earlier ones field by field.
func (r *Registry) Declare(spec ir.StatisticName) {
	key := registryKey{name: ir.CanonicalName(firstNonEmpty(spec.Name, spec.Title)), owner: spec.Owner}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.docs[key]
	merge(&existing, spec)
	r.docs[key] = existing
}

// Lookup returns the declared documentation for (name, owner).
func (r *Registry) Lookup(name, owner string) (ir.StatisticName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.docs[registryKey{name: ir.CanonicalName(name), owner: owner}]
	return spec, ok
}

// Resolve fills spec from declared documentation and registers it.
func (r *Registry) Resolve(ctx context.Context, tx *store.Tx, spec ir.StatisticName) (ir.StatisticName, error) {
	if declared, ok := r.Lookup(firstNonEmpty(spec.Name, spec.Title), spec.Owner); ok {
		filled := declared
		merge(&filled, spec)
		spec = filled
	}
	return tx.RegisterName(ctx, spec)
}

func merge(dst *ir.StatisticName, src ir.StatisticName) {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.Name, src.Name)
	set(&dst.Title, src.Title)
	set(&dst.Owner, src.Owner)
	set(&dst.Constraint, src.Constraint)
	set(&dst.Units, src.Units)
	set(&dst.Summary, src.Summary)
	set(&dst.Description, src.Description)
	if src.Type != 0 {
		dst.Type = src.Type
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
