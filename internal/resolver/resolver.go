// Package resolver maps manifest-local dependency references to the unique
// names of the models they denote, across every loaded project.
package resolver

import (
	"context"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
	"github.com/tordrt/dbtlineage/internal/schema"
)

// Resolver answers reference lookups from an index built once after loading.
// When several projects contain the same local id the first project in load
// order wins.
type Resolver struct {
	index map[string]string
}

// New indexes every model of every project.
func New(projects []*schema.Project) *Resolver {
	index := make(map[string]string)
	for _, p := range projects {
		for _, id := range p.ModelIDs {
			if _, seen := index[id]; seen {
				continue
			}
			index[id] = p.Models[id].UniqueName
		}
	}
	return &Resolver{index: index}
}

// Resolve returns the unique name of the model identified by ref.
// References to sources, seeds and other non-model resources are expected
// misses; they are logged at debug level and reported as not found.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, bool) {
	name, ok := r.index[ref]
	if !ok {
		ctxlog.Component(ctx, "resolver").Debug("parent not found", diag.AttrKey, ref)
		return "", false
	}
	return name, true
}

// Len returns the number of indexed references.
func (r *Resolver) Len() int {
	return len(r.index)
}
