package graph

import (
	"context"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
	"github.com/tordrt/dbtlineage/internal/resolver"
	"github.com/tordrt/dbtlineage/internal/schema"
)

// Build creates the unified graph for the loaded projects.
//
// All nodes are added first, in project load order and then manifest order,
// so every edge can be checked against existing endpoints. A unique name seen
// twice keeps its first position but takes the later model's attributes; the
// collision is reported as a warning. Unresolvable dependency references are
// skipped.
func Build(ctx context.Context, projects []*schema.Project) *Graph {
	logger := ctxlog.Component(ctx, "graph")
	g := New()

	if len(projects) == 0 {
		logger.Info("no projects loaded")
		return g
	}

	for _, p := range projects {
		for _, m := range p.OrderedModels() {
			replaced := g.AddNode(Node{
				ID:           m.UniqueName,
				Project:      m.Project,
				Columns:      m.Columns,
				Description:  m.Description,
				OriginalName: m.Name,
			})
			if replaced {
				logger.Warn("unique name collision, later model wins", diag.AttrKey, m.UniqueName, "project", p.Name, "local_id", m.LocalID)
			}
		}
	}

	res := resolver.New(projects)
	skipped := 0
	for _, p := range projects {
		for _, m := range p.OrderedModels() {
			for _, ref := range m.DependsOn {
				parent, ok := res.Resolve(ctx, ref)
				if !ok {
					skipped++
					continue
				}
				g.AddEdge(parent, m.UniqueName)
			}
		}
	}

	logger.Info("graph built", "nodes", g.Len(), "edges", g.EdgeCount(), "unresolved", skipped)
	return g
}
