package graph

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/dbtlineage/internal/manifest"
	"github.com/tordrt/dbtlineage/internal/schema"
	"github.com/tordrt/dbtlineage/internal/testutil"
)

func loadFixture(t *testing.T, specs map[string][]testutil.Node, order ...string) []*schema.Project {
	t.Helper()
	ctx, _ := testutil.Context(t)
	root := t.TempDir()

	var paths []string
	for _, name := range order {
		paths = append(paths, testutil.WriteProject(t, root, name, specs[name]...))
	}
	return manifest.LoadProjects(ctx, paths)
}

func TestBuild_CrossProjectEdge(t *testing.T) {
	projects := loadFixture(t, map[string][]testutil.Node{
		"proj_a": {{
			Name:      "orders",
			Columns:   []testutil.Column{{Name: "order_id", Type: "int"}, {Name: "customer_id", Type: "int"}},
			DependsOn: []string{"model.proj_b.customers"},
		}},
		"proj_b": {{
			Name:    "customers",
			Columns: []testutil.Column{{Name: "customer_id", Type: "int"}},
		}},
	}, "proj_a", "proj_b")

	ctx, _ := testutil.Context(t)
	g := Build(ctx, projects)

	var ids []string
	for _, n := range g.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"proj_a.orders", "proj_b.customers"}, ids)
	assert.Equal(t, []Edge{{Source: "proj_b.customers", Target: "proj_a.orders"}}, g.Edges())

	orders, ok := g.Node("proj_a.orders")
	require.True(t, ok)
	assert.Equal(t, "proj_a", orders.Project)
	assert.Equal(t, "orders", orders.OriginalName)
	assert.Equal(t, []string{"order_id", "customer_id"}, orders.Columns.Names())
}

func TestBuild_UnresolvedReferenceIsDropped(t *testing.T) {
	projects := loadFixture(t, map[string][]testutil.Node{
		"shop": {
			{Name: "stg_orders", DependsOn: []string{"source.shop.raw.orders"}},
			{Name: "orders", DependsOn: []string{"model.shop.stg_orders", "model.elsewhere.ghost"}},
		},
	}, "shop")

	ctx, rec := testutil.Context(t)
	g := Build(ctx, projects)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, []Edge{{Source: "shop.stg_orders", Target: "shop.orders"}}, g.Edges())
	for _, e := range g.Edges() {
		assert.NotContains(t, []string{e.Source, e.Target}, "model.elsewhere.ghost")
	}

	var missing []string
	for _, d := range rec.Filter("resolver", slog.LevelDebug) {
		missing = append(missing, d.Key)
	}
	assert.Equal(t, []string{"source.shop.raw.orders", "model.elsewhere.ghost"}, missing)
}

func TestBuild_CollisionLastLoadedWins(t *testing.T) {
	// Two roots that share the directory name "analytics" produce the same unique names.
	ctx, rec := testutil.Context(t)
	first := testutil.WriteProject(t, t.TempDir(), "analytics",
		testutil.Node{Name: "dim_users", Description: "from first", Columns: []testutil.Column{{Name: "id", Type: "int"}}})
	second := testutil.WriteProject(t, t.TempDir(), "analytics",
		testutil.Node{Name: "dim_users", Description: "from second", Columns: []testutil.Column{{Name: "user_id", Type: "bigint"}}})

	projects := manifest.LoadProjects(ctx, []string{first, second})
	require.Len(t, projects, 2)

	g := Build(ctx, projects)

	require.Equal(t, 1, g.Len())
	n, _ := g.Node("analytics.dim_users")
	assert.Equal(t, "from second", n.Description)
	assert.Equal(t, []string{"user_id"}, n.Columns.Names())
	assert.Equal(t, []string{"analytics.dim_users"}, g.Collisions())

	warnings := rec.Filter("graph", slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Equal(t, "analytics.dim_users", warnings[0].Key)
}

func TestBuild_CyclesAreTolerated(t *testing.T) {
	projects := loadFixture(t, map[string][]testutil.Node{
		"loop": {
			{Name: "a", DependsOn: []string{"model.loop.c"}},
			{Name: "b", DependsOn: []string{"model.loop.a"}},
			{Name: "c", DependsOn: []string{"model.loop.b", "model.loop.b"}},
		},
	}, "loop")

	ctx, _ := testutil.Context(t)
	g := Build(ctx, projects)

	assert.Equal(t, 3, g.EdgeCount())
	assert.Equal(t, []string{"loop.c", "loop.b"}, g.Upstream("loop.a"))
	assert.Equal(t, []string{"loop.b", "loop.c"}, g.Downstream("loop.a"))
}

func TestBuild_NoProjects(t *testing.T) {
	ctx, rec := testutil.Context(t)
	g := Build(ctx, nil)

	assert.Equal(t, 0, g.Len())
	infos := rec.Filter("graph", slog.LevelInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "no projects loaded", infos[0].Message)
}

func TestGraph_AddEdgeRequiresEndpoints(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "p.a"})

	assert.False(t, g.AddEdge("p.missing", "p.a"))
	assert.False(t, g.AddEdge("p.a", "p.missing"))

	g.AddNode(Node{ID: "p.b"})
	assert.True(t, g.AddEdge("p.a", "p.b"))
	assert.False(t, g.AddEdge("p.a", "p.b"), "duplicate edge")

	assert.Equal(t, []string{"p.a"}, g.Parents("p.b"))
	assert.Equal(t, []string{"p.b"}, g.Children("p.a"))
	assert.Empty(t, g.Upstream("p.a"))
}

func TestGraph_SharedColumns(t *testing.T) {
	cols := schema.NewColumns()
	cols.Set("id", &schema.Column{DataType: "int"})

	g := New()
	g.AddNode(Node{ID: "p.m", Columns: cols})

	col, _ := cols.Get("id")
	col.AIDescription = "identifier"

	n, _ := g.Node("p.m")
	got, _ := n.Columns.Get("id")
	assert.Equal(t, "identifier", got.AIDescription)
}
