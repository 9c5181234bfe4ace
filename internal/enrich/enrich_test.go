package enrich

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/dbtlineage/internal/describe"
	"github.com/tordrt/dbtlineage/internal/manifest"
	"github.com/tordrt/dbtlineage/internal/schema"
	"github.com/tordrt/dbtlineage/internal/testutil"
)

func loadShop(t *testing.T) []*schema.Project {
	t.Helper()
	ctx, _ := testutil.Context(t)
	root := t.TempDir()

	a := testutil.WriteProject(t, root, "proj_a", testutil.Node{
		Name:         "orders",
		Columns:      []testutil.Column{{Name: "id", Type: "int"}, {Name: "customer_id", Type: ""}},
		DependsOn:    []string{"model.proj_b.customers"},
		CompiledCode: "select id, customer_id from raw.orders",
	})
	b := testutil.WriteProject(t, root, "proj_b", testutil.Node{
		Name:    "customers",
		Columns: []testutil.Column{{Name: "id", Type: "int"}},
	}, testutil.Node{Name: "empty"})

	projects := manifest.LoadProjects(ctx, []string{a, b})
	require.Len(t, projects, 2)
	return projects
}

type recordingDescriber struct {
	reqs []describe.Request
	out  func(describe.Request) string
}

func (r *recordingDescriber) Describe(_ context.Context, req describe.Request) string {
	r.reqs = append(r.reqs, req)
	if r.out != nil {
		return r.out(req)
	}
	return "about " + req.Column
}

func TestEnrich_OrderAndIndex(t *testing.T) {
	projects := loadShop(t)
	ctx, _ := testutil.Context(t)
	d := &recordingDescriber{}

	var progress [][2]int
	index, stats := Enrich(ctx, projects, d, Options{
		Strategy: StrategyBasic,
		Progress: func(done, total int) { progress = append(progress, [2]int{done, total}) },
	})

	require.Len(t, d.reqs, 3)
	assert.Equal(t, "id", d.reqs[0].Column)
	assert.Equal(t, "int", d.reqs[0].DataType)
	assert.Equal(t, "customer_id", d.reqs[1].Column)
	assert.Equal(t, UnknownDataType, d.reqs[1].DataType)
	assert.Equal(t, "Model: orders (proj_a)\nRelationships: model.proj_b.customers", d.reqs[0].Context)
	assert.Equal(t, "Model: customers (proj_b)\nRelationships: ", d.reqs[2].Context)

	assert.Equal(t, Index{
		"proj_a.orders":    {"id": "about id", "customer_id": "about customer_id"},
		"proj_b.customers": {"id": "about id"},
		"proj_b.empty":     {},
	}, index)
	assert.Equal(t, Stats{Total: 3, Processed: 3}, stats)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	col, ok := projects[0].Models["model.proj_a.orders"].Columns.Get("customer_id")
	require.True(t, ok)
	assert.Equal(t, "about customer_id", col.AIDescription)
}

func TestEnrich_AllFailuresStillDescribed(t *testing.T) {
	projects := loadShop(t)
	ctx, _ := testutil.Context(t)
	d := &recordingDescriber{out: func(describe.Request) string { return describe.SentinelAPIError }}

	index, stats := Enrich(ctx, projects, d, Options{})
	assert.Equal(t, 3, stats.Failed)

	for _, p := range projects {
		for _, m := range p.OrderedModels() {
			for _, name := range m.Columns.Names() {
				col, _ := m.Columns.Get(name)
				assert.Equal(t, describe.SentinelAPIError, col.AIDescription)
				assert.Equal(t, describe.SentinelAPIError, index[m.UniqueName][name])
			}
		}
	}
}

func TestEnrich_NilDescriber(t *testing.T) {
	projects := loadShop(t)
	ctx, rec := testutil.Context(t)

	index, stats := Enrich(ctx, projects, nil, Options{})
	assert.Empty(t, index)
	assert.Zero(t, stats.Processed)
	require.Len(t, rec.Filter("enrich", slog.LevelInfo), 1)

	col, _ := projects[0].Models["model.proj_a.orders"].Columns.Get("id")
	assert.Empty(t, col.AIDescription)
}

func TestEnrich_UnknownStrategyFallsBack(t *testing.T) {
	projects := loadShop(t)
	ctx, rec := testutil.Context(t)
	d := &recordingDescriber{}

	Enrich(ctx, projects, d, Options{Strategy: "embeddings"})

	warnings := rec.Filter("enrich", slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Equal(t, "embeddings", warnings[0].Key)
	assert.False(t, strings.Contains(d.reqs[0].Context, "SQL snippet"))
}

func TestEnrich_CancelStopsScheduling(t *testing.T) {
	projects := loadShop(t)
	base, _ := testutil.Context(t)
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	d := &recordingDescriber{}
	d.out = func(req describe.Request) string {
		cancel()
		return "partial " + req.Column
	}

	index, stats := Enrich(ctx, projects, d, Options{})
	assert.True(t, stats.Canceled)
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, Index{"proj_a.orders": {"id": "partial id"}}, index)
}

func TestBuildContext(t *testing.T) {
	m := &schema.Model{
		Name:         "orders",
		Project:      "shop",
		DependsOn:    []string{"model.shop.stg_orders", "model.shop.customers"},
		CompiledCode: strings.Repeat("é", CodeSnippetLimit+20),
	}

	assert.Equal(t,
		"Model: orders (shop)\nRelationships: model.shop.stg_orders, model.shop.customers",
		BuildContext(m, StrategyBasic))

	code := BuildContext(m, StrategyCode)
	lines := strings.Split(code, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "SQL snippet: "+strings.Repeat("é", CodeSnippetLimit)+"...", lines[0])
	assert.Equal(t, "Model: orders (shop)", lines[1])

	m.CompiledCode = ""
	assert.True(t, strings.HasPrefix(BuildContext(m, StrategyCode), "SQL snippet: ...\n"))
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
		ok   bool
	}{
		{"basic", StrategyBasic, true},
		{"CODE", StrategyCode, true},
		{"", StrategyBasic, true},
		{"vector", StrategyBasic, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseStrategy(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}
