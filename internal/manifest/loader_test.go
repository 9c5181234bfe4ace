package manifest

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tordrt/dbtlineage/internal/testutil"
)

func TestLoadProjects_SkipsMissingManifest(t *testing.T) {
	ctx, rec := testutil.Context(t)
	root := t.TempDir()

	a := testutil.WriteProject(t, root, "proj_a", testutil.Node{Name: "orders"})
	missing := filepath.Join(root, "proj_missing")
	require.NoError(t, os.MkdirAll(missing, 0o755))
	b := testutil.WriteProject(t, root, "proj_b", testutil.Node{Name: "customers"})

	projects := LoadProjects(ctx, []string{a, missing, b})

	require.Len(t, projects, 2)
	assert.Equal(t, "proj_a", projects[0].Name)
	assert.Equal(t, "proj_b", projects[1].Name)

	warnings := rec.Filter("loader", slog.LevelWarn)
	require.Len(t, warnings, 1)
	assert.Equal(t, missing, warnings[0].Key)
}

func TestLoadProjects_KeepsOnlyModels(t *testing.T) {
	ctx, _ := testutil.Context(t)
	root := t.TempDir()

	path := testutil.WriteProject(t, root, "shop",
		testutil.Node{Name: "stg_orders", Columns: []testutil.Column{{Name: "id", Type: "int"}}},
		testutil.Node{Name: "not_null_stg_orders_id", ResourceType: "test"},
		testutil.Node{Name: "country_codes", ResourceType: "seed"},
		testutil.Node{Name: "orders", DependsOn: []string{"model.shop.stg_orders", "source.shop.raw.orders"}},
	)

	projects := LoadProjects(ctx, []string{path})
	require.Len(t, projects, 1)

	p := projects[0]
	assert.Equal(t, path, p.Path)
	assert.Equal(t, []string{"model.shop.stg_orders", "model.shop.orders"}, p.ModelIDs)

	orders := p.Models["model.shop.orders"]
	require.NotNil(t, orders)
	assert.Equal(t, "shop.orders", orders.UniqueName)
	assert.Equal(t, "shop", orders.Project)
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, []string{"model.shop.stg_orders", "source.shop.raw.orders"}, orders.DependsOn)
	assert.Equal(t, 0, orders.Columns.Len())
	assert.NotNil(t, orders.Columns)

	stg := p.Models["model.shop.stg_orders"]
	col, ok := stg.Columns.Get("id")
	require.True(t, ok)
	assert.Equal(t, "int", col.DataType)
}

func TestLoadProjects_SkipsProjectWithoutModels(t *testing.T) {
	ctx, rec := testutil.Context(t)
	root := t.TempDir()

	onlyTests := testutil.WriteProject(t, root, "tests_only", testutil.Node{Name: "t1", ResourceType: "test"})
	projects := LoadProjects(ctx, []string{onlyTests})

	assert.Empty(t, projects)
	infos := rec.Filter("loader", slog.LevelInfo)
	require.NotEmpty(t, infos)
	assert.Equal(t, onlyTests, infos[0].Key)
}

func TestLoadProjects_Empty(t *testing.T) {
	ctx, _ := testutil.Context(t)
	assert.Empty(t, LoadProjects(ctx, nil))
}

func TestLoadProject_Errors(t *testing.T) {
	ctx, _ := testutil.Context(t)
	root := t.TempDir()

	_, err := LoadProject(ctx, filepath.Join(root, "nowhere"))
	assert.True(t, errors.Is(err, ErrManifestNotFound), "got %v", err)

	broken := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(filepath.Join(broken, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, ManifestRelPath), []byte("{not json"), 0o644))
	_, err = LoadProject(ctx, broken)
	assert.True(t, errors.Is(err, ErrManifestDecode), "got %v", err)
}

func TestParse_IgnoresMalformedNonModelNodes(t *testing.T) {
	ctx, _ := testutil.Context(t)

	manifest := `{"nodes": {
		"model.p.m": {"resource_type": "model", "name": "m", "columns": {"x": {"name": "x", "data_type": "int"}}},
		"test.p.t": {"resource_type": "test", "columns": {"y": {"data_type": 5}}},
		"seed.p.s": ["not", "an", "object"]
	}}`
	p, err := Parse(ctx, strings.NewReader(manifest), "p", "/x/p")
	require.NoError(t, err)
	assert.Equal(t, []string{"model.p.m"}, p.ModelIDs)

	badModel := `{"nodes": {"model.p.m": {"resource_type": "model", "name": "m", "columns": {"y": {"data_type": 5}}}}}`
	_, err = Parse(ctx, strings.NewReader(badModel), "p", "/x/p")
	assert.True(t, errors.Is(err, ErrManifestDecode), "got %v", err)
}

func TestParse_LegacyCompiledSQLAndMissingNodes(t *testing.T) {
	ctx, _ := testutil.Context(t)

	legacy := `{"nodes": {"model.p.m": {"resource_type": "model", "name": "m", "compiled_sql": "select 1", "columns": null}}}`
	p, err := Parse(ctx, strings.NewReader(legacy), "p", "/x/p")
	require.NoError(t, err)
	assert.Equal(t, "select 1", p.Models["model.p.m"].CompiledCode)

	_, err = Parse(ctx, strings.NewReader(`{"metadata": {}}`), "p", "/x/p")
	assert.True(t, errors.Is(err, ErrNoModels), "got %v", err)
}

func TestProjectName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/dbt/jaffle_shop", "jaffle_shop"},
		{"/data/dbt/jaffle_shop/", "jaffle_shop"},
		{"relative/analytics", "analytics"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectName(tt.path))
		})
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	testutil.WriteProject(t, root, "b_proj", testutil.Node{Name: "x"})
	testutil.WriteProject(t, root, "a_proj", testutil.Node{Name: "y"})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "not_compiled"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0o644))

	paths, err := Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a_proj"), filepath.Join(root, "b_proj")}, paths)

	_, err = Discover(filepath.Join(root, "missing"))
	assert.Error(t, err)
}
