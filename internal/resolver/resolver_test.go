package resolver

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tordrt/dbtlineage/internal/schema"
	"github.com/tordrt/dbtlineage/internal/testutil"
)

func project(name string, models ...string) *schema.Project {
	p := schema.NewProject(name, "/projects/"+name)
	for _, m := range models {
		p.AddModel(&schema.Model{
			LocalID:    "model." + name + "." + m,
			Name:       m,
			UniqueName: schema.UniqueName(name, m),
			Project:    name,
		})
	}
	return p
}

func TestResolve(t *testing.T) {
	ctx, rec := testutil.Context(t)
	r := New([]*schema.Project{project("proj_a", "orders"), project("proj_b", "customers")})

	tests := []struct {
		name   string
		ref    string
		want   string
		wantOK bool
	}{
		{name: "same project", ref: "model.proj_a.orders", want: "proj_a.orders", wantOK: true},
		{name: "other project", ref: "model.proj_b.customers", want: "proj_b.customers", wantOK: true},
		{name: "source reference", ref: "source.proj_a.raw.orders", wantOK: false},
		{name: "empty reference", ref: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(ctx, tt.ref)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	misses := rec.Filter("resolver", slog.LevelDebug)
	if assert.Len(t, misses, 2) {
		assert.Equal(t, "source.proj_a.raw.orders", misses[0].Key)
	}
}

func TestResolve_FirstProjectWins(t *testing.T) {
	ctx, _ := testutil.Context(t)

	first := schema.NewProject("first", "/p/first")
	first.AddModel(&schema.Model{LocalID: "model.shared.dim", Name: "dim", UniqueName: "first.dim"})
	second := schema.NewProject("second", "/p/second")
	second.AddModel(&schema.Model{LocalID: "model.shared.dim", Name: "dim", UniqueName: "second.dim"})

	r := New([]*schema.Project{first, second})
	got, ok := r.Resolve(ctx, "model.shared.dim")

	assert.True(t, ok)
	assert.Equal(t, "first.dim", got)
	assert.Equal(t, 1, r.Len())
}

func TestResolve_NoProjects(t *testing.T) {
	ctx, _ := testutil.Context(t)
	_, ok := New(nil).Resolve(ctx, "model.a.b")
	assert.False(t, ok)
}
