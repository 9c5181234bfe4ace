// Package testutil builds dbt manifest fixtures for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
)

// Column is a name/type pair.
type Column struct {
	Name string
	Type string
}

// Node describes one manifest node.
type Node struct {
	// LocalID defaults to "<resource_type>.<project>.<name>"
	LocalID      string
	ResourceType string // defaults to "model"
	Name         string
	Columns      []Column
	DependsOn    []string
	CompiledCode string
	Description  string
}

// ID returns the local id the node will be written under.
func (n Node) ID(project string) string {
	if n.LocalID != "" {
		return n.LocalID
	}
	return n.resourceType() + "." + project + "." + n.Name
}

func (n Node) resourceType() string {
	if n.ResourceType == "" {
		return "model"
	}
	return n.ResourceType
}

// ManifestJSON renders a manifest whose nodes keep the given order.
func ManifestJSON(t testing.TB, project string, nodes ...Node) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString(`{"metadata":{"dbt_version":"1.7.0"},"nodes":{`)
	for i, n := range nodes {
		if i > 0 {
			buf.WriteByte(',')
		}

		var cols bytes.Buffer
		cols.WriteByte('{')
		for j, c := range n.Columns {
			if j > 0 {
				cols.WriteByte(',')
			}
			entry, err := json.Marshal(map[string]any{"name": c.Name, "data_type": c.Type, "description": ""})
			require.NoError(t, err)
			key, _ := json.Marshal(c.Name)
			cols.Write(key)
			cols.WriteByte(':')
			cols.Write(entry)
		}
		cols.WriteByte('}')

		deps := n.DependsOn
		if deps == nil {
			deps = []string{}
		}
		body, err := json.Marshal(map[string]any{
			"resource_type": n.resourceType(),
			"name":          n.Name,
			"unique_id":     n.ID(project),
			"columns":       json.RawMessage(cols.Bytes()),
			"depends_on":    map[string]any{"nodes": deps, "macros": []string{}},
			"compiled_code": n.CompiledCode,
			"description":   n.Description,
		})
		require.NoError(t, err)

		key, _ := json.Marshal(n.ID(project))
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString(`},"sources":{}}`)
	return buf.Bytes()
}

// WriteProject creates <root>/<project>/target/manifest.json and returns the project root.
func WriteProject(t testing.TB, root, project string, nodes ...Node) string {
	t.Helper()

	dir := filepath.Join(root, project)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "target"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target", "manifest.json"), ManifestJSON(t, project, nodes...), 0o644))
	return dir
}

// Context returns a context whose logger records every diagnostic.
func Context(t testing.TB) (context.Context, *diag.Recorder) {
	t.Helper()
	rec := diag.NewRecorder(slog.LevelDebug, nil)
	return ctxlog.WithLogger(context.Background(), rec.Logger()), rec
}
