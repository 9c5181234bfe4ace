// Package manifest loads dbt project manifests into schema.Project values.
//
// Each project root is expected to contain a compiled manifest at
// target/manifest.json. Only nodes whose resource_type is "model" are kept;
// tests, seeds, snapshots and the rest are ignored. Every kept model is given
// a globally unique name of the form "<project>.<model>" where the project
// name is the last component of the project root.
//
// Loading a set of projects never fails as a whole: a project whose manifest
// is missing or cannot be decoded is logged and skipped.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
	"github.com/tordrt/dbtlineage/internal/schema"
)

const (
	// ManifestRelPath is the manifest location relative to a project root.
	ManifestRelPath = "target/manifest.json"

	// ResourceTypeModel is the only resource_type the loader keeps.
	ResourceTypeModel = "model"
)

var (
	// ErrManifestNotFound is returned when a project root has no manifest.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrManifestDecode is returned when a manifest is not valid JSON of the expected shape.
	ErrManifestDecode = errors.New("manifest decode error")
	// ErrNoModels is returned when a manifest contains no model nodes.
	ErrNoModels = errors.New("manifest has no models")
)

type manifestFile struct {
	Nodes json.RawMessage `json:"nodes"`
}

type manifestNode struct {
	ResourceType string          `json:"resource_type"`
	Name         string          `json:"name"`
	Columns      *schema.Columns `json:"columns"`
	DependsOn    struct {
		Nodes []string `json:"nodes"`
	} `json:"depends_on"`
	CompiledCode string `json:"compiled_code"`
	// CompiledSQL is the pre-1.3 name of compiled_code
	CompiledSQL string `json:"compiled_sql"`
	Description string `json:"description"`
}

// LoadProjects loads every project in order and returns the ones that
// produced at least one model. Failures are logged and never abort the loop.
func LoadProjects(ctx context.Context, paths []string) []*schema.Project {
	logger := ctxlog.Component(ctx, "loader")

	projects := make([]*schema.Project, 0, len(paths))
	for _, path := range paths {
		project, err := LoadProject(ctx, path)
		switch {
		case errors.Is(err, ErrNoModels):
			logger.Info("skipping project without models", diag.AttrKey, path)
			continue
		case err != nil:
			logger.Warn("failed to load project", diag.AttrKey, path, "error", err)
			continue
		}

		logger.Debug("loaded project", diag.AttrKey, path, "project", project.Name, "models", len(project.ModelIDs))
		projects = append(projects, project)
	}

	logger.Info("projects loaded", "requested", len(paths), "loaded", len(projects))
	return projects
}

// LoadProject reads <path>/target/manifest.json and returns its models.
func LoadProject(ctx context.Context, path string) (*schema.Project, error) {
	manifestPath := filepath.Join(path, ManifestRelPath)

	f, err := os.Open(manifestPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrManifestNotFound, manifestPath)
		}
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Parse(ctx, f, ProjectName(path), path)
}

// Parse decodes a manifest and builds the project named projectName.
func Parse(ctx context.Context, r io.Reader, projectName, path string) (*schema.Project, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}

	project := schema.NewProject(projectName, path)
	if len(mf.Nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModels, path)
	}
	err = schema.DecodeOrdered(mf.Nodes, func(localID string, raw json.RawMessage) error {
		var kind struct {
			ResourceType string `json:"resource_type"`
		}
		if err := json.Unmarshal(raw, &kind); err != nil || kind.ResourceType != ResourceTypeModel {
			return nil
		}

		var node manifestNode
		if err := json.Unmarshal(raw, &node); err != nil {
			return fmt.Errorf("node %s: %w", localID, err)
		}
		project.AddModel(newModel(projectName, localID, &node))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestDecode, err)
	}

	if len(project.ModelIDs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoModels, path)
	}

	ctxlog.Component(ctx, "loader").Debug("parsed manifest", diag.AttrKey, path, "models", len(project.ModelIDs))
	return project, nil
}

func newModel(projectName, localID string, node *manifestNode) *schema.Model {
	columns := node.Columns
	if columns == nil {
		columns = schema.NewColumns()
	}
	code := node.CompiledCode
	if code == "" {
		code = node.CompiledSQL
	}

	return &schema.Model{
		LocalID:      localID,
		Name:         node.Name,
		UniqueName:   schema.UniqueName(projectName, node.Name),
		Project:      projectName,
		ResourceType: node.ResourceType,
		Columns:      columns,
		DependsOn:    node.DependsOn.Nodes,
		Description:  node.Description,
		CompiledCode: code,
	}
}

// ProjectName derives a project name from its root path.
func ProjectName(path string) string {
	return filepath.Base(filepath.Clean(path))
}
