package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tordrt/dbtlineage/internal/export"
	"github.com/tordrt/dbtlineage/internal/graph"
)

// LineageTools holds the document the tool handlers read from.
type LineageTools struct {
	doc   *export.Document
	graph *graph.Graph
	byID  map[string]export.Node
}

// NewLineageTools indexes doc for lookups and traversals.
func NewLineageTools(doc *export.Document) *LineageTools {
	byID := make(map[string]export.Node, len(doc.Nodes))
	for _, n := range doc.Nodes {
		byID[n.ID] = n
	}
	return &LineageTools{doc: doc, graph: doc.Graph(), byID: byID}
}

// --- Input types ---

type ListModelsInput struct {
	Projects []string `json:"projects,omitempty" jsonschema:"Only include models from these projects"`
	Search   string   `json:"search,omitempty" jsonschema:"Case-insensitive substring of the model id or name"`
}

type GetModelInput struct {
	ID string `json:"id" jsonschema:"Model unique name, <project>.<model>"`
}

type GetLineageInput struct {
	ID        string `json:"id" jsonschema:"Model unique name, <project>.<model>"`
	Direction string `json:"direction,omitempty" jsonschema:"upstream, downstream or both (default both)"`
}

// --- Output types ---

type ProjectSummary struct {
	Name   string `json:"name"`
	Models int    `json:"models"`
}

type ModelSummary struct {
	ID           string `json:"id"`
	Project      string `json:"project"`
	OriginalName string `json:"original_name"`
	Columns      int    `json:"columns"`
}

type ColumnDetail struct {
	Name          string `json:"name"`
	DataType      string `json:"data_type,omitempty"`
	AIDescription string `json:"ai_description,omitempty"`
}

type ModelDetail struct {
	ID           string         `json:"id"`
	Project      string         `json:"project"`
	OriginalName string         `json:"original_name"`
	Description  string         `json:"description,omitempty"`
	Columns      []ColumnDetail `json:"columns"`
	Parents      []string       `json:"parents"`
	Children     []string       `json:"children"`
}

type Lineage struct {
	ID         string   `json:"id"`
	Upstream   []string `json:"upstream,omitempty"`
	Downstream []string `json:"downstream,omitempty"`
}

// --- Handlers ---

func (t *LineageTools) ListProjects(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	counts := make(map[string]int)
	for _, n := range t.doc.Nodes {
		counts[n.Project]++
	}
	projects := make([]ProjectSummary, 0, len(counts))
	for _, name := range t.doc.Projects() {
		projects = append(projects, ProjectSummary{Name: name, Models: counts[name]})
	}
	return toolJSON(projects)
}

func (t *LineageTools) ListModels(_ context.Context, _ *mcp.CallToolRequest, input ListModelsInput) (*mcp.CallToolResult, any, error) {
	nodes := t.doc.Filter(input.Projects, input.Search)
	models := make([]ModelSummary, 0, len(nodes))
	for _, n := range nodes {
		models = append(models, ModelSummary{
			ID:           n.ID,
			Project:      n.Project,
			OriginalName: n.OriginalName,
			Columns:      n.Columns.Len(),
		})
	}
	return toolJSON(models)
}

func (t *LineageTools) GetModel(_ context.Context, _ *mcp.CallToolRequest, input GetModelInput) (*mcp.CallToolResult, any, error) {
	n, ok := t.byID[input.ID]
	if !ok {
		return toolError("Model not found: %s", input.ID), nil, nil
	}

	detail := ModelDetail{
		ID:           n.ID,
		Project:      n.Project,
		OriginalName: n.OriginalName,
		Description:  n.Description,
		Columns:      make([]ColumnDetail, 0, n.Columns.Len()),
		Parents:      nonNil(t.graph.Parents(n.ID)),
		Children:     nonNil(t.graph.Children(n.ID)),
	}
	for _, name := range n.Columns.Names() {
		col, _ := n.Columns.Get(name)
		detail.Columns = append(detail.Columns, ColumnDetail{
			Name:          name,
			DataType:      col.DataType,
			AIDescription: t.doc.ColumnDescription(n, name),
		})
	}
	return toolJSON(detail)
}

func (t *LineageTools) GetLineage(_ context.Context, _ *mcp.CallToolRequest, input GetLineageInput) (*mcp.CallToolResult, any, error) {
	if _, ok := t.byID[input.ID]; !ok {
		return toolError("Model not found: %s", input.ID), nil, nil
	}

	out := Lineage{ID: input.ID}
	switch input.Direction {
	case "", "both":
		out.Upstream = t.graph.Upstream(input.ID)
		out.Downstream = t.graph.Downstream(input.ID)
	case "upstream":
		out.Upstream = t.graph.Upstream(input.ID)
	case "downstream":
		out.Downstream = t.graph.Downstream(input.ID)
	default:
		return toolError("Unknown direction: %s (use upstream, downstream or both)", input.Direction), nil, nil
	}
	return toolJSON(out)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
