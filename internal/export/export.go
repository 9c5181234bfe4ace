// Package export serialises the unified graph and the description index into
// the JSON artifact consumed by browsing and visualisation tools.
//
// The artifact contains no timestamps: two exports of the same input are
// byte-identical. Node and edge arrays follow the graph's insertion order.
package export

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/diag"
	"github.com/tordrt/dbtlineage/internal/enrich"
	"github.com/tordrt/dbtlineage/internal/graph"
	"github.com/tordrt/dbtlineage/internal/schema"
)

const (
	// GeneratedWith identifies the producer in Meta.
	GeneratedWith = "DBT Unified Schema Generator"
	// SchemaVersion is the artifact layout version.
	SchemaVersion = 1
)

var (
	// ErrUnsupportedVersion is returned when decoding an artifact newer than SchemaVersion.
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	// ErrHashMismatch is returned by Verify when content_hash does not match the content.
	ErrHashMismatch = errors.New("content hash mismatch")
)

// Meta describes the artifact.
type Meta struct {
	GeneratedWith string `json:"generated_with"`
	SchemaVersion int    `json:"schema_version"`
	NodeCount     int    `json:"node_count"`
	EdgeCount     int    `json:"edge_count"`
	ContentHash   string `json:"content_hash"`
}

// Node is one exported model.
type Node struct {
	ID           string          `json:"id"`
	Project      string          `json:"project"`
	Columns      *schema.Columns `json:"columns"`
	Description  string          `json:"description"`
	OriginalName string          `json:"original_name"`
}

// Edge is one exported dependency, parent to child.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Document is the full artifact.
type Document struct {
	Meta           Meta         `json:"meta"`
	Nodes          []Node       `json:"nodes"`
	Edges          []Edge       `json:"edges"`
	AIDescriptions enrich.Index `json:"ai_descriptions"`
}

// FromGraph snapshots g and index into a Document.
func FromGraph(g *graph.Graph, index enrich.Index) (*Document, error) {
	nodes := g.Nodes()
	edges := g.Edges()

	doc := &Document{
		Nodes:          make([]Node, 0, len(nodes)),
		Edges:          make([]Edge, 0, len(edges)),
		AIDescriptions: index,
	}
	if doc.AIDescriptions == nil {
		doc.AIDescriptions = enrich.Index{}
	}

	for _, n := range nodes {
		cols := n.Columns
		if cols == nil {
			cols = schema.NewColumns()
		}
		doc.Nodes = append(doc.Nodes, Node{
			ID:           n.ID,
			Project:      n.Project,
			Columns:      cols,
			Description:  n.Description,
			OriginalName: n.OriginalName,
		})
	}
	for _, e := range edges {
		doc.Edges = append(doc.Edges, Edge{Source: e.Source, Target: e.Target})
	}

	hash, err := ContentHash(doc)
	if err != nil {
		return nil, err
	}
	doc.Meta = Meta{
		GeneratedWith: GeneratedWith,
		SchemaVersion: SchemaVersion,
		NodeCount:     len(doc.Nodes),
		EdgeCount:     len(doc.Edges),
		ContentHash:   hash,
	}
	return doc, nil
}

// ContentHash is the hex SHA-256 of the compact JSON of nodes and edges.
// Meta and ai_descriptions are excluded.
func ContentHash(doc *Document) (string, error) {
	data, err := json.Marshal(struct {
		Nodes []Node `json:"nodes"`
		Edges []Edge `json:"edges"`
	}{doc.Nodes, doc.Edges})
	if err != nil {
		return "", fmt.Errorf("failed to serialize graph for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the content hash.
func (d *Document) Verify() error {
	hash, err := ContentHash(d)
	if err != nil {
		return err
	}
	if hash != d.Meta.ContentHash {
		return fmt.Errorf("%w: have %s, computed %s", ErrHashMismatch, d.Meta.ContentHash, hash)
	}
	return nil
}

// Graph rebuilds a graph from the document, for traversal by consumers.
func (d *Document) Graph() *graph.Graph {
	g := graph.New()
	for _, n := range d.Nodes {
		g.AddNode(graph.Node{
			ID:           n.ID,
			Project:      n.Project,
			Columns:      n.Columns,
			Description:  n.Description,
			OriginalName: n.OriginalName,
		})
	}
	for _, e := range d.Edges {
		g.AddEdge(e.Source, e.Target)
	}
	return g
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

// Decode reads an artifact previously produced by Encode.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Meta.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, doc.Meta.SchemaVersion)
	}
	for i := range doc.Nodes {
		if doc.Nodes[i].Columns == nil {
			doc.Nodes[i].Columns = schema.NewColumns()
		}
	}
	if doc.AIDescriptions == nil {
		doc.AIDescriptions = enrich.Index{}
	}
	return &doc, nil
}

// ReadFile decodes the artifact at path.
func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// WriteFile exports g and index to path and reports whether a file was
// written. An empty graph writes nothing. Failures are logged, never returned.
func WriteFile(ctx context.Context, g *graph.Graph, index enrich.Index, path string) bool {
	_, ok := Write(ctx, g, index, path)
	return ok
}

// Write is WriteFile that also returns the exported document.
func Write(ctx context.Context, g *graph.Graph, index enrich.Index, path string) (*Document, bool) {
	logger := ctxlog.Component(ctx, "export")

	if g.Len() == 0 {
		logger.Info("graph has no nodes, nothing to export", diag.AttrKey, path)
		return nil, false
	}

	doc, err := FromGraph(g, index)
	if err != nil {
		logger.Error("failed to build export document", diag.AttrKey, path, "error", err)
		return nil, false
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		logger.Error("failed to encode export", diag.AttrKey, path, "error", err)
		return nil, false
	}
	if err := writeFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		logger.Error("failed to write export", diag.AttrKey, path, "error", err)
		return nil, false
	}

	logger.Info("exported graph", diag.AttrKey, path, "nodes", doc.Meta.NodeCount, "edges", doc.Meta.EdgeCount)
	return doc, true
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Projects returns the distinct project names of the document, sorted.
func (d *Document) Projects() []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range d.Nodes {
		if !seen[n.Project] {
			seen[n.Project] = true
			out = append(out, n.Project)
		}
	}
	sort.Strings(out)
	return out
}

// Filter returns the nodes whose project is in projects (all when empty) and
// whose id or original name contains search, case-insensitively.
func (d *Document) Filter(projects []string, search string) []Node {
	allowed := make(map[string]bool, len(projects))
	for _, p := range projects {
		allowed[p] = true
	}
	search = strings.ToLower(search)

	var out []Node
	for _, n := range d.Nodes {
		if len(allowed) > 0 && !allowed[n.Project] {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.ID), search) &&
			!strings.Contains(strings.ToLower(n.OriginalName), search) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ColumnDescription returns the generated description of a column, falling
// back to the index when the column itself carries none.
func (d *Document) ColumnDescription(n Node, column string) string {
	if col, ok := n.Columns.Get(column); ok && col.AIDescription != "" {
		return col.AIDescription
	}
	return d.AIDescriptions[n.ID][column]
}
