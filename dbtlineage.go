// Package dbtlineage aggregates dbt project manifests into one cross-project
// model dependency graph, optionally enriches every column with a generated
// description, and exports the result as a stable JSON artifact.
//
// Each project is a directory containing a compiled manifest at
// target/manifest.json. Models are identified globally as
// "<project>.<model>", where the project name is the last component of the
// project directory. Dependencies between projects are resolved by manifest
// node id.
//
// # Quick Start
//
// The simplest way to use this package is with Run:
//
//	result := dbtlineage.Run(
//		ctx,
//		[]string{"/data/dbt/sales", "/data/dbt/finance"},
//		&dbtlineage.Options{Output: "enhanced_schema.json"},
//	)
//	if !result.Written {
//		log.Println("nothing exported")
//	}
//
// # Description Generation
//
// Descriptions are produced by a describe.Describer. NewDescriber builds one
// for the Hugging Face Inference API or Gemini; a nil Describer skips the
// step. Failed generations never abort the run: the column receives a
// sentinel such as "API Error" instead.
//
// # Diagnostics
//
// Nothing in the pipeline returns an error for a single bad project, edge or
// column. Problems are reported as structured slog records carried by the
// context (see internal/ctxlog), each with a "component" attribute and, when
// there is an offending item, a "key" attribute.
package dbtlineage

import (
	"context"
	"fmt"
	"time"

	"github.com/tordrt/dbtlineage/internal/ctxlog"
	"github.com/tordrt/dbtlineage/internal/describe"
	"github.com/tordrt/dbtlineage/internal/enrich"
	"github.com/tordrt/dbtlineage/internal/export"
	"github.com/tordrt/dbtlineage/internal/graph"
	"github.com/tordrt/dbtlineage/internal/manifest"
	"github.com/tordrt/dbtlineage/internal/schema"
)

// Aggregator holds the state of one aggregation run.
//
// The zero value is ready to use. The steps are meant to be called in order
// (Load, Build, Enrich, Export) and each step only ever adds state: projects
// are loaded once, the graph is built once, and the description index only
// grows.
type Aggregator struct {
	// Projects are the successfully loaded projects, in load order.
	Projects []*schema.Project

	// Graph is the unified dependency graph. Nil until Build is called.
	Graph *graph.Graph

	// Index maps model unique name -> column name -> generated description.
	Index enrich.Index

	// Stats summarises the last enrichment pass.
	Stats enrich.Stats
}

// Options configures Run.
//
// All fields are optional. If not specified:
//   - Describer: nil skips description generation
//   - Enrich: basic context strategy, no progress callback
//   - Output: DefaultOutput
type Options struct {
	// Describer generates column descriptions.
	// Example: dbtlineage.NewDescriber(ctx, dbtlineage.DescriberOptions{...})
	Describer describe.Describer

	// Enrich configures the enrichment pass (context strategy, progress).
	Enrich enrich.Options

	// Output is the path of the JSON artifact.
	Output string
}

// DefaultOutput is the artifact path used when Options.Output is empty.
const DefaultOutput = "enhanced_schema.json"

// Result is what Run produced.
type Result struct {
	Aggregator *Aggregator

	// Document is the exported artifact, nil when nothing was written.
	Document *export.Document

	// Written reports whether the artifact file was written.
	Written bool
}

// Run loads the projects at paths, builds the graph, enriches it when the
// graph is not empty and a Describer is configured, and exports the result.
//
// Run never fails as a whole: unloadable projects, unresolvable references
// and failed generations are logged and skipped. An empty graph is a valid
// outcome; nothing is written and Result.Written is false.
//
// Cancelling ctx during enrichment stops scheduling new descriptions; the
// partial result is still exported.
//
// Example:
//
//	d, err := dbtlineage.NewDescriber(ctx, dbtlineage.DescriberOptions{
//		Backend: "huggingface",
//		APIKey:  os.Getenv("HF_API_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	result := dbtlineage.Run(ctx, paths, &dbtlineage.Options{
//		Describer: d,
//		Enrich:    enrich.Options{Strategy: enrich.StrategyCode},
//	})
func Run(ctx context.Context, paths []string, opts *Options) *Result {
	if opts == nil {
		opts = &Options{}
	}
	output := opts.Output
	if output == "" {
		output = DefaultOutput
	}

	a := &Aggregator{}
	a.Load(ctx, paths)
	a.Build(ctx)

	result := &Result{Aggregator: a}
	if a.Graph.Len() == 0 {
		ctxlog.Component(ctx, "pipeline").Info("no data to process, check project loading")
		return result
	}

	a.Enrich(ctx, opts.Describer, opts.Enrich)
	result.Document, result.Written = a.Export(ctx, output)
	return result
}

// Load reads every project manifest. Failures are logged and skipped.
func (a *Aggregator) Load(ctx context.Context, paths []string) {
	a.Projects = append(a.Projects, manifest.LoadProjects(ctx, paths)...)
}

// Build creates the unified graph from the loaded projects.
func (a *Aggregator) Build(ctx context.Context) {
	a.Graph = graph.Build(ctx, a.Projects)
}

// Enrich generates a description for every column. A nil describer is a no-op.
// Descriptions are merged into the existing index.
func (a *Aggregator) Enrich(ctx context.Context, d describe.Describer, opts enrich.Options) {
	index, stats := enrich.Enrich(ctx, a.Projects, d, opts)
	if a.Index == nil {
		a.Index = enrich.Index{}
	}
	for model, cols := range index {
		a.Index[model] = cols
	}
	a.Stats = stats
}

// Document snapshots the current graph and index.
func (a *Aggregator) Document() (*export.Document, error) {
	if a.Graph == nil {
		return nil, fmt.Errorf("graph has not been built")
	}
	return export.FromGraph(a.Graph, a.Index)
}

// Export writes the artifact to path. It reports false, after logging why,
// when the graph is empty or the file could not be written.
func (a *Aggregator) Export(ctx context.Context, path string) (*export.Document, bool) {
	g := a.Graph
	if g == nil {
		g = graph.New()
	}
	return export.Write(ctx, g, a.Index, path)
}

// DescriberOptions selects and configures a description backend.
type DescriberOptions struct {
	// Backend is "huggingface", "gemini" or "none".
	Backend string
	APIKey  string
	// Model overrides the backend's default model.
	Model string
	// Timeout bounds each call; zero means describe.DefaultTimeout.
	Timeout time.Duration
	// CacheSize > 0 wraps the describer in an LRU cache of that many entries.
	CacheSize int
}

// NewDescriber builds the describer for opts. Backend "none" (or empty)
// returns nil, which disables enrichment.
func NewDescriber(ctx context.Context, opts DescriberOptions) (describe.Describer, error) {
	var gen describe.Generator
	switch opts.Backend {
	case "", "none":
		return nil, nil
	case "huggingface":
		gen = describe.NewHuggingFace(opts.APIKey, opts.Model)
	case "gemini":
		g, err := describe.NewGemini(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		gen = g
	default:
		return nil, fmt.Errorf("unsupported describer backend: %s", opts.Backend)
	}

	var d describe.Describer = describe.New(gen, describe.Options{Timeout: opts.Timeout})
	if opts.CacheSize > 0 {
		cached, err := describe.NewCached(d, opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create description cache: %w", err)
		}
		d = cached
	}
	return d, nil
}

// ProjectPaths combines explicitly listed project directories with the
// projects discovered under dir (immediate subdirectories that contain a
// manifest). Explicit paths come first; duplicates are dropped.
func ProjectPaths(dir string, explicit []string) ([]string, error) {
	paths := make([]string, 0, len(explicit))
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, p := range explicit {
		add(p)
	}
	if dir != "" {
		found, err := manifest.Discover(dir)
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return paths, nil
}
