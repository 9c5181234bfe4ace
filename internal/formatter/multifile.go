package formatter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tordrt/dbtlineage/internal/export"
)

// MultiFileFormatter writes the lineage to multiple files in a directory
type MultiFileFormatter struct {
	OutputDir    string
	OutputFormat string // "text" or "markdown"
}

// NewMultiFileFormatter creates a new multi-file formatter
func NewMultiFileFormatter(outputDir, format string) *MultiFileFormatter {
	return &MultiFileFormatter{
		OutputDir:    outputDir,
		OutputFormat: format,
	}
}

// Format writes an overview file plus one file per model
func (f *MultiFileFormatter) Format(doc *export.Document) error {
	if len(doc.Nodes) == 0 {
		return ErrEmptyDocument
	}

	// Create output directory if it doesn't exist
	if err := os.MkdirAll(f.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	lin := newLineage(doc)
	if err := f.writeOverview(doc, lin); err != nil {
		return fmt.Errorf("failed to write overview: %w", err)
	}

	for _, n := range doc.Nodes {
		if err := f.writeModelFile(doc, n, lin); err != nil {
			return fmt.Errorf("failed to write model file for %s: %w", n.ID, err)
		}
	}

	return nil
}

// FileName returns the file a model is written to, relative to OutputDir
func (f *MultiFileFormatter) FileName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(id) + f.getFileExtension()
}

func (f *MultiFileFormatter) writeOverview(doc *export.Document, lin lineage) error {
	filename := filepath.Join(f.OutputDir, "_overview"+f.getFileExtension())

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	// Sort models alphabetically
	sorted := make([]export.Node, len(doc.Nodes))
	copy(sorted, doc.Nodes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	if f.OutputFormat == FormatMarkdown {
		_, _ = fmt.Fprintf(file, "# Lineage Overview\n\n")
		_, _ = fmt.Fprintf(file, "Each model has a corresponding file: `<project>.<model>%s`\n\n", f.getFileExtension())
		for _, project := range doc.Projects() {
			_, _ = fmt.Fprintf(file, "## %s\n\n", project)
			for _, n := range sorted {
				if n.Project != project {
					continue
				}
				_, _ = fmt.Fprintf(file, "- **%s**", n.ID)
				writeDependsOn(file, lin.parents[n.ID], ", ")
				_, _ = fmt.Fprintf(file, "\n")
			}
			_, _ = fmt.Fprintf(file, "\n")
		}
		return nil
	}

	_, _ = fmt.Fprintf(file, "LINEAGE OVERVIEW\n")
	_, _ = fmt.Fprintf(file, "Each model has a file: <project>.<model>%s\n\n", f.getFileExtension())
	for _, n := range sorted {
		_, _ = fmt.Fprintf(file, "%s", n.ID)
		writeDependsOn(file, lin.parents[n.ID], ",")
		_, _ = fmt.Fprintf(file, "\n")
	}
	return nil
}

func writeDependsOn(w io.Writer, parents []string, sep string) {
	if len(parents) > 0 {
		_, _ = fmt.Fprintf(w, " (depends on: %s)", strings.Join(parents, sep))
	}
}

// writeModelFile writes a single model to its own file
func (f *MultiFileFormatter) writeModelFile(doc *export.Document, n export.Node, lin lineage) error {
	file, err := os.Create(filepath.Join(f.OutputDir, f.FileName(n.ID)))
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if f.OutputFormat == FormatMarkdown {
		NewMarkdownFormatter(file).formatModel(doc, n, lin)
		return nil
	}
	NewTextFormatter(file).formatModel(doc, n, lin)
	return nil
}

func (f *MultiFileFormatter) getFileExtension() string {
	if f.OutputFormat == FormatMarkdown {
		return ".md"
	}
	return ".txt"
}
