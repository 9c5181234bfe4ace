package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/tordrt/dbtlineage/internal/export"
)

// MarkdownFormatter formats the lineage as markdown
type MarkdownFormatter struct {
	writer io.Writer
}

// NewMarkdownFormatter creates a new markdown formatter
func NewMarkdownFormatter(w io.Writer) *MarkdownFormatter {
	return &MarkdownFormatter{writer: w}
}

// Format writes every model in markdown format
func (f *MarkdownFormatter) Format(doc *export.Document) error {
	if len(doc.Nodes) == 0 {
		return ErrEmptyDocument
	}
	_, _ = fmt.Fprintln(f.writer, "# Model Lineage")
	_, _ = fmt.Fprintln(f.writer)

	lin := newLineage(doc)
	for _, n := range doc.Nodes {
		f.formatModel(doc, n, lin)
	}
	return nil
}

func (f *MarkdownFormatter) formatModel(doc *export.Document, n export.Node, lin lineage) {
	_, _ = fmt.Fprintf(f.writer, "## %s\n\n", n.ID)
	_, _ = fmt.Fprintf(f.writer, "**Project:** %s\n\n", n.Project)
	if n.Description != "" {
		_, _ = fmt.Fprintf(f.writer, "%s\n\n", n.Description)
	}

	f.FormatColumns(doc, n)
	f.FormatDependencies("Depends on", lin.parents[n.ID])
	f.FormatDependencies("Referenced by", lin.children[n.ID])
}

// FormatColumns writes the column list of n (exported for use by multifile formatter)
func (f *MarkdownFormatter) FormatColumns(doc *export.Document, n export.Node) {
	rows := columnRows(doc, n)
	_, _ = fmt.Fprintln(f.writer, "### Columns")
	_, _ = fmt.Fprintln(f.writer)
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(f.writer, "No column information available.")
		_, _ = fmt.Fprintln(f.writer)
		return
	}
	for _, row := range rows {
		if row.Description != "" {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s, %s\n", row.Name, row.DataType, escapeInline(row.Description))
		} else {
			_, _ = fmt.Fprintf(f.writer, "- **%s:** %s\n", row.Name, row.DataType)
		}
	}
	_, _ = fmt.Fprintln(f.writer)
}

// FormatDependencies writes a titled list of model ids, or nothing when ids is empty
func (f *MarkdownFormatter) FormatDependencies(title string, ids []string) {
	if len(ids) == 0 {
		return
	}
	_, _ = fmt.Fprintf(f.writer, "### %s\n\n", title)
	for _, id := range ids {
		_, _ = fmt.Fprintf(f.writer, "- %s\n", id)
	}
	_, _ = fmt.Fprintln(f.writer)
}

func escapeInline(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
}
