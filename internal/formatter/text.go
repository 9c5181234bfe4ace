package formatter

import (
	"fmt"
	"io"

	"github.com/tordrt/dbtlineage/internal/export"
)

// TextFormatter formats the lineage as compact text
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes every model in compact text format
func (f *TextFormatter) Format(doc *export.Document) error {
	if len(doc.Nodes) == 0 {
		return ErrEmptyDocument
	}
	lin := newLineage(doc)
	for i, n := range doc.Nodes {
		if i > 0 {
			_, _ = fmt.Fprintln(f.writer) // Blank line between models
		}
		f.formatModel(doc, n, lin)
	}
	return nil
}

func (f *TextFormatter) formatModel(doc *export.Document, n export.Node, lin lineage) {
	_, _ = fmt.Fprintf(f.writer, "MODEL %s (project: %s)\n", n.ID, n.Project)
	if n.Description != "" {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", n.Description)
	}

	for _, row := range columnRows(doc, n) {
		_, _ = fmt.Fprintf(f.writer, "  %s\n", formatTextColumn(row))
	}

	if parents := lin.parents[n.ID]; len(parents) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  DEPENDS ON:")
		for _, p := range parents {
			_, _ = fmt.Fprintf(f.writer, "    ← %s\n", p)
		}
	}

	if children := lin.children[n.ID]; len(children) > 0 {
		_, _ = fmt.Fprintln(f.writer)
		_, _ = fmt.Fprintln(f.writer, "  REFERENCED BY:")
		for _, c := range children {
			_, _ = fmt.Fprintf(f.writer, "    → %s\n", c)
		}
	}
}

func formatTextColumn(row columnRow) string {
	if row.Description == "" {
		return row.Name + ": " + row.DataType
	}
	return row.Name + ": " + row.DataType + " -- " + row.Description
}
