// Package formatter renders an exported lineage document as human readable
// documentation (text, markdown, one file per model) or as an interactive
// HTML graph. Everything is derived from the document alone.
package formatter

import (
	"errors"
	"fmt"
	"io"

	"github.com/tordrt/dbtlineage/internal/export"
)

const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

// ErrEmptyDocument is returned when there are no models to render.
var ErrEmptyDocument = errors.New("nothing to render: document has no models")

// Formatter renders a document.
type Formatter interface {
	Format(doc *export.Document) error
}

// New returns the single-stream formatter for format.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case FormatText, "":
		return NewTextFormatter(w), nil
	case FormatMarkdown:
		return NewMarkdownFormatter(w), nil
	case FormatHTML:
		return NewHTMLFormatter(w), nil
	}
	return nil, fmt.Errorf("unsupported format: %s (use 'text', 'markdown' or 'html')", format)
}

// lineage indexes direct parents and children per node id, in edge order.
type lineage struct {
	parents  map[string][]string
	children map[string][]string
}

func newLineage(doc *export.Document) lineage {
	l := lineage{parents: map[string][]string{}, children: map[string][]string{}}
	for _, e := range doc.Edges {
		l.children[e.Source] = append(l.children[e.Source], e.Target)
		l.parents[e.Target] = append(l.parents[e.Target], e.Source)
	}
	return l
}

// columnRow is one rendered column.
type columnRow struct {
	Name        string
	DataType    string
	Description string
}

func columnRows(doc *export.Document, n export.Node) []columnRow {
	names := n.Columns.Names()
	rows := make([]columnRow, 0, len(names))
	for _, name := range names {
		col, _ := n.Columns.Get(name)
		dt := col.DataType
		if dt == "" {
			dt = "unknown"
		}
		rows = append(rows, columnRow{Name: name, DataType: dt, Description: doc.ColumnDescription(n, name)})
	}
	return rows
}
