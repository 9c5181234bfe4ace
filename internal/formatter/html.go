package formatter

import (
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/tordrt/dbtlineage/internal/export"
)

// VisNetworkURL is the vis-network bundle the page loads.
const VisNetworkURL = "https://unpkg.com/vis-network@9.1.9/standalone/umd/vis-network.min.js"

var projectColors = []string{"#FF5733", "#33FF57", "#3357FF", "#FF33A8", "#A833FF", "#33FFF5"}

const nodeSize = 25

// HTMLFormatter renders the lineage as a vis-network page. The page loads the
// library from VisNetworkURL, so viewing it needs network access.
type HTMLFormatter struct {
	writer io.Writer

	Title string
	// Projects restricts the page to these projects; empty means all.
	Projects []string
	// Search keeps models whose id or name contains it.
	Search string
}

// NewHTMLFormatter creates a new HTML formatter
func NewHTMLFormatter(w io.Writer) *HTMLFormatter {
	return &HTMLFormatter{writer: w, Title: "Lineage Graph"}
}

type visNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Title string `json:"title"`
	Color string `json:"color"`
	Size  int    `json:"size"`
	Group string `json:"group"`
}

type visEdge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Arrows string `json:"arrows"`
}

type legendEntry struct {
	Project string
	Color   string
}

type htmlPage struct {
	Title     string
	ScriptURL string
	Legend    []legendEntry
	Nodes     []visNode
	Edges     []visEdge
}

// Format writes the HTML page
func (f *HTMLFormatter) Format(doc *export.Document) error {
	nodes := doc.Filter(f.Projects, f.Search)
	if len(nodes) == 0 {
		return ErrEmptyDocument
	}

	colors := make(map[string]string)
	page := htmlPage{Title: f.Title, ScriptURL: VisNetworkURL, Edges: []visEdge{}}
	for i, p := range doc.Projects() {
		colors[p] = projectColors[i%len(projectColors)]
	}

	visible := make(map[string]bool, len(nodes))
	seenProject := make(map[string]bool)
	for _, n := range nodes {
		visible[n.ID] = true
		if !seenProject[n.Project] {
			seenProject[n.Project] = true
			page.Legend = append(page.Legend, legendEntry{Project: n.Project, Color: colors[n.Project]})
		}
		page.Nodes = append(page.Nodes, visNode{
			ID:    n.ID,
			Label: n.Project + "." + n.OriginalName,
			Title: "Columns: " + strconv.Itoa(n.Columns.Len()) + "\n" + n.Description,
			Color: colors[n.Project],
			Size:  nodeSize,
			Group: n.Project,
		})
	}
	for _, e := range doc.Edges {
		if visible[e.Source] && visible[e.Target] {
			page.Edges = append(page.Edges, visEdge{From: e.Source, To: e.Target, Arrows: "to"})
		}
	}

	if err := htmlTemplate.Execute(f.writer, page); err != nil {
		return fmt.Errorf("failed to render html: %w", err)
	}
	return nil
}

var htmlTemplate = template.Must(template.New("lineage").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.ScriptURL}}"></script>
<style>
  body { font-family: sans-serif; margin: 0; }
  #legend { padding: 8px 16px; }
  #legend span { display: inline-block; margin-right: 12px; }
  #legend i { display: inline-block; width: 12px; height: 12px; margin-right: 4px; border: 1px solid #222; }
  #lineage { width: 100%; height: 800px; border-top: 1px solid #ddd; }
</style>
</head>
<body>
<div id="legend">{{range .Legend}}<span><i style="background: {{.Color}}"></i>{{.Project}}</span>{{end}}</div>
<div id="lineage"></div>
<script>
  var nodes = new vis.DataSet({{.Nodes}});
  var edges = new vis.DataSet({{.Edges}});
  var options = {
    nodes: { borderWidth: 2, shape: "dot", color: { border: "#222222" }, font: { size: 16 } },
    edges: { color: { color: "#888888" }, smooth: { enabled: true, type: "continuous" } },
    physics: { barnesHut: { gravitationalConstant: -5000, springLength: 150, damping: 0.85 }, minVelocity: 0.75 }
  };
  new vis.Network(document.getElementById("lineage"), { nodes: nodes, edges: edges }, options);
</script>
</body>
</html>
`))
