// Package graph holds the unified model dependency graph.
//
// Nodes are keyed by model unique name and edges point from the depended-upon
// model (parent) to the dependent model (child). Both nodes and edges keep
// insertion order so that serialising the same input twice yields identical
// output. Nothing in this package rejects cycles; traversals track visited
// nodes and terminate on cyclic input.
package graph

import (
	"sync"

	"github.com/tordrt/dbtlineage/internal/schema"
)

// Node is a model vertex and its attributes.
type Node struct {
	ID      string
	Project string
	// Columns is shared with the source model, so column enrichment is
	// visible through the graph without copying.
	Columns      *schema.Columns
	Description  string
	OriginalName string
}

// Edge is a directed parent -> child dependency.
type Edge struct {
	Source string
	Target string
}

// Graph is a directed graph safe for concurrent use.
type Graph struct {
	mu sync.RWMutex

	order    []string
	nodes    map[string]*Node
	edges    []Edge
	edgeSet  map[Edge]struct{}
	parents  map[string][]string
	children map[string][]string

	collisions []string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		edgeSet:  make(map[Edge]struct{}),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
}

// AddNode inserts n, or overwrites the attributes of an existing node with the
// same ID while keeping its position. It reports whether a node was replaced.
func (g *Graph) AddNode(n Node) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := n
	if existing, ok := g.nodes[n.ID]; ok {
		*existing = node
		g.collisions = append(g.collisions, n.ID)
		return true
	}
	g.nodes[n.ID] = &node
	g.order = append(g.order, n.ID)
	return false
}

// AddEdge adds source -> target. Edges whose endpoints are not both present,
// and edges already in the graph, are ignored. It reports whether an edge was added.
func (g *Graph) AddEdge(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[source]; !ok {
		return false
	}
	if _, ok := g.nodes[target]; !ok {
		return false
	}

	e := Edge{Source: source, Target: target}
	if _, dup := g.edgeSet[e]; dup {
		return false
	}
	g.edgeSet[e] = struct{}{}
	g.edges = append(g.edges, e)
	g.children[source] = append(g.children[source], target)
	g.parents[target] = append(g.parents[target], source)
	return true
}

// Node returns a copy of the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Parents returns the direct parents of id.
func (g *Graph) Parents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.parents[id]...)
}

// Children returns the direct children of id.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.children[id]...)
}

// Upstream returns every transitive parent of id in breadth-first order.
func (g *Graph) Upstream(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return walk(id, g.parents)
}

// Downstream returns every transitive child of id in breadth-first order.
func (g *Graph) Downstream(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return walk(id, g.children)
}

// Collisions lists node IDs that were added more than once, once per overwrite.
func (g *Graph) Collisions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.collisions...)
}

func walk(start string, next map[string][]string) []string {
	visited := map[string]bool{start: true}
	queue := []string{start}
	var out []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if visited[n] {
				continue
			}
			visited[n] = true
			out = append(out, n)
			queue = append(queue, n)
		}
	}
	return out
}
