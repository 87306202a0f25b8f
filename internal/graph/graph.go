// Package graph models the tracking relationships between local branches.
//
// Nodes are branch names and an edge upstream -> downstream exists when the
// downstream branch tracks the upstream one. Tracking configuration is user
// controlled, so the graph may contain cycles; every traversal is bounded by a
// visited set.
package graph

import (
	"sort"
)

// BranchGraph is an adjacency map from upstream branch to its downstreams
type BranchGraph struct {
	downstreams map[string][]string
	upstreams   map[string]string
	order       []string
	depths      map[string]int
	loaded      bool
}

// New creates an empty graph
func New() *BranchGraph {
	return &BranchGraph{
		downstreams: make(map[string][]string),
		upstreams:   make(map[string]string),
		depths:      make(map[string]int),
	}
}

// AddNodes records upstream -> downstream edges. Upstreams are added in sorted
// order; the order of each downstream list is preserved.
func (g *BranchGraph) AddNodes(edges map[string][]string) *BranchGraph {
	upstreams := make([]string, 0, len(edges))
	for upstream := range edges {
		upstreams = append(upstreams, upstream)
	}
	sort.Strings(upstreams)
	for _, upstream := range upstreams {
		g.AddEdges(upstream, edges[upstream]...)
	}
	return g
}

// AddEdges records edges from upstream to each downstream, in order
func (g *BranchGraph) AddEdges(upstream string, downstreams ...string) *BranchGraph {
	g.addNode(upstream)
	for _, d := range downstreams {
		g.addNode(d)
		if contains(g.downstreams[upstream], d) {
			continue
		}
		g.downstreams[upstream] = append(g.downstreams[upstream], d)
		if _, ok := g.upstreams[d]; !ok {
			g.upstreams[d] = upstream
		}
	}
	g.loaded = false
	return g
}

func (g *BranchGraph) addNode(name string) {
	if _, ok := g.depths[name]; ok {
		return
	}
	g.depths[name] = -1
	g.order = append(g.order, name)
}

// Load computes the depth of every node from its root ancestors. Roots (nodes
// without an upstream) have depth 0. Nodes reachable only through a cycle keep
// depth -1.
func (g *BranchGraph) Load() *BranchGraph {
	for name := range g.depths {
		g.depths[name] = -1
	}

	queue := g.Roots()
	for _, root := range queue {
		g.depths[root] = 0
	}
	visited := make(map[string]bool, len(g.depths))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if visited[node] {
			continue
		}
		visited[node] = true
		for _, child := range g.downstreams[node] {
			if visited[child] {
				continue
			}
			if d := g.depths[child]; d == -1 || d > g.depths[node]+1 {
				g.depths[child] = g.depths[node] + 1
			}
			queue = append(queue, child)
		}
	}
	g.loaded = true
	return g
}

// Downstreams returns the branches tracking name, in insertion order
func (g *BranchGraph) Downstreams(name string) []string {
	return append([]string{}, g.downstreams[name]...)
}

// Upstream returns the branch name tracks, if it is part of the graph
func (g *BranchGraph) Upstream(name string) (string, bool) {
	u, ok := g.upstreams[name]
	return u, ok
}

// Depth returns the distance of name from its root, or -1 when unknown or
// only reachable through a cycle
func (g *BranchGraph) Depth(name string) int {
	if !g.loaded {
		g.Load()
	}
	d, ok := g.depths[name]
	if !ok {
		return -1
	}
	return d
}

// Has reports whether name is a node of the graph
func (g *BranchGraph) Has(name string) bool {
	_, ok := g.depths[name]
	return ok
}

// Nodes returns every node in insertion order
func (g *BranchGraph) Nodes() []string {
	return append([]string{}, g.order...)
}

// Roots returns the nodes without an upstream, in insertion order
func (g *BranchGraph) Roots() []string {
	var roots []string
	for _, name := range g.order {
		if _, ok := g.upstreams[name]; !ok {
			roots = append(roots, name)
		}
	}
	return roots
}

// Descendants returns the transitive downstream closure of name in
// breadth-first order, excluding name itself
func (g *BranchGraph) Descendants(name string) []string {
	visited := map[string]bool{name: true}
	var result []string
	level := []string{name}
	for len(level) > 0 {
		var next []string
		for _, node := range level {
			for _, child := range g.downstreams[node] {
				if visited[child] {
					continue
				}
				visited[child] = true
				result = append(result, child)
				next = append(next, child)
			}
		}
		level = next
	}
	return result
}

func contains(slice []string, value string) bool {
	for _, v := range slice {
		if v == value {
			return true
		}
	}
	return false
}
