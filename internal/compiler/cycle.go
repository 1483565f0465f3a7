package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/flatten/internal/model"
)

// CycleWarning represents a cycle among entity types.
//
// Navigation cycles are warnings, not errors: a self-referencing
// navigation (Employee.Reports) is legal as long as every query nests it
// to a finite depth.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Post", "Comment", "Post"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

func (w CycleWarning) String() string {
	return strings.Join(w.Path, " -> ")
}

// AnalyzeNavigationCycles reports cycles in the navigation graph of m.
//
// The algorithm:
//  1. Build entity → navigation target graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeNavigationCycles(m *model.Model) []CycleWarning {
	graph := make(dependencyGraph)
	for _, t := range m.EntityTypes() {
		graph[t.Name] = []string{}
		for _, nav := range t.Navigations {
			graph[t.Name] = append(graph[t.Name], nav.Target().Name)
		}
	}

	warnings := findCycles(graph)
	for i := range warnings {
		warnings[i].Message = fmt.Sprintf("recursive navigation %s: nested selects must stop at a finite depth", warnings[i])
	}
	return warnings
}

// dependencyGraph maps a node to the nodes it points at.
type dependencyGraph map[string][]string

// findCycles returns one warning per cycle, in deterministic order.
func findCycles(graph dependencyGraph) []CycleWarning {
	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			path := reconstructCyclePath(scc, graph)
			warnings = append(warnings, CycleWarning{
				Path:    path,
				Message: fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> ")),
				Level:   "warning",
			})
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath builds a cycle path from an SCC, starting at its
// smallest member and following edges within the SCC back to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
