package workflow

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tapflow/internal/join"
)

// CycleWarning reports a feedback loop in the join graph.
//
// Join cycles are warnings, not errors: loops that end through a switch or
// a batch limit are a normal way to write iteration.
type CycleWarning struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Level   string   `json:"level"`
}

// graph maps a node name to the node names it leads to.
type graph map[string][]string

func (g graph) edge(from, to string) {
	if g[to] == nil {
		g[to] = []string{}
	}
	g[from] = append(g[from], to)
}

// dependencyGraph links each node to the nodes it depends on.
func dependencyGraph(def *Definition) graph {
	g := make(graph)
	for _, n := range def.Nodes {
		if g[n.Name] == nil {
			g[n.Name] = []string{}
		}
		for _, dep := range n.DependsOn {
			if dep.Node == n.Name {
				continue // reported as ErrSelfDependency
			}
			g.edge(n.Name, dep.Node)
		}
	}
	return g
}

// joinGraph links each join source to the targets it enqueues.
func joinGraph(def *Definition) graph {
	g := make(graph)
	for _, jd := range def.Joins {
		kind, err := join.ParseKind(jd.Kind)
		if err != nil {
			continue
		}
		switch kind {
		case join.KindSequence:
			for i := 0; i+1 < len(jd.Nodes); i++ {
				g.edge(jd.Nodes[i], jd.Nodes[i+1])
			}
		case join.KindFork, join.KindSwitch:
			for _, t := range jd.Targets {
				g.edge(jd.Source, t)
			}
		case join.KindMerge, join.KindSyncMerge:
			for _, s := range jd.Sources {
				g.edge(s, jd.Target)
			}
		case join.KindGate:
			if jd.Target != "" {
				g.edge(jd.Source, jd.Target)
			}
		}
	}
	return g
}

// AnalyzeCycles reports loops in the join graph of def.
func AnalyzeCycles(def *Definition) []CycleWarning {
	var warnings []CycleWarning
	for _, path := range cycles(joinGraph(def)) {
		warnings = append(warnings, CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("feedback loop: %s", formatPath(path)),
			Level:   "warning",
		})
	}
	return warnings
}

// cycles returns one closed path per strongly connected component that is
// a cycle (more than one node, or a self loop), in a stable order.
func cycles(g graph) [][]string {
	var out [][]string
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || (len(scc) == 1 && slices.Contains(g[scc[0]], scc[0])) {
			out = append(out, cyclePath(scc, g))
		}
	}
	slices.SortFunc(out, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return out
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results do not depend on map order.
func tarjanSCC(g graph) [][]string {
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

		for _, w := range g[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

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
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks from the smallest member of scc back to itself through
// other members, preferring the first matching edge.
func cyclePath(scc []string, g graph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range g[current] {
			if w == start || (members[w] && !visited[w]) {
				next = w
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}

func formatPath(path []string) string {
	return strings.Join(path, " -> ")
}
