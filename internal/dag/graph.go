// Package dag builds immutable task graphs from declarative task definitions
package dag

import (
	"container/heap"

	etlerrors "github.com/maxkimambo/energy-etl/internal/errors"
)

// Graph is a validated, read-only task graph. All lookups are served from
// adjacency precomputed by Build.
type Graph struct {
	tasks      map[string]*TaskDefinition
	order      []string // declaration order
	index      map[string]int
	upstream   map[string][]string
	downstream map[string][]string
	topo       []string
}

// Build validates the definitions and returns the graph. It rejects duplicate
// ids, upstream references to undeclared tasks and cycles. Definitions are
// copied; later changes by the caller do not affect the graph.
func Build(defs []TaskDefinition) (*Graph, error) {
	g := &Graph{
		tasks:      make(map[string]*TaskDefinition, len(defs)),
		order:      make([]string, 0, len(defs)),
		index:      make(map[string]int, len(defs)),
		upstream:   make(map[string][]string, len(defs)),
		downstream: make(map[string][]string, len(defs)),
	}

	for i := range defs {
		def := defs[i]
		if def.ID == "" {
			return nil, etlerrors.NewInvalidConfigError("<empty>", "task id cannot be empty")
		}
		if _, exists := g.tasks[def.ID]; exists {
			return nil, etlerrors.NewDuplicateIDError(def.ID)
		}
		def.Upstream = dedupe(def.Upstream)
		g.tasks[def.ID] = &def
		g.index[def.ID] = len(g.order)
		g.order = append(g.order, def.ID)
	}

	for _, id := range g.order {
		def := g.tasks[id]
		for _, up := range def.Upstream {
			if _, ok := g.tasks[up]; !ok {
				return nil, etlerrors.NewUnknownUpstreamError(id, up)
			}
			g.upstream[id] = append(g.upstream[id], up)
			g.downstream[up] = append(g.downstream[up], id)
		}
	}

	topo, err := g.sort()
	if err != nil {
		return nil, err
	}
	g.topo = topo
	return g, nil
}

// sort runs Kahn's algorithm, always releasing the earliest declared ready
// task first so the order is deterministic.
func (g *Graph) sort() ([]string, error) {
	indegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.upstream[id])
	}

	ready := &indexHeap{}
	for _, id := range g.order {
		if indegree[id] == 0 {
			heap.Push(ready, g.index[id])
		}
	}

	topo := make([]string, 0, len(g.order))
	for ready.Len() > 0 {
		id := g.order[heap.Pop(ready).(int)]
		topo = append(topo, id)
		for _, down := range g.downstream[id] {
			indegree[down]--
			if indegree[down] == 0 {
				heap.Push(ready, g.index[down])
			}
		}
	}

	if len(topo) == len(g.order) {
		return topo, nil
	}

	remaining := make(map[string]bool)
	for id, deg := range indegree {
		if deg > 0 {
			remaining[id] = true
		}
	}
	return nil, etlerrors.NewCycleError(g.findCycle(remaining))
}

// findCycle walks upstream edges inside the unsorted remainder until a task
// repeats. Every task left over by Kahn has an unsorted upstream, so the walk
// always closes a loop.
func (g *Graph) findCycle(remaining map[string]bool) []string {
	start := ""
	for _, id := range g.order {
		if remaining[id] {
			start = id
			break
		}
	}

	seen := map[string]int{}
	var path []string
	for cur := start; ; {
		if pos, ok := seen[cur]; ok {
			cycle := append([]string(nil), path[pos:]...)
			// path follows upstream edges; report in dependency direction
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return append(cycle, cycle[0])
		}
		seen[cur] = len(path)
		path = append(path, cur)
		for _, up := range g.upstream[cur] {
			if remaining[up] {
				cur = up
				break
			}
		}
	}
}

// Task returns the definition for id
func (g *Graph) Task(id string) (TaskDefinition, bool) {
	def, ok := g.tasks[id]
	if !ok {
		return TaskDefinition{}, false
	}
	out := *def
	out.Upstream = append([]string(nil), def.Upstream...)
	return out, true
}

// UpstreamOf returns the direct upstream ids of id in declaration order
func (g *Graph) UpstreamOf(id string) []string {
	return append([]string(nil), g.upstream[id]...)
}

// DownstreamOf returns the direct downstream ids of id in declaration order
func (g *Graph) DownstreamOf(id string) []string {
	return append([]string(nil), g.downstream[id]...)
}

// Descendants returns every task reachable downstream of id, in topological order
func (g *Graph) Descendants(id string) []string {
	reached := map[string]bool{}
	stack := g.DownstreamOf(id)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reached[cur] {
			continue
		}
		reached[cur] = true
		stack = append(stack, g.downstream[cur]...)
	}

	out := make([]string, 0, len(reached))
	for _, tid := range g.topo {
		if reached[tid] {
			out = append(out, tid)
		}
	}
	return out
}

// IDs returns task ids in declaration order
func (g *Graph) IDs() []string {
	return append([]string(nil), g.order...)
}

// TopologicalOrder returns task ids such that every upstream precedes its downstream
func (g *Graph) TopologicalOrder() []string {
	return append([]string(nil), g.topo...)
}

// Roots returns tasks without upstream dependencies
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.upstream[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// Kinds maps every task id to its operator kind
func (g *Graph) Kinds() map[string]string {
	out := make(map[string]string, len(g.tasks))
	for id, def := range g.tasks {
		out[id] = string(def.Kind)
	}
	return out
}

// Edges returns every (upstream, downstream) pair in declaration order
func (g *Graph) Edges() [][2]string {
	var edges [][2]string
	for _, id := range g.order {
		for _, down := range g.downstream[id] {
			edges = append(edges, [2]string{id, down})
		}
	}
	return edges
}

// Size returns the number of tasks
func (g *Graph) Size() int {
	return len(g.order)
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
