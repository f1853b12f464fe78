// ABOUTME: Execution graph builder for workflow task dependencies
// ABOUTME: Derives edges from dependsOn and template references, detects cycles, computes waves

package graph

import (
	"fmt"

	"github.com/flowctl/engine/internal/template"
	"github.com/flowctl/engine/pkg/types"
)

// node holds per-task bookkeeping while the graph is built and queried.
type node struct {
	id        string
	step      *types.TaskStep
	dependsOn map[string]bool
	dependents map[string]bool
}

// Graph is the execution DAG over a workflow's task steps (§4.2).
type Graph struct {
	nodes map[string]*node
	order []string // stable input order, used for deterministic iteration
}

// Dependencies returns the set of task ids that id depends on.
func (g *Graph) Dependencies(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return setToSlice(n.dependsOn)
}

// Dependents returns the set of task ids that depend on id.
func (g *Graph) Dependents(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return setToSlice(n.dependents)
}

// Step returns the TaskStep for id.
func (g *Graph) Step(id string) (*types.TaskStep, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.step, true
}

// TaskIDs returns all node ids in input order.
func (g *Graph) TaskIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

func setToSlice(s map[string]bool) []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// ExecutionOrder returns a topological ordering of all task ids (Kahn's
// algorithm), breaking ties by input order for determinism.
func (g *Graph) ExecutionOrder() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.dependsOn)
	}

	var ready []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		for _, depID := range g.order {
			if !g.nodes[next].dependents[depID] {
				continue
			}
			inDegree[depID]--
			if inDegree[depID] == 0 {
				ready = append(ready, depID)
			}
		}
	}
	return order
}

// Waves groups task ids into sequential layers: every task in a layer has
// all its dependencies satisfied by tasks in earlier layers (§4.11 "wave").
func (g *Graph) Waves() [][]string {
	remaining := make(map[string]bool, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = true
	}
	completed := make(map[string]bool, len(g.nodes))

	var waves [][]string
	for len(remaining) > 0 {
		var ready []string
		for _, id := range g.order {
			if !remaining[id] {
				continue
			}
			n := g.nodes[id]
			ok := true
			for dep := range n.dependsOn {
				if !completed[dep] {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			// Cycle should have been caught by Build; defensive break.
			break
		}
		waves = append(waves, ready)
		for _, id := range ready {
			delete(remaining, id)
			completed[id] = true
		}
	}
	return waves
}

// Build constructs and validates the execution graph for a task list
// (§4.2). Edges come from explicit dependsOn entries and from scanning
// every input/condition/switch/forEach template for "tasks.<id>.output"
// references. Returns a GraphError if any task id is unknown or a cycle
// exists.
func Build(steps []types.TaskStep) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(steps))}

	for i := range steps {
		s := &steps[i]
		if s.ID == "" {
			return nil, types.NewGraphError("task step missing id", nil)
		}
		if _, dup := g.nodes[s.ID]; dup {
			return nil, types.NewGraphError(fmt.Sprintf("duplicate task id %q", s.ID), nil)
		}
		g.nodes[s.ID] = &node{
			id:         s.ID,
			step:       s,
			dependsOn:  map[string]bool{},
			dependents: map[string]bool{},
		}
		g.order = append(g.order, s.ID)
	}

	for i := range steps {
		s := &steps[i]
		deps := map[string]bool{}
		for _, d := range s.DependsOn {
			deps[d] = true
		}
		for _, ref := range templateRefs(s) {
			deps[ref] = true
		}
		for dep := range deps {
			if dep == s.ID {
				continue
			}
			if _, ok := g.nodes[dep]; !ok {
				return nil, types.NewGraphError(fmt.Sprintf("task %q references unknown task %q", s.ID, dep), nil)
			}
			g.nodes[s.ID].dependsOn[dep] = true
			g.nodes[dep].dependents[s.ID] = true
		}
	}

	if cycle := g.detectCycle(); cycle != nil {
		return nil, types.NewGraphError("circular dependency detected", cycle)
	}

	return g, nil
}

// templateRefs scans every template-bearing field of a step for
// "tasks.<id>.output" references.
func templateRefs(s *types.TaskStep) []string {
	var refs []string
	add := func(str string) {
		refs = append(refs, template.ScanTaskRefs(str)...)
	}
	for _, v := range s.Input {
		add(v)
	}
	if s.Condition != nil {
		add(s.Condition.If)
	}
	if s.Switch != nil {
		add(s.Switch.Value)
		for _, c := range s.Switch.Cases {
			add(c.Match)
		}
	}
	if s.ForEach != nil {
		add(s.ForEach.Items)
	}
	add(s.Timeout)
	return refs
}

// colorState tracks DFS recursion-stack coloring for cycle detection.
type colorState int

const (
	white colorState = iota
	gray
	black
)

// detectCycle runs a DFS with a recursion stack over all nodes; returns the
// cycle path (closed: first id repeated at the end) if one is found.
func (g *Graph) detectCycle() []string {
	color := make(map[string]colorState, len(g.nodes))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)

		for dep := range g.nodes[id].dependsOn {
			switch color[dep] {
			case white:
				if visit(dep) {
					return true
				}
			case gray:
				// Found a back-edge: extract the cycle from path.
				for i, p := range path {
					if p == dep {
						cycle = append(append([]string{}, path[i:]...), dep)
						return true
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range g.order {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}
