// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package graph implements the Dependency Graph component (spec §4.2):
// a DAG model over decomposed tasks with cycle rejection, topological
// sort, critical path, parallel groups, and ready-set queries.
//
// This is not a general-purpose DAG library — it only ever models one
// session's task set and speaks the types package's Task/event
// vocabulary directly.
package graph

import (
	"sort"
	"sync"

	"github.com/gammazero/toposort"

	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// Node is a task plus its unordered dependency/dependent id sets. The
// two sets are kept as exact inverses across the graph at all times.
type Node struct {
	Task         types.Task
	Dependencies map[string]struct{}
	Dependents   map[string]struct{}
}

// Graph is the mutable DAG built from one decomposition.
type Graph struct {
	mu     sync.RWMutex
	nodes  map[string]*Node
	events *pubsub.Bus[types.GraphEvent]
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:  make(map[string]*Node),
		events: pubsub.New[types.GraphEvent](),
	}
}

// Events returns the bus graph-construction anomalies are published on.
func (g *Graph) Events() *pubsub.Bus[types.GraphEvent] { return g.events }

// BuildFromTasks populates nodes and edges from tasks. Edges are added
// only if the target node exists; otherwise an invalid_dependency event
// fires and the edge is dropped. A would-be edge that creates a cycle
// (including a self-loop) is rejected and a cycle_detected event fires.
// The graph is guaranteed acyclic after this call returns, regardless
// of how malformed the input is.
func (g *Graph) BuildFromTasks(tasks []types.Task) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node, len(tasks))
	for _, t := range tasks {
		g.nodes[t.ID] = &Node{
			Task:         t.Clone(),
			Dependencies: make(map[string]struct{}),
			Dependents:   make(map[string]struct{}),
		}
	}

	// Cheap whole-graph cycle pre-check, the way pkg/dag/scheduler.go
	// uses gammazero/toposort: this cannot tell us *which* edge to
	// drop, so it only short-circuits the common cycle-free case before
	// the slower per-edge insertion loop below still has to run to
	// report per-edge invalid_dependency/cycle_detected events.
	_ = g.wholeGraphHasCycle(tasks)

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			g.addEdge(dep, t.ID)
		}
	}
}

func (g *Graph) wholeGraphHasCycle(tasks []types.Task) bool {
	edges := make([]toposort.Edge, 0)
	ids := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		ids[t.ID] = struct{}{}
	}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := ids[dep]; ok && dep != t.ID {
				edges = append(edges, toposort.Edge{dep, t.ID})
			}
		}
	}
	if len(edges) == 0 {
		return false
	}
	_, err := toposort.Toposort(edges)
	return err != nil
}

// addEdge adds a dep -> taskID dependency edge if both nodes exist and
// the edge would not create a cycle. Must be called with mu held.
func (g *Graph) addEdge(dep, taskID string) {
	taskNode, ok := g.nodes[taskID]
	if !ok {
		return // task itself missing; nothing to attach to
	}
	if dep == taskID {
		g.events.Publish(types.GraphEvent{Kind: "cycle_detected", TaskID: taskID, DepID: dep})
		return
	}
	depNode, ok := g.nodes[dep]
	if !ok {
		g.events.Publish(types.GraphEvent{Kind: "invalid_dependency", TaskID: taskID, DepID: dep})
		return
	}
	if g.canReach(dep, taskID) {
		g.events.Publish(types.GraphEvent{Kind: "cycle_detected", TaskID: taskID, DepID: dep})
		return
	}

	taskNode.Dependencies[dep] = struct{}{}
	depNode.Dependents[taskID] = struct{}{}
}

// canReach reports whether to is reachable from "from" by walking
// dependency edges (from -> its dependencies -> ... ). Must be called
// with mu held.
func (g *Graph) canReach(from, to string) bool {
	visited := make(map[string]bool)
	var walk func(id string) bool
	walk = func(id string) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		node, ok := g.nodes[id]
		if !ok {
			return false
		}
		for depID := range node.Dependencies {
			if walk(depID) {
				return true
			}
		}
		return false
	}
	return walk(from)
}

// TopologicalSort produces a linear order consistent with the DAG,
// breaking ties by ascending task priority (Kahn's algorithm).
func (g *Graph) TopologicalSort() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.topologicalSortLocked()
}

func (g *Graph) topologicalSortLocked() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		inDegree[id] = len(n.Dependencies)
	}

	result := make([]string, 0, len(g.nodes))
	for len(result) < len(g.nodes) {
		ready := make([]string, 0)
		for id, deg := range inDegree {
			if deg == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			break // remaining nodes are unreachable (shouldn't happen on an acyclic graph)
		}
		sort.Slice(ready, func(i, j int) bool {
			pi, pj := g.nodes[ready[i]].Task.Priority, g.nodes[ready[j]].Task.Priority
			if pi != pj {
				return pi < pj
			}
			return ready[i] < ready[j]
		})

		next := ready[0]
		result = append(result, next)
		delete(inDegree, next)
		for dependentID := range g.nodes[next].Dependents {
			if _, stillPending := inDegree[dependentID]; stillPending {
				inDegree[dependentID]--
			}
		}
	}
	return result
}

// CriticalPath returns the longest-duration path through the graph
// (by complexity-derived unit durations) and its total duration.
func (g *Graph) CriticalPath() ([]string, int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	order := g.topologicalSortLocked()
	length := make(map[string]int, len(order))
	pred := make(map[string]string, len(order))

	var bestID string
	bestLen := -1

	for _, id := range order {
		node := g.nodes[id]
		best := 0
		bestDep := ""
		for depID := range node.Dependencies {
			if length[depID] > best {
				best = length[depID]
				bestDep = depID
			}
		}
		length[id] = best + node.Task.Complexity.CriticalPathUnits()
		if bestDep != "" {
			pred[id] = bestDep
		}
		if length[id] > bestLen {
			bestLen = length[id]
			bestID = id
		}
	}

	if bestID == "" {
		return []string{}, 0
	}

	path := []string{bestID}
	for {
		p, ok := pred[path[0]]
		if !ok {
			break
		}
		path = append([]string{p}, path...)
	}
	return path, bestLen
}

// ParallelGroups assigns each task the level 1 + max(level of deps)
// and returns one group per level, each sorted by priority.
func (g *Graph) ParallelGroups() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parallelGroupsLocked()
}

func (g *Graph) parallelGroupsLocked() [][]string {
	order := g.topologicalSortLocked()
	level := make(map[string]int, len(order))
	maxLevel := 0

	for _, id := range order {
		node := g.nodes[id]
		lvl := 1
		for depID := range node.Dependencies {
			if level[depID]+1 > lvl {
				lvl = level[depID] + 1
			}
		}
		level[id] = lvl
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	groups := make([][]string, maxLevel)
	for i := range groups {
		groups[i] = []string{}
	}
	for _, id := range order {
		lvl := level[id] - 1
		groups[lvl] = append(groups[lvl], id)
	}
	for _, grp := range groups {
		sort.Slice(grp, func(i, j int) bool {
			pi, pj := g.nodes[grp[i]].Task.Priority, g.nodes[grp[j]].Task.Priority
			if pi != pj {
				return pi < pj
			}
			return grp[i] < grp[j]
		})
	}
	return groups
}

// GetOptimizedGroups chunks any group larger than maxWorkers into
// consecutive slices of that size, preserving within-group priority
// order.
func (g *Graph) GetOptimizedGroups(maxWorkers int) [][]string {
	groups := g.ParallelGroups()
	if maxWorkers <= 0 {
		return groups
	}
	optimized := make([][]string, 0, len(groups))
	for _, grp := range groups {
		if len(grp) <= maxWorkers {
			optimized = append(optimized, grp)
			continue
		}
		for i := 0; i < len(grp); i += maxWorkers {
			end := i + maxWorkers
			if end > len(grp) {
				end = len(grp)
			}
			optimized = append(optimized, grp[i:end])
		}
	}
	return optimized
}

// AreDependenciesSatisfied reports whether every dependency of id is
// present in completed.
func (g *Graph) AreDependenciesSatisfied(id string, completed map[string]bool) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	node, ok := g.nodes[id]
	if !ok {
		return false
	}
	for depID := range node.Dependencies {
		if !completed[depID] {
			return false
		}
	}
	return true
}

// GetReadyTasks returns every task not yet in completed whose
// dependencies are all in completed.
func (g *Graph) GetReadyTasks(completed map[string]bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ready := make([]string, 0)
	for id := range g.nodes {
		if completed[id] {
			continue
		}
		if g.dependenciesSatisfiedLocked(id, completed) {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		pi, pj := g.nodes[ready[i]].Task.Priority, g.nodes[ready[j]].Task.Priority
		if pi != pj {
			return pi < pj
		}
		return ready[i] < ready[j]
	})
	return ready
}

func (g *Graph) dependenciesSatisfiedLocked(id string, completed map[string]bool) bool {
	for depID := range g.nodes[id].Dependencies {
		if !completed[depID] {
			return false
		}
	}
	return true
}

// GetDescendants returns every task transitively dependent on id.
func (g *Graph) GetDescendants(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitiveLocked(id, func(n *Node) map[string]struct{} { return n.Dependents })
}

// GetAncestors returns every task id transitively depends on.
func (g *Graph) GetAncestors(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.transitiveLocked(id, func(n *Node) map[string]struct{} { return n.Dependencies })
}

func (g *Graph) transitiveLocked(id string, next func(*Node) map[string]struct{}) []string {
	visited := make(map[string]bool)
	queue := []string{id}
	result := make([]string, 0)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node, ok := g.nodes[cur]
		if !ok {
			continue
		}
		for nb := range next(node) {
			if !visited[nb] {
				visited[nb] = true
				result = append(result, nb)
				queue = append(queue, nb)
			}
		}
	}
	sort.Strings(result)
	return result
}

// Analysis summarizes graph shape.
type Analysis struct {
	TotalTasks   int
	Bottlenecks  []string
	IsolatedTasks []string
}

// bottleneckDependentThreshold is the minimum dependent count for a
// node to be reported as a bottleneck.
const bottleneckDependentThreshold = 2

// Analyze returns counts, bottlenecks (nodes with >= 2 dependents), and
// isolated tasks (no dependencies and no dependents, reported only when
// the graph has at least two tasks).
func (g *Graph) Analyze() Analysis {
	g.mu.RLock()
	defer g.mu.RUnlock()

	a := Analysis{TotalTasks: len(g.nodes)}
	for id, node := range g.nodes {
		if len(node.Dependents) >= bottleneckDependentThreshold {
			a.Bottlenecks = append(a.Bottlenecks, id)
		}
		if len(g.nodes) >= 2 && len(node.Dependencies) == 0 && len(node.Dependents) == 0 {
			a.IsolatedTasks = append(a.IsolatedTasks, id)
		}
	}
	sort.Strings(a.Bottlenecks)
	sort.Strings(a.IsolatedTasks)
	return a
}

// Node returns a copy of the node for id, if present.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return cloneNode(n), true
}

func cloneNode(n *Node) Node {
	deps := make(map[string]struct{}, len(n.Dependencies))
	for k := range n.Dependencies {
		deps[k] = struct{}{}
	}
	dependents := make(map[string]struct{}, len(n.Dependents))
	for k := range n.Dependents {
		dependents[k] = struct{}{}
	}
	return Node{Task: n.Task.Clone(), Dependencies: deps, Dependents: dependents}
}
