// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"open-swarm/pkg/types"
)

func diamondTasks() []types.Task {
	return []types.Task{
		{ID: "A", Priority: 1, Complexity: types.ComplexityLow},
		{ID: "B", Priority: 1, Complexity: types.ComplexityMedium, Dependencies: []string{"A"}},
		{ID: "C", Priority: 2, Complexity: types.ComplexityMedium, Dependencies: []string{"A"}},
		{ID: "D", Priority: 1, Complexity: types.ComplexityHigh, Dependencies: []string{"B", "C"}},
	}
}

func TestBuildFromTasksDiamond(t *testing.T) {
	g := New()
	g.BuildFromTasks(diamondTasks())

	order := g.TopologicalSort()
	require.Equal(t, "A", order[0])
	require.Equal(t, "D", order[3])

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	require.Less(t, pos["A"], pos["B"])
	require.Less(t, pos["A"], pos["C"])
	require.Less(t, pos["B"], pos["D"])
	require.Less(t, pos["C"], pos["D"])
}

func TestParallelGroupsDiamond(t *testing.T) {
	g := New()
	g.BuildFromTasks(diamondTasks())

	groups := g.ParallelGroups()
	require.Equal(t, [][]string{{"A"}, {"B", "C"}, {"D"}}, groups)
}

func TestCriticalPathDiamond(t *testing.T) {
	g := New()
	g.BuildFromTasks(diamondTasks())

	path, duration := g.CriticalPath()
	// A(1) -> C(2) -> D(4) = 7, ties with A->B->D=7; either B or C branch
	// is a valid longest path since both are complexity medium.
	require.Equal(t, 7, duration)
	require.Equal(t, "A", path[0])
	require.Equal(t, "D", path[len(path)-1])
	require.Len(t, path, 3)
}

func TestCycleDetectedAndDropped(t *testing.T) {
	g := New()
	var events []types.GraphEvent
	g.Events().Subscribe(func(e types.GraphEvent) { events = append(events, e) })

	g.BuildFromTasks([]types.Task{
		{ID: "A", Dependencies: []string{"B"}},
		{ID: "B", Dependencies: []string{"A"}},
	})

	require.NotEmpty(t, events)
	require.Equal(t, "cycle_detected", events[0].Kind)

	// Graph remains acyclic: topological sort must still produce both nodes.
	order := g.TopologicalSort()
	require.Len(t, order, 2)
}

func TestSelfDependencyIsCycle(t *testing.T) {
	g := New()
	var events []types.GraphEvent
	g.Events().Subscribe(func(e types.GraphEvent) { events = append(events, e) })

	g.BuildFromTasks([]types.Task{
		{ID: "A", Dependencies: []string{"A"}},
	})

	require.Len(t, events, 1)
	require.Equal(t, "cycle_detected", events[0].Kind)
	node, ok := g.Node("A")
	require.True(t, ok)
	require.Empty(t, node.Dependencies)
}

func TestInvalidDependencyDropped(t *testing.T) {
	g := New()
	var events []types.GraphEvent
	g.Events().Subscribe(func(e types.GraphEvent) { events = append(events, e) })

	g.BuildFromTasks([]types.Task{
		{ID: "A", Dependencies: []string{"ghost"}},
	})

	require.Len(t, events, 1)
	require.Equal(t, "invalid_dependency", events[0].Kind)
	require.Equal(t, "ghost", events[0].DepID)

	node, ok := g.Node("A")
	require.True(t, ok)
	require.Empty(t, node.Dependencies)
}

func TestGetReadyTasksAndDescendantsAncestors(t *testing.T) {
	g := New()
	g.BuildFromTasks(diamondTasks())

	ready := g.GetReadyTasks(map[string]bool{})
	require.Equal(t, []string{"A"}, ready)

	ready = g.GetReadyTasks(map[string]bool{"A": true})
	require.ElementsMatch(t, []string{"B", "C"}, ready)

	ready = g.GetReadyTasks(map[string]bool{"A": true, "B": true, "C": true})
	require.Equal(t, []string{"D"}, ready)

	require.ElementsMatch(t, []string{"B", "C", "D"}, g.GetDescendants("A"))
	require.Empty(t, g.GetDescendants("D"))

	require.ElementsMatch(t, []string{"A", "B", "C"}, g.GetAncestors("D"))
	require.Empty(t, g.GetAncestors("A"))
}

func TestAreDependenciesSatisfied(t *testing.T) {
	g := New()
	g.BuildFromTasks(diamondTasks())

	require.True(t, g.AreDependenciesSatisfied("A", map[string]bool{}))
	require.False(t, g.AreDependenciesSatisfied("D", map[string]bool{"B": true}))
	require.True(t, g.AreDependenciesSatisfied("D", map[string]bool{"B": true, "C": true}))
	require.False(t, g.AreDependenciesSatisfied("missing", nil))
}

func TestGetOptimizedGroupsChunksOversizedGroup(t *testing.T) {
	g := New()
	g.BuildFromTasks([]types.Task{
		{ID: "A"},
		{ID: "B1", Dependencies: []string{"A"}, Priority: 1},
		{ID: "B2", Dependencies: []string{"A"}, Priority: 2},
		{ID: "B3", Dependencies: []string{"A"}, Priority: 3},
	})

	groups := g.GetOptimizedGroups(2)
	require.Equal(t, [][]string{{"A"}, {"B1", "B2"}, {"B3"}}, groups)
}

func TestAnalyzeBottlenecksAndIsolated(t *testing.T) {
	g := New()
	g.BuildFromTasks([]types.Task{
		{ID: "A"},
		{ID: "B", Dependencies: []string{"A"}},
		{ID: "C", Dependencies: []string{"A"}},
		{ID: "lonely"},
	})

	a := g.Analyze()
	require.Equal(t, 4, a.TotalTasks)
	require.Equal(t, []string{"A"}, a.Bottlenecks)
	require.Equal(t, []string{"lonely"}, a.IsolatedTasks)
}

func TestEmptyGraph(t *testing.T) {
	g := New()
	g.BuildFromTasks(nil)

	require.Empty(t, g.TopologicalSort())
	path, duration := g.CriticalPath()
	require.Empty(t, path)
	require.Equal(t, 0, duration)
	require.Empty(t, g.ParallelGroups())
}
