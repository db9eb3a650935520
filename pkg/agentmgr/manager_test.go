// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package agentmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"open-swarm/internal/subprocess"
	"open-swarm/pkg/types"
)

func TestSpawnRegistersAgentAndParentChild(t *testing.T) {
	m := New(4)

	parent, err := m.Spawn(SpawnOptions{Role: types.RolePM, Mission: "lead", Backend: subprocess.NewMockAgent("p", time.Millisecond)})
	require.NoError(t, err)

	child, err := m.Spawn(SpawnOptions{Role: types.RoleMember, Mission: "work", ParentID: parent.ID, Backend: subprocess.NewMockAgent("c", time.Millisecond)})
	require.NoError(t, err)
	require.Equal(t, parent.ID, child.ParentID)

	got, ok := m.Get(parent.ID)
	require.True(t, ok)
	require.Equal(t, []string{child.ID}, got.Children)
}

func TestSpawnEnforcesMaxConcurrent(t *testing.T) {
	m := New(1)

	_, err := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a1", time.Minute)})
	require.NoError(t, err)
	m.SetStatus(m.GetAgentSummaries()[0].ID, types.AgentThinking)

	_, err = m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a2", time.Minute)})
	require.Error(t, err)
}

func TestDestroyIsLeafFirstAndRecursive(t *testing.T) {
	m := New(10)

	root, err := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("root", time.Millisecond)})
	require.NoError(t, err)
	mid, err := m.Spawn(SpawnOptions{ParentID: root.ID, Backend: subprocess.NewMockAgent("mid", time.Millisecond)})
	require.NoError(t, err)
	leaf, err := m.Spawn(SpawnOptions{ParentID: mid.ID, Backend: subprocess.NewMockAgent("leaf", time.Millisecond)})
	require.NoError(t, err)

	err = m.Destroy(root.ID)
	require.NoError(t, err)

	_, ok := m.Get(root.ID)
	require.False(t, ok)
	_, ok = m.Get(mid.ID)
	require.False(t, ok)
	_, ok = m.Get(leaf.ID)
	require.False(t, ok)
}

func TestDestroyUnknownIDIsNoop(t *testing.T) {
	m := New(4)
	require.NoError(t, m.Destroy("does-not-exist"))
}

func TestDestroyFixesUpParentChildList(t *testing.T) {
	m := New(4)
	parent, err := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("p", time.Millisecond)})
	require.NoError(t, err)
	child, err := m.Spawn(SpawnOptions{ParentID: parent.ID, Backend: subprocess.NewMockAgent("c", time.Millisecond)})
	require.NoError(t, err)

	require.NoError(t, m.Destroy(child.ID))

	got, ok := m.Get(parent.ID)
	require.True(t, ok)
	require.Empty(t, got.Children)
}

func TestAssignTaskSucceeds(t *testing.T) {
	m := New(4)
	a, err := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a", time.Millisecond)})
	require.NoError(t, err)

	var kinds []string
	m.TaskEvents().Subscribe(func(e types.TaskEvent) { kinds = append(kinds, e.Kind) })

	task := types.Task{ID: "t1", Description: "write the thing", Priority: 1}
	res, err := m.AssignTask(context.Background(), a.ID, task)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, []string{"assigned", "completed"}, kinds)

	got, _ := m.Get(a.ID)
	require.Equal(t, types.AgentDone, got.Status)
	require.Equal(t, 1, got.Metrics.TasksCompleted)
}

func TestAssignTaskUnknownAgent(t *testing.T) {
	m := New(4)
	_, err := m.AssignTask(context.Background(), "nope", types.Task{ID: "t1"})
	require.Error(t, err)
}

func TestGetAggregatedMetricsSumsAcrossAgents(t *testing.T) {
	m := New(4)
	a1, _ := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a1", time.Millisecond)})
	a2, _ := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a2", time.Millisecond)})

	_, err := m.AssignTask(context.Background(), a1.ID, types.Task{ID: "t1", Description: "x", Priority: 1})
	require.NoError(t, err)
	_, err = m.AssignTask(context.Background(), a2.ID, types.Task{ID: "t2", Description: "y", Priority: 1})
	require.NoError(t, err)

	agg := m.GetAggregatedMetrics()
	require.Equal(t, 2, agg.TasksCompleted)
	require.Greater(t, agg.TokensUsed, 0)
}

func TestBuildAgentTreeShapesForest(t *testing.T) {
	m := New(4)
	root, _ := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("root", time.Millisecond)})
	child, _ := m.Spawn(SpawnOptions{ParentID: root.ID, Backend: subprocess.NewMockAgent("child", time.Millisecond)})

	tree := m.BuildAgentTree()
	require.Len(t, tree, 1)
	require.Equal(t, root.ID, tree[0].Agent.ID)
	require.Len(t, tree[0].Children, 1)
	require.Equal(t, child.ID, tree[0].Children[0].Agent.ID)
	require.Equal(t, 1, tree[0].Children[0].Depth)
}

func TestGetAgentsByRoleAndStatus(t *testing.T) {
	m := New(4)
	_, _ = m.Spawn(SpawnOptions{Role: types.RolePM, Backend: subprocess.NewMockAgent("pm", time.Millisecond)})
	_, _ = m.Spawn(SpawnOptions{Role: types.RoleMember, Backend: subprocess.NewMockAgent("m", time.Millisecond)})

	pms := m.GetAgentsByRole(types.RolePM)
	require.Len(t, pms, 1)

	idle := m.GetAgentsByStatus(types.AgentIdle)
	require.Len(t, idle, 2)
}

func TestSetStatusInvalidTransitionStillApplies(t *testing.T) {
	m := New(4)
	a, _ := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a", time.Millisecond)})

	// idle -> done is not a listed transition, but must still be applied
	// (warn-but-allow, preserving liveness on recovery).
	m.SetStatus(a.ID, types.AgentDone)
	got, _ := m.Get(a.ID)
	require.Equal(t, types.AgentDone, got.Status)
}

func TestCountActiveTracksThinkingAndExecuting(t *testing.T) {
	m := New(4)
	a, _ := m.Spawn(SpawnOptions{Backend: subprocess.NewMockAgent("a", time.Millisecond)})
	require.Equal(t, 0, m.CountActive())

	m.SetStatus(a.ID, types.AgentThinking)
	require.Equal(t, 1, m.CountActive())
}
