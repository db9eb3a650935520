// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"open-swarm/pkg/types"
)

func TestMockAgentExecuteLifecycle(t *testing.T) {
	a := NewMockAgent("agent-1", 10*time.Millisecond)
	var kinds []string
	a.Events().Subscribe(func(e types.AgentEvent) { kinds = append(kinds, e.Kind) })

	res, err := a.Execute(context.Background(), Instruction{Type: "task", Content: "do the thing", Priority: PriorityHigh})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Contains(t, res.Output, "do the thing")
	require.Greater(t, res.TokensUsed, 0)

	require.Equal(t, []string{"thinking", "executing", "progress", "output", "progress"}, kinds)
}

func TestMockAgentRespectsContextCancellation(t *testing.T) {
	a := NewMockAgent("agent-1", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Execute(ctx, Instruction{Content: "x"})
	require.Error(t, err)
}

func TestPriorityFromTaskPriority(t *testing.T) {
	require.Equal(t, PriorityHigh, PriorityFromTaskPriority(1))
	require.Equal(t, PriorityNormal, PriorityFromTaskPriority(2))
	require.Equal(t, PriorityLow, PriorityFromTaskPriority(3))
}
