// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporalengine

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"

	"open-swarm/internal/subprocess"
	"open-swarm/pkg/types"
)

// TaskActivities holds the Temporal activity methods that actually run
// a task against a Subprocess Agent backend. Grounded on
// internal/temporal/activities_shell.go's ShellActivities: one small
// struct, one heartbeat call for long-running work, errors wrapped
// with the originating command/task for the workflow's logs.
type TaskActivities struct {
	// NewBackend builds the backend a single task execution runs
	// against. Called once per activity attempt, so a retried activity
	// gets a fresh backend/agent id rather than reusing a possibly
	// half-dead one.
	NewBackend func(agentID string, task types.Task) subprocess.Agent
}

// ExecuteTask runs one task to completion against a freshly built
// backend and returns its Result, the way the in-process
// Orchestrator's runTask assigns a task to a freshly spawned PL agent.
func (a *TaskActivities) ExecuteTask(ctx context.Context, task types.Task) (subprocess.Result, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("executing task", "taskID", task.ID, "category", task.Category)

	activity.RecordHeartbeat(ctx, task.ID)

	agentID := types.NewAgentID()
	backend := a.NewBackend(agentID, task)
	defer func() { _ = backend.Stop(ctx) }()

	instr := subprocess.Instruction{
		Type:     "task",
		Content:  task.Description,
		Priority: subprocess.PriorityFromTaskPriority(task.Priority),
	}

	result, err := backend.Execute(ctx, instr)
	if err != nil {
		logger.Error("task failed", "taskID", task.ID, "error", err)
		return result, fmt.Errorf("task %s failed: %w", task.ID, err)
	}

	logger.Info("task succeeded", "taskID", task.ID, "tokensUsed", result.TokensUsed)
	return result, nil
}
