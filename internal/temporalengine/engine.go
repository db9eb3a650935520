// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package temporalengine is the Orchestrator's optional distributed
// execution backend (spec §4.6.1): it converts one session's task list
// into a Temporal workflow that executes the same parallel groups
// pkg/graph computes for the in-process engine, one ExecuteActivity per
// task per group, joined by a workflow.Selector.
//
// Grounded on pkg/dag/engine.go's Engine.Run (plan once, then loop
// scheduling runnable tasks and selecting over their futures) and
// internal/temporal/worker.go's TemporalWorker lifecycle wrapper. The
// retry policy (3 attempts, 2x backoff, 30s heartbeat) is the same one
// pkg/dag/engine.go already used; unlike that engine's TDD signal-wait
// loop (TddDagWorkflow), this workflow runs one pass over the groups
// and returns — retry-until-fixed is the self-healing loop's job
// (internal/guardrails), not this backend's.
package temporalengine

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"open-swarm/pkg/graph"
	"open-swarm/pkg/types"
)

// Retry/timeout constants, identical to pkg/dag/engine.go's.
const (
	StartToCloseTimeout     = 10 * time.Minute
	HeartbeatTimeout        = 30 * time.Second
	RetryBackoffCoefficient = 2.0
	RetryMaxAttempts        = 3
)

// WorkflowInput is DAGWorkflow's input: one session's task list, self-
// contained so the workflow never needs to call back into the session
// that created it.
type WorkflowInput struct {
	SessionID string
	Objective string
	Tasks     []types.Task
}

// groupResult is what one group's wave of activities resolves to.
type groupResult struct {
	failed []string
}

// DAGWorkflow executes input.Tasks group by group, respecting
// dependencies. A task failure (after its activity retries are
// exhausted) fails the whole group's wait and the workflow returns an
// error; tasks in a failed group that already succeeded are not rolled
// back, matching the in-process Orchestrator's "a task failure fails
// the session, in-flight agents are stopped" behavior rather than
// attempting compensation.
func DAGWorkflow(ctx workflow.Context, input WorkflowInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("starting DAG workflow", "sessionID", input.SessionID, "tasks", len(input.Tasks))

	g := graph.New()
	g.BuildFromTasks(input.Tasks)
	groups := g.ParallelGroups()

	taskByID := make(map[string]types.Task, len(input.Tasks))
	for _, t := range input.Tasks {
		taskByID[t.ID] = t
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: StartToCloseTimeout,
		HeartbeatTimeout:    HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    1 * time.Second,
			BackoffCoefficient: RetryBackoffCoefficient,
			MaximumInterval:    HeartbeatTimeout,
			MaximumAttempts:    RetryMaxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	activities := &TaskActivities{}

	for _, group := range groups {
		logger.Info("executing group", "size", len(group))
		result := runGroup(ctx, activities, taskByID, group)
		if len(result.failed) > 0 {
			return fmt.Errorf("tasks failed: %v", result.failed)
		}
	}

	logger.Info("DAG workflow complete", "sessionID", input.SessionID)
	return nil
}

// runGroup executes every task in group as its own activity and blocks
// until all of them resolve, the way pkg/dag/engine.go's
// waitForTaskCompletion drains state.PendingFutures with a
// workflow.Selector.
func runGroup(ctx workflow.Context, activities *TaskActivities, taskByID map[string]types.Task, group []string) groupResult {
	futures := make(map[string]workflow.Future, len(group))
	for _, id := range group {
		futures[id] = workflow.ExecuteActivity(ctx, activities.ExecuteTask, taskByID[id])
	}

	var result groupResult
	remaining := len(futures)
	selector := workflow.NewSelector(ctx)
	for id, f := range futures {
		taskID := id
		selector.AddFuture(f, func(f workflow.Future) {
			remaining--
			if err := f.Get(ctx, nil); err != nil {
				result.failed = append(result.failed, taskID)
			}
		})
	}
	for remaining > 0 {
		selector.Select(ctx)
	}
	return result
}
