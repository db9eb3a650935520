// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package main

import (
	"context"
	"fmt"
	"os"

	"go.temporal.io/sdk/client"

	"open-swarm/internal/config"
	"open-swarm/internal/decomposer"
	"open-swarm/internal/subprocess"
	"open-swarm/internal/temporalengine"
	"open-swarm/pkg/types"
)

// runTemporal decomposes objective in-process (spec §4.1) and hands
// its dependency-ordered tasks to internal/temporalengine's distributed
// execution backend (spec §4.6.1) instead of the in-process
// Orchestrator's own Execute loop.
func runTemporal(ctx context.Context, cfg *config.Config, objective string, mock bool) error {
	sessionID := types.NewSessionID()

	d := decomposer.New()
	decomposition, err := d.Decompose(objective, decomposer.Options{SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("decomposing objective: %w", err)
	}

	newBackend := func(agentID string, task types.Task) subprocess.Agent {
		if mock {
			return subprocess.NewMockAgent(agentID, 0)
		}
		return subprocess.NewProcessAgent(agentID, subprocess.DefaultProcessConfig())
	}
	activities := &temporalengine.TaskActivities{NewBackend: newBackend}

	worker, err := temporalengine.NewWorker(ctx, temporalengine.WorkerOptions{
		TaskQueue: cfg.Execution.TaskQueue,
		Namespace: cfg.Execution.Namespace,
		HostPort:  cfg.Execution.HostPort,
	}, activities)
	if err != nil {
		return fmt.Errorf("starting temporal worker: %w", err)
	}
	defer worker.Close()

	if err := worker.Start(); err != nil {
		return fmt.Errorf("starting temporal worker: %w", err)
	}

	c, err := client.Dial(client.Options{Namespace: cfg.Execution.Namespace, HostPort: cfg.Execution.HostPort})
	if err != nil {
		return fmt.Errorf("connecting to temporal: %w", err)
	}
	defer c.Close()

	fmt.Fprintf(os.Stdout, "session %s: %d tasks dispatched to task queue %q\n", sessionID, len(decomposition.Tasks), cfg.Execution.TaskQueue)

	input := temporalengine.WorkflowInput{
		SessionID: sessionID,
		Objective: objective,
		Tasks:     decomposition.Tasks,
	}
	if err := temporalengine.RunSession(ctx, c, cfg.Execution.TaskQueue, input); err != nil {
		return fmt.Errorf("workflow execution failed: %w", err)
	}

	fmt.Fprintf(os.Stdout, "session %s completed\n", sessionID)
	return nil
}
