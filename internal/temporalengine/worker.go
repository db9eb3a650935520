// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporalengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// WorkerOptions configures a Worker. Adapted from
// internal/temporal/worker.go's WorkerOptions, unchanged in shape: AIDOS
// needs the same task-queue/namespace/concurrency knobs Temporal always
// needs, just pointed at DAGWorkflow instead of the teacher's
// TddDagWorkflow.
type WorkerOptions struct {
	TaskQueue     string
	Namespace     string
	HostPort      string
	MaxConcurrent int
	RateLimit     int
}

// Worker owns the Temporal client connection and polling worker for one
// session's distributed execution backend.
type Worker struct {
	client  client.Client
	worker  worker.Worker
	opts    WorkerOptions
	started bool
	mu      sync.RWMutex
}

// NewWorker dials Temporal and registers DAGWorkflow and the
// TaskActivities the workflow calls out to.
func NewWorker(ctx context.Context, opts WorkerOptions, activities *TaskActivities) (*Worker, error) {
	if opts.TaskQueue == "" {
		return nil, errors.New("task_queue is required")
	}
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 100
	}

	c, err := client.Dial(client.Options{Namespace: opts.Namespace, HostPort: opts.HostPort})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}

	w := worker.New(c, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityTaskPollers: opts.MaxConcurrent,
		MaxConcurrentWorkflowTaskPollers: opts.MaxConcurrent,
	})
	w.RegisterWorkflow(DAGWorkflow)
	w.RegisterActivity(activities)

	return &Worker{client: c, worker: w, opts: opts}, nil
}

// Start begins polling. Idempotent.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := w.worker.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	w.started = true
	return nil
}

// Stop halts polling. Idempotent.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.worker.Stop()
	w.started = false
}

// Close stops the worker (if running) and closes the client connection.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		w.worker.Stop()
		w.started = false
	}
	if w.client != nil {
		w.client.Close()
	}
	return nil
}

// RunSession starts input's workflow execution and blocks for its
// result, the way the in-process Orchestrator's Execute blocks its
// caller until the session reaches a terminal phase.
func RunSession(ctx context.Context, c client.Client, taskQueue string, input WorkflowInput) error {
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "aidos-session-" + input.SessionID,
		TaskQueue: taskQueue,
	}, DAGWorkflow, input)
	if err != nil {
		return fmt.Errorf("failed to start workflow: %w", err)
	}
	return run.Get(ctx, nil)
}
