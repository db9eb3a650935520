// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package types holds the data model shared across AIDOS core
// components: decomposed and runtime tasks, sessions, agents, worker
// state, and scheduled tasks. Types here are plain structs; mutation
// always goes through the owning component (Orchestrator, AgentManager,
// Optimizer), never directly on a value handed out by a read accessor.
package types

import (
	"time"

	"github.com/lithammer/shortuuid/v4"
)

// Category classifies a decomposed task.
type Category string

const (
	CategoryDesign    Category = "design"
	CategoryImplement Category = "implement"
	CategoryTest      Category = "test"
	CategoryDocument  Category = "document"
	CategoryOther     Category = "other"
)

// Complexity tags the relative size of a task.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// EstimatedDuration returns the scheduler's fixed duration mapping for
// a complexity tag (§3: low=30s, medium=60s, high=180s).
func (c Complexity) EstimatedDuration() time.Duration {
	switch c {
	case ComplexityLow:
		return 30 * time.Second
	case ComplexityHigh:
		return 180 * time.Second
	default:
		return 60 * time.Second
	}
}

// CriticalPathUnits returns the critical-path duration unit for a
// complexity tag (§4.2: low=1, medium=2, high=4).
func (c Complexity) CriticalPathUnits() int {
	switch c {
	case ComplexityLow:
		return 1
	case ComplexityHigh:
		return 4
	default:
		return 2
	}
}

// TaskStatus is the runtime lifecycle state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Task is a decomposed unit of work produced by the Task Decomposer.
type Task struct {
	ID           string
	Description  string
	Category     Category
	Dependencies []string
	Priority     int
	Complexity   Complexity
}

// Clone returns a deep copy of the task, so callers mutating the
// returned value cannot corrupt the owner's map.
func (t Task) Clone() Task {
	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	t.Dependencies = deps
	return t
}

// RuntimeTask extends a decomposed Task with execution state.
type RuntimeTask struct {
	Task
	Status      TaskStatus
	Progress    int
	Output      string
	AgentID     string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Clone returns a deep copy of the runtime task.
func (t RuntimeTask) Clone() RuntimeTask {
	t.Task = t.Task.Clone()
	return t
}

// SessionStatus is the lifecycle state of an orchestration session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session identifies one end-to-end run from objective to terminal
// status.
type Session struct {
	ID        string
	Objective string
	Status    SessionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSessionID returns a random 8-char session id, the way
// 88lin-divinesense mints short public ids with shortuuid rather than
// hand-rolling a random-string generator.
func NewSessionID() string {
	return shortID(8)
}

// AgentRole is the role an agent instance plays.
type AgentRole string

const (
	RolePM     AgentRole = "PM"
	RolePL     AgentRole = "PL"
	RoleMember AgentRole = "Member"
)

// AgentStatus is the lifecycle state of an agent instance.
type AgentStatus string

const (
	AgentIdle      AgentStatus = "idle"
	AgentThinking  AgentStatus = "thinking"
	AgentExecuting AgentStatus = "executing"
	AgentBlocked   AgentStatus = "blocked"
	AgentDone      AgentStatus = "done"
	AgentError     AgentStatus = "error"
)

// AgentMetrics accumulates per-instance counters.
type AgentMetrics struct {
	TokensUsed        int
	ExecutionTimeMs   int64
	TasksCompleted    int
	TasksFailed       int
	ChildrenSpawned   int
}

// Agent is one autonomous executor of one instruction.
type Agent struct {
	ID       string
	Role     AgentRole
	Mission  string
	Status   AgentStatus
	ParentID string
	Children []string
	Metrics  AgentMetrics
}

// Clone returns a deep copy of the agent.
func (a Agent) Clone() Agent {
	children := make([]string, len(a.Children))
	copy(children, a.Children)
	a.Children = children
	return a
}

// NewAgentID returns a random agent id.
func NewAgentID() string {
	return shortID(12)
}

func shortID(n int) string {
	id := shortuuid.New()
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// WorkerStatus is the lifecycle state of a scheduler slot.
type WorkerStatus string

const (
	WorkerIdle  WorkerStatus = "idle"
	WorkerBusy  WorkerStatus = "busy"
	WorkerError WorkerStatus = "error"
)

// WorkerState is one scheduler-owned slot that can hold at most one
// running task.
type WorkerState struct {
	ID                 string
	Status             WorkerStatus
	CurrentTaskID      string
	Load               float64
	CompletedTasks     int
	TotalExecutionTime time.Duration
}

// ScheduleStatus is the lifecycle state of a scheduled task.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleRunning   ScheduleStatus = "running"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleFailed    ScheduleStatus = "failed"
)

// ScheduledTask is a RuntimeTask annotated with scheduling decisions.
type ScheduledTask struct {
	RuntimeTask
	WorkerID         string
	ScheduledTime    time.Duration
	EstimatedDuration time.Duration
	AdjustedPriority int
	Status           ScheduleStatus
}
