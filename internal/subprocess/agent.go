// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package subprocess implements the Subprocess Agent (spec §4.5): the
// component that actually drives an external code-writing assistant.
// Four interchangeable backends implement the same Agent interface —
// mock, bare-process NDJSON, container, and SDK — so the Agent Manager
// and Orchestrator never need to know which one is live.
package subprocess

import (
	"context"
	"time"

	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// Priority is the instruction priority derived from task.priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// PriorityFromTaskPriority maps task.priority to instruction.priority
// per §4.4: <=1 -> high, <=2 -> normal, otherwise low.
func PriorityFromTaskPriority(p int) Priority {
	switch {
	case p <= 1:
		return PriorityHigh
	case p <= 2:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// Instruction is one unit of work handed to an agent's Execute.
type Instruction struct {
	Type     string // "task"
	Content  string
	Priority Priority
}

// Result is the outcome of one Execute call.
type Result struct {
	Success         bool
	Output          string
	TokensUsed      int
	ExecutionTimeMs int64
}

// Metrics accumulates counters across an agent's lifetime.
type Metrics struct {
	ToolUseCount         int
	ToolResultCount      int
	TotalExecutionTimeMs int64
	TokensUsed           int
}

// Agent is implemented by every backend (mock, process, container, sdk).
type Agent interface {
	ID() string
	Execute(ctx context.Context, instr Instruction) (Result, error)
	Stop(ctx context.Context) error
	Events() *pubsub.Bus[types.AgentEvent]
	Metrics() Metrics
}

// Backend selects which Agent implementation to construct.
type Backend string

const (
	BackendMock      Backend = "mock"
	BackendProcess   Backend = "process"
	BackendContainer Backend = "container"
	BackendSDK       Backend = "sdk"
)

// TerminationPolicy controls the soft-kill/grace/hard-kill sequence
// every non-mock backend applies on timeout or Stop.
type TerminationPolicy struct {
	Timeout     time.Duration
	GracePeriod time.Duration
}

// DefaultTerminationPolicy matches §4.5: 10 minute timeout, 5 second
// grace period between soft and hard kill.
func DefaultTerminationPolicy() TerminationPolicy {
	return TerminationPolicy{Timeout: 10 * time.Minute, GracePeriod: 5 * time.Second}
}
