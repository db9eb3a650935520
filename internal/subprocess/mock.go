// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"context"
	"fmt"
	"time"

	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// MockAgent simulates the Agent lifecycle with bounded delays and
// synthetic token counts. Used for tests, dry-runs, and whenever no
// assistant credentials are configured.
type MockAgent struct {
	id      string
	delay   time.Duration
	events  *pubsub.Bus[types.AgentEvent]
	metrics Metrics
	stopped bool
}

// NewMockAgent creates a mock agent. delay bounds the simulated
// execution time; zero picks a small fixed default.
func NewMockAgent(id string, delay time.Duration) *MockAgent {
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &MockAgent{
		id:     id,
		delay:  delay,
		events: pubsub.New[types.AgentEvent](),
	}
}

func (m *MockAgent) ID() string                              { return m.id }
func (m *MockAgent) Events() *pubsub.Bus[types.AgentEvent]    { return m.events }
func (m *MockAgent) Metrics() Metrics                         { return m.metrics }

// Execute simulates thinking, one tool call, and a successful result,
// publishing the same agent:* events a real backend would.
func (m *MockAgent) Execute(ctx context.Context, instr Instruction) (Result, error) {
	m.events.Publish(types.AgentEvent{Kind: "thinking", Detail: instr.Content})

	select {
	case <-time.After(m.delay / 2):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	m.events.Publish(types.AgentEvent{Kind: "executing", Detail: fmt.Sprintf("mock tool for %q", instr.Content)})
	m.events.Publish(types.AgentEvent{Kind: "progress", Detail: "50"})

	select {
	case <-time.After(m.delay / 2):
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	output := fmt.Sprintf("mock completed: %s", instr.Content)
	tokens := len(instr.Content) * 4 // synthetic, deterministic token estimate
	m.metrics.TokensUsed += tokens
	m.metrics.TotalExecutionTimeMs += m.delay.Milliseconds()

	m.events.Publish(types.AgentEvent{Kind: "output", Detail: output})
	m.events.Publish(types.AgentEvent{Kind: "progress", Detail: "100"})

	return Result{
		Success:         true,
		Output:          output,
		TokensUsed:      tokens,
		ExecutionTimeMs: m.delay.Milliseconds(),
	}, nil
}

// Stop marks the mock agent stopped; idempotent.
func (m *MockAgent) Stop(ctx context.Context) error {
	m.stopped = true
	return nil
}

var _ Agent = (*MockAgent)(nil)
