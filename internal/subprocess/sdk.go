// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"context"
	"fmt"
	"strings"

	"open-swarm/internal/agent"
	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// SDKConfig configures the SDK backend.
type SDKConfig struct {
	Model   string
	Agent   string
	Session string // reuse an existing session id; empty creates one per Execute
}

// SDKAgent talks to an already-running assistant server over
// sst/opencode-sdk-go instead of spawning a child process. Grounded on
// internal/agent/client.go's ExecutePrompt/GetFileStatus; maps SDK
// response parts (text, tool, reasoning) onto the same
// thinking|text|tool_use|tool_result vocabulary the NDJSON parser
// produces, so the Agent Manager stays backend-agnostic.
type SDKAgent struct {
	id      string
	client  agent.ClientInterface
	cfg     SDKConfig
	events  *pubsub.Bus[types.AgentEvent]
	metrics Metrics
}

// NewSDKAgent creates an SDK-backed agent over an existing client
// (agent.NewClient(baseURL, port), configured for a live `... serve`
// endpoint).
func NewSDKAgent(id string, client agent.ClientInterface, cfg SDKConfig) *SDKAgent {
	return &SDKAgent{id: id, client: client, cfg: cfg, events: pubsub.New[types.AgentEvent]()}
}

func (a *SDKAgent) ID() string                           { return a.id }
func (a *SDKAgent) Events() *pubsub.Bus[types.AgentEvent] { return a.events }
func (a *SDKAgent) Metrics() Metrics                      { return a.metrics }

func (a *SDKAgent) Execute(ctx context.Context, instr Instruction) (Result, error) {
	a.events.Publish(types.AgentEvent{Kind: "thinking", Detail: instr.Content})

	opts := &agent.PromptOptions{
		SessionID: a.cfg.Session,
		Model:     a.cfg.Model,
		Agent:     a.cfg.Agent,
		Title:     fmt.Sprintf("aidos-%s", a.id),
	}
	result, err := a.client.ExecutePrompt(ctx, instr.Content, opts)
	if err != nil {
		a.events.Publish(types.AgentEvent{Kind: "error", Detail: err.Error()})
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: err}
	}

	toolCount := 0
	var out strings.Builder
	for _, part := range result.Parts {
		switch part.Type {
		case "reasoning":
			a.events.Publish(types.AgentEvent{Kind: "thinking", Detail: part.Text})
		case "tool":
			toolCount++
			a.events.Publish(types.AgentEvent{Kind: "executing", Detail: part.ToolName})
		case "text":
			out.WriteString(part.Text)
			a.events.Publish(types.AgentEvent{Kind: "output", Detail: part.Text})
		}
	}
	a.metrics.ToolUseCount += toolCount
	a.events.Publish(types.AgentEvent{Kind: "progress", Detail: "100"})

	return Result{Success: true, Output: out.String()}, nil
}

// aborter is implemented by agent.Client but not required by
// agent.ClientInterface; Stop uses it opportunistically.
type aborter interface {
	AbortSession(ctx context.Context, sessionID string) error
}

// Stop aborts the active session, if one was reused across calls and
// the underlying client supports aborting.
func (a *SDKAgent) Stop(ctx context.Context) error {
	if a.cfg.Session == "" {
		return nil
	}
	if ab, ok := a.client.(aborter); ok {
		return ab.AbortSession(ctx, a.cfg.Session)
	}
	return nil
}

var _ Agent = (*SDKAgent)(nil)
