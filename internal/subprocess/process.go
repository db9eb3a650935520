// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// defaultEnvBlocklist names the environment variable name fragments
// stripped before spawn, so credentials that would override the
// assistant's intended auth never reach the child process.
var defaultEnvBlocklist = []string{"_API_KEY", "_TOKEN", "_SECRET", "_PASSWORD"}

// ProcessConfig configures the fixed argument vector and environment
// sanitization for the bare-process NDJSON backend.
type ProcessConfig struct {
	Command          string
	PromptFlag       string
	OutputFormatArgs []string
	VerboseFlag      string
	AllowedTools     []string
	DisallowedTools  []string
	MaxBudgetUSD     float64
	Policy           TerminationPolicy
	EnvBlocklist     []string
}

// DefaultProcessConfig mirrors the CLI invocation the teacher already
// wraps elsewhere (internal/infra/server.go's "opencode" command),
// adapted from a long-running server subcommand to one-shot
// prompt-mode, streaming-JSON invocations.
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		Command:          "opencode",
		PromptFlag:       "-p",
		OutputFormatArgs: []string{"--output-format", "stream-json"},
		VerboseFlag:      "--verbose",
		Policy:           DefaultTerminationPolicy(),
		EnvBlocklist:     defaultEnvBlocklist,
	}
}

// ProcessAgent spawns the assistant as a child process per instruction
// and parses its NDJSON stdout. Grounded on internal/infra/server.go's
// process-group lifecycle (Setpgid, SIGTERM-then-SIGKILL, timeout-
// bounded Wait), adapted from a long-lived HTTP server to a one-shot,
// stdout-streaming subprocess.
type ProcessAgent struct {
	id      string
	cfg     ProcessConfig
	events  *pubsub.Bus[types.AgentEvent]
	mu      sync.Mutex
	metrics Metrics
	cmd     *exec.Cmd
}

// NewProcessAgent creates a process-backed agent. A zero cfg.Command
// uses DefaultProcessConfig.
func NewProcessAgent(id string, cfg ProcessConfig) *ProcessAgent {
	if cfg.Command == "" {
		cfg = DefaultProcessConfig()
	}
	if cfg.Policy.Timeout <= 0 {
		cfg.Policy = DefaultTerminationPolicy()
	}
	if len(cfg.EnvBlocklist) == 0 {
		cfg.EnvBlocklist = defaultEnvBlocklist
	}
	return &ProcessAgent{id: id, cfg: cfg, events: pubsub.New[types.AgentEvent]()}
}

func (a *ProcessAgent) ID() string                           { return a.id }
func (a *ProcessAgent) Events() *pubsub.Bus[types.AgentEvent] { return a.events }
func (a *ProcessAgent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

func (a *ProcessAgent) buildArgs(instr Instruction) []string {
	args := []string{a.cfg.PromptFlag}
	args = append(args, a.cfg.OutputFormatArgs...)
	if a.cfg.VerboseFlag != "" {
		args = append(args, a.cfg.VerboseFlag)
	}
	if len(a.cfg.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(a.cfg.AllowedTools, ","))
	}
	if len(a.cfg.DisallowedTools) > 0 {
		args = append(args, "--disallowedTools", strings.Join(a.cfg.DisallowedTools, ","))
	}
	if a.cfg.MaxBudgetUSD > 0 {
		args = append(args, "--max-budget-usd", fmt.Sprintf("%.4f", a.cfg.MaxBudgetUSD))
	}
	return args
}

func stripCredentialEnv(env []string, blocklist []string) []string {
	kept := make([]string, 0, len(env))
	for _, kv := range env {
		name := kv
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			name = kv[:idx]
		}
		blocked := false
		upper := strings.ToUpper(name)
		for _, frag := range blocklist {
			if strings.Contains(upper, strings.ToUpper(frag)) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, kv)
		}
	}
	return kept
}

// Execute spawns the assistant, streams and parses its stdout, and
// blocks until a result message arrives, the process exits, or the
// termination policy's timeout fires.
func (a *ProcessAgent) Execute(ctx context.Context, instr Instruction) (Result, error) {
	cmd := exec.Command(a.cfg.Command, a.buildArgs(instr)...)
	cmd.Env = stripCredentialEnv(os.Environ(), a.cfg.EnvBlocklist)
	cmd.Stdin = strings.NewReader(instr.Content)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: err}
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	var textOut strings.Builder
	var resultEvt *ParsedEvent
	parser := NewStreamParser(func(e ParsedEvent) {
		a.translate(e)
		switch e.Kind {
		case "text":
			textOut.WriteString(e.Text)
		case "result":
			evt := e
			resultEvt = &evt
		}
	})

	if err := cmd.Start(); err != nil {
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: err}
	}
	a.mu.Lock()
	a.cmd = cmd
	a.mu.Unlock()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		buf := make([]byte, 4096)
		for {
			n, rerr := stdout.Read(buf)
			if n > 0 {
				parser.Feed(buf[:n])
			}
			if rerr != nil {
				if rerr != io.EOF {
					break
				}
				break
			}
		}
		parser.Flush()
	}()

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		a.kill(cmd)
		<-waitDone
		return Result{}, ctx.Err()

	case <-time.After(a.cfg.Policy.Timeout):
		a.softKill(cmd)
		select {
		case <-waitDone:
		case <-time.After(a.cfg.Policy.GracePeriod):
			a.hardKill(cmd)
			<-waitDone
		}
		<-readDone
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("execution timed out after %s", a.cfg.Policy.Timeout)}

	case waitErr := <-waitDone:
		<-readDone
		a.mergeMetrics(parser.Metrics())

		if waitErr != nil {
			return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("%w: %s", waitErr, stderrBuf.String())}
		}

		output := textOut.String()
		success := true
		if resultEvt != nil {
			success = resultEvt.Success
			if resultEvt.Message != "" {
				output = resultEvt.Message
			}
		}
		if !success {
			return Result{Success: false, Output: output}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("assistant reported failure: %s", output)}
		}
		return Result{
			Success:         true,
			Output:          output,
			TokensUsed:      parser.Metrics().TokensUsed,
			ExecutionTimeMs: parser.Metrics().TotalExecutionTimeMs,
		}, nil
	}
}

func (a *ProcessAgent) mergeMetrics(m Metrics) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metrics.ToolUseCount += m.ToolUseCount
	a.metrics.ToolResultCount += m.ToolResultCount
	a.metrics.TotalExecutionTimeMs += m.TotalExecutionTimeMs
	a.metrics.TokensUsed += m.TokensUsed
}

func (a *ProcessAgent) translate(e ParsedEvent) {
	switch e.Kind {
	case "thinking":
		a.events.Publish(types.AgentEvent{Kind: "thinking", Detail: e.Text})
	case "tool_use", "tool_result":
		a.events.Publish(types.AgentEvent{Kind: "executing", Detail: e.Text})
	case "text":
		a.events.Publish(types.AgentEvent{Kind: "output", Detail: e.Text})
	case "progress":
		a.events.Publish(types.AgentEvent{Kind: "progress", Detail: fmt.Sprintf("%d", e.Progress)})
	case "result":
		if !e.Success {
			a.events.Publish(types.AgentEvent{Kind: "error", Detail: e.Message})
		}
	}
}

// Stop triggers the same soft-then-hard kill sequence as a timeout.
func (a *ProcessAgent) Stop(ctx context.Context) error {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	a.softKill(cmd)
	select {
	case <-ctx.Done():
	case <-time.After(a.cfg.Policy.GracePeriod):
		a.hardKill(cmd)
	}
	return nil
}

func (a *ProcessAgent) softKill(cmd *exec.Cmd) { a.signalGroup(cmd, syscall.SIGTERM) }
func (a *ProcessAgent) hardKill(cmd *exec.Cmd) { a.signalGroup(cmd, syscall.SIGKILL) }
func (a *ProcessAgent) kill(cmd *exec.Cmd)     { a.signalGroup(cmd, syscall.SIGKILL) }

func (a *ProcessAgent) signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err != nil {
		_ = cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, sig)
}

var _ Agent = (*ProcessAgent)(nil)
