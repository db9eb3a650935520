// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"context"
	"fmt"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// containerStopTimeout mirrors internal/mergequeue/docker.go's graceful
// stop timeout.
const containerStopTimeout = 10 * time.Second

// ContainerConfig configures the container backend.
type ContainerConfig struct {
	Image   string
	Command []string // base argv; instr.Content is appended as the final arg
	Env     []string
	Policy  TerminationPolicy
}

// parserWriter adapts a StreamParser into an io.Writer so stdcopy can
// demux a container's combined stdout/stderr stream directly into it.
type parserWriter struct{ parser *StreamParser }

func (w parserWriter) Write(p []byte) (int, error) {
	w.parser.Feed(p)
	return len(p), nil
}

// ContainerAgent runs the assistant inside a Docker container instead
// of a bare OS process. Grounded on internal/mergequeue/docker.go's
// DockerManager: the same client construction (FromEnv + API version
// negotiation) and the same stop-then-force-remove idiom, here driving
// the soft/grace/hard termination policy instead of merge-queue
// cleanup.
type ContainerAgent struct {
	id          string
	cli         *client.Client
	cfg         ContainerConfig
	events      *pubsub.Bus[types.AgentEvent]
	mu          sync.Mutex
	metrics     Metrics
	containerID string
}

// NewContainerAgent creates a container-backed agent using cli. Pass a
// client built with client.NewClientWithOpts(client.FromEnv,
// client.WithAPIVersionNegotiation()), as the teacher's DockerManager
// does.
func NewContainerAgent(id string, cli *client.Client, cfg ContainerConfig) *ContainerAgent {
	if cfg.Policy.Timeout <= 0 {
		cfg.Policy = DefaultTerminationPolicy()
	}
	return &ContainerAgent{id: id, cli: cli, cfg: cfg, events: pubsub.New[types.AgentEvent]()}
}

func (a *ContainerAgent) ID() string                           { return a.id }
func (a *ContainerAgent) Events() *pubsub.Bus[types.AgentEvent] { return a.events }
func (a *ContainerAgent) Metrics() Metrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metrics
}

// Execute creates, starts, and streams one container per instruction;
// the container is removed before Execute returns, win or lose.
func (a *ContainerAgent) Execute(ctx context.Context, instr Instruction) (Result, error) {
	argv := append(append([]string{}, a.cfg.Command...), instr.Content)
	created, err := a.cli.ContainerCreate(ctx,
		&dockercontainer.Config{
			Image:        a.cfg.Image,
			Cmd:          argv,
			Env:          a.cfg.Env,
			AttachStdout: true,
			AttachStderr: true,
		},
		&dockercontainer.HostConfig{},
		nil, nil, "",
	)
	if err != nil {
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("container create: %w", err)}
	}

	a.mu.Lock()
	a.containerID = created.ID
	a.mu.Unlock()
	defer a.remove(context.Background())

	if err := a.cli.ContainerStart(ctx, created.ID, dockercontainer.StartOptions{}); err != nil {
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("container start: %w", err)}
	}

	logs, err := a.cli.ContainerLogs(ctx, created.ID, dockercontainer.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("container logs: %w", err)}
	}
	defer logs.Close()

	var textOut []byte
	var resultEvt *ParsedEvent
	parser := NewStreamParser(func(e ParsedEvent) {
		a.translate(e)
		switch e.Kind {
		case "text":
			textOut = append(textOut, e.Text...)
		case "result":
			evt := e
			resultEvt = &evt
		}
	})

	copyDone := make(chan error, 1)
	go func() {
		_, cerr := stdcopy.StdCopy(parserWriter{parser}, parserWriter{parser}, logs)
		parser.Flush()
		copyDone <- cerr
	}()

	statusCh, errCh := a.cli.ContainerWait(ctx, created.ID, dockercontainer.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		a.stopAndRemove(context.Background())
		return Result{}, ctx.Err()

	case <-time.After(a.cfg.Policy.Timeout):
		a.stopAndRemove(context.Background())
		<-copyDone
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("execution timed out after %s", a.cfg.Policy.Timeout)}

	case werr := <-errCh:
		<-copyDone
		if werr != nil {
			return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: werr}
		}
		return Result{}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("container wait closed unexpectedly")}

	case status := <-statusCh:
		<-copyDone
		a.mu.Lock()
		a.metrics.ToolUseCount += parser.Metrics().ToolUseCount
		a.metrics.ToolResultCount += parser.Metrics().ToolResultCount
		a.metrics.TotalExecutionTimeMs += parser.Metrics().TotalExecutionTimeMs
		a.metrics.TokensUsed += parser.Metrics().TokensUsed
		a.mu.Unlock()

		output := string(textOut)
		success := status.StatusCode == 0
		if resultEvt != nil {
			success = resultEvt.Success
			if resultEvt.Message != "" {
				output = resultEvt.Message
			}
		}
		if !success {
			return Result{Success: false, Output: output}, &aidoserr.AgentExecutionError{AgentID: a.id, Cause: fmt.Errorf("container exited with status %d", status.StatusCode)}
		}
		return Result{
			Success:         true,
			Output:          output,
			TokensUsed:      parser.Metrics().TokensUsed,
			ExecutionTimeMs: parser.Metrics().TotalExecutionTimeMs,
		}, nil
	}
}

func (a *ContainerAgent) translate(e ParsedEvent) {
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

// Stop stops and removes the active container, same idiom as
// StopAndRemoveContainer.
func (a *ContainerAgent) Stop(ctx context.Context) error {
	a.stopAndRemove(ctx)
	return nil
}

func (a *ContainerAgent) stopAndRemove(ctx context.Context) {
	a.mu.Lock()
	id := a.containerID
	a.mu.Unlock()
	if id == "" {
		return
	}
	timeout := int(containerStopTimeout.Seconds())
	_ = a.cli.ContainerStop(ctx, id, dockercontainer.StopOptions{Timeout: &timeout})
	_ = a.cli.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true, RemoveVolumes: true})
}

func (a *ContainerAgent) remove(ctx context.Context) {
	a.mu.Lock()
	id := a.containerID
	a.mu.Unlock()
	if id == "" {
		return
	}
	_ = a.cli.ContainerRemove(ctx, id, dockercontainer.RemoveOptions{Force: true, RemoveVolumes: true})
}

var _ Agent = (*ContainerAgent)(nil)
