// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package orchestrator implements the Orchestrator (spec §4.6): the
// session-level state machine that decomposes an objective, builds its
// dependency graph, and drives group-by-group execution through a
// session-scoped Agent Manager, subject to a budget gate and pause/
// resume.
//
// Grounded on internal/orchestration/coordinator.go's Execute/
// executeAgentWave/getReadyAgents shape (goroutine-per-task wave
// execution, WaitGroup, success/failure bookkeeping), generalized from
// a flat dependency map to pkg/graph's parallel groups and from a
// single execution pass to the spec's full
// idle/decomposing/planning/executing/paused/completed/failed state
// machine.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"open-swarm/internal/decomposer"
	"open-swarm/internal/history"
	"open-swarm/internal/optimizer"
	"open-swarm/internal/subprocess"
	"open-swarm/internal/telemetry"
	"open-swarm/pkg/agentmgr"
	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/graph"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

const tracerName = "open-swarm/internal/orchestrator"

// Phase is the Orchestrator's own state, distinct from the coarser
// types.SessionStatus a Session reports externally.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseDecomposing Phase = "decomposing"
	PhasePlanning    Phase = "planning"
	PhaseExecuting   Phase = "executing"
	PhasePaused      Phase = "paused"
	PhaseCompleted   Phase = "completed"
	PhaseFailed      Phase = "failed"
)

// activePhases blocks a second startSession while any of these holds.
var activePhases = map[Phase]bool{
	PhaseDecomposing: true,
	PhasePlanning:    true,
	PhaseExecuting:   true,
	PhasePaused:      true,
}

// BackendFactory builds the subprocess backend a newly spawned agent
// runs against. Orchestrator never constructs a concrete backend type
// itself, mirroring the teacher's AgentSpawnerFunc callback indirection
// between Coordinator and however an agent actually runs.
type BackendFactory func(agentID string, role types.AgentRole) subprocess.Agent

// Options configures an Orchestrator for the lifetime of the process;
// Options do not change per session.
type Options struct {
	MaxConcurrentAgents    int
	MaxTotalTokens         int
	MaxSessionDurationMs   int64
	BudgetWarningThreshold float64
	MaxRetries             int
	AutoStart              bool
	SchedulerOptions       optimizer.Options
	BackendFactory         BackendFactory
	// OutputDir, when set, turns on session-history persistence
	// (spec §3.1): a record is saved under OutputDir/history/ on every
	// session:* transition. Left empty, history is not written.
	OutputDir string
}

// DefaultOptions mirrors optimizer.DefaultOptions's defaulting idiom.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentAgents:    4,
		MaxTotalTokens:         1000000,
		MaxSessionDurationMs:   3600000,
		BudgetWarningThreshold: 0.8,
		MaxRetries:             3,
		AutoStart:              true,
		SchedulerOptions:       optimizer.DefaultOptions(),
	}
}

// Orchestrator drives one session at a time through the full
// objective-to-terminal-status lifecycle.
type Orchestrator struct {
	mu   sync.Mutex
	opts Options

	phase     Phase
	session   types.Session
	startedAt time.Time

	tasks     map[string]*types.RuntimeTask
	order     []string
	graph     *graph.Graph
	scheduler *optimizer.Scheduler
	schedule  optimizer.Schedule

	agentMgr  *agentmgr.Manager
	pmAgentID string

	decomposer *decomposer.Decomposer
	recorder   *history.Recorder

	sessionEvents *pubsub.Bus[types.SessionEvent]
	phaseEvents   *pubsub.Bus[types.PhaseEvent]
	budgetEvents  *pubsub.Bus[types.BudgetEvent]

	logger *slog.Logger
}

// New creates an idle Orchestrator.
func New(opts Options) *Orchestrator {
	if opts.MaxConcurrentAgents <= 0 {
		opts.MaxConcurrentAgents = 4
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BudgetWarningThreshold <= 0 {
		opts.BudgetWarningThreshold = 0.8
	}
	o := &Orchestrator{
		opts:          opts,
		phase:         PhaseIdle,
		tasks:         make(map[string]*types.RuntimeTask),
		decomposer:    decomposer.New(),
		sessionEvents: pubsub.New[types.SessionEvent](),
		phaseEvents:   pubsub.New[types.PhaseEvent](),
		budgetEvents:  pubsub.New[types.BudgetEvent](),
		logger:        slog.Default(),
	}
	if opts.OutputDir != "" {
		o.recorder = history.NewRecorder(opts.OutputDir)
	}
	return o
}

// saveHistory persists the current session/task state, best-effort: a
// history write failure is logged but never fails the session it
// describes.
func (o *Orchestrator) saveHistory() {
	if o.recorder == nil {
		return
	}
	o.mu.Lock()
	sess := o.session
	tasks := make([]types.RuntimeTask, 0, len(o.tasks))
	for _, t := range o.tasks {
		tasks = append(tasks, t.Clone())
	}
	var tokensUsed, agentCount int
	if o.agentMgr != nil {
		metrics := o.agentMgr.GetAggregatedMetrics()
		tokensUsed = metrics.TokensUsed
		agentCount = len(o.agentMgr.GetAgentSummaries())
	}
	o.mu.Unlock()

	rec := history.RecordFromSession(sess, tasks, tokensUsed, agentCount)
	if err := o.recorder.Save(rec); err != nil {
		o.logger.Warn("failed to save session history", "sessionID", sess.ID, "error", err)
	}
}

// Events returns the session:{started,paused,resumed,completed,failed} bus.
func (o *Orchestrator) Events() *pubsub.Bus[types.SessionEvent] { return o.sessionEvents }

// PhaseEvents returns the phase-transition bus.
func (o *Orchestrator) PhaseEvents() *pubsub.Bus[types.PhaseEvent] { return o.phaseEvents }

// BudgetEvents returns the budget:{warning,exceeded} bus.
func (o *Orchestrator) BudgetEvents() *pubsub.Bus[types.BudgetEvent] { return o.budgetEvents }

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Session returns a copy of the current session record.
func (o *Orchestrator) Session() types.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// Tasks returns a snapshot of every task's runtime state.
func (o *Orchestrator) Tasks() []types.RuntimeTask {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]types.RuntimeTask, 0, len(o.tasks))
	for _, id := range o.order {
		if t, ok := o.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// AgentManager exposes the session-scoped Agent Manager for
// introspection (agent tree, summaries, metrics). Nil before the first
// startSession.
func (o *Orchestrator) AgentManager() *agentmgr.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.agentMgr
}

// Schedule returns the Optimizer's reporting-only schedule for the
// current session (Open Question (a): the schedule informs
// totalEstimatedTime/workerUtilization/parallelism but execution itself
// is driven from the Dependency Graph's parallel groups, not from this
// schedule).
func (o *Orchestrator) Schedule() optimizer.Schedule {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.schedule
}

func (o *Orchestrator) setPhase(p Phase) {
	from := o.phase
	o.phase = p
	o.phaseEvents.Publish(types.PhaseEvent{From: string(from), To: string(p), Timestamp: time.Now()})
}

// StartSession allocates a new session and runs the Task Decomposer
// and Dependency Graph build. If Options.AutoStart is set, execution
// begins immediately; otherwise the caller must call Execute. Fails
// with a non-retryable InvalidStateError if a session is already
// active.
func (o *Orchestrator) StartSession(ctx context.Context, objective string) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "orchestrator.StartSession")
	defer span.End()

	o.mu.Lock()
	if activePhases[o.phase] {
		state := o.phase
		o.mu.Unlock()
		err := &aidoserr.InvalidStateError{Operation: "startSession", State: string(state)}
		telemetry.RecordError(ctx, err)
		return err
	}

	o.session = types.Session{
		ID:        types.NewSessionID(),
		Objective: objective,
		Status:    types.SessionActive,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	o.startedAt = time.Now()
	o.agentMgr = agentmgr.New(o.opts.MaxConcurrentAgents)
	o.pmAgentID = ""
	o.tasks = make(map[string]*types.RuntimeTask)
	o.order = nil
	o.scheduler = optimizer.New(o.opts.SchedulerOptions)
	o.setPhase(PhaseDecomposing)
	sess := o.session
	o.mu.Unlock()

	span.SetAttributes(telemetry.SessionAttrs(sess.ID, sess.Objective, string(PhaseDecomposing))...)
	o.sessionEvents.Publish(types.SessionEvent{Kind: "started", Session: sess, Timestamp: time.Now()})
	o.saveHistory()

	decomposition, err := o.decomposer.Decompose(objective, decomposer.Options{SessionID: sess.ID})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return o.fail(err)
	}

	o.mu.Lock()
	o.graph = graph.New()
	o.graph.BuildFromTasks(decomposition.Tasks)
	o.order = o.graph.TopologicalSort()
	for _, t := range decomposition.Tasks {
		o.tasks[t.ID] = &types.RuntimeTask{Task: t.Clone(), Status: types.TaskPending}
	}
	o.schedule = o.scheduler.CreateSchedule(decomposition.Tasks, o.graph)
	o.setPhase(PhasePlanning)
	autoStart := o.opts.AutoStart
	o.mu.Unlock()

	if autoStart {
		return o.Execute(ctx)
	}
	return nil
}

// Execute drives the stored task graph to completion group by group.
// Valid from planning (the normal path) or paused (resume).
func (o *Orchestrator) Execute(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhasePlanning && o.phase != PhasePaused {
		state := o.phase
		o.mu.Unlock()
		return &aidoserr.InvalidStateError{Operation: "execute", State: string(state)}
	}
	o.setPhase(PhaseExecuting)
	o.session.Status = types.SessionActive
	o.session.UpdatedAt = time.Now()
	groups := o.graph.ParallelGroups()
	needsPM := o.pmAgentID == ""
	objective := o.session.Objective
	o.mu.Unlock()

	if needsPM {
		pm, err := o.agentMgr.Spawn(agentmgr.SpawnOptions{
			Role:    types.RolePM,
			Mission: objective,
			Backend: o.newBackend(types.RolePM),
		})
		if err != nil {
			return o.fail(err)
		}
		o.mu.Lock()
		o.pmAgentID = pm.ID
		o.mu.Unlock()
	}

	o.mu.Lock()
	parentID := o.pmAgentID
	o.mu.Unlock()

	for _, group := range groups {
		if err := o.budgetGate(); err != nil {
			return o.fail(err)
		}
		if err := o.runGroup(ctx, group, parentID); err != nil {
			return o.fail(err)
		}

		o.mu.Lock()
		active := o.session.Status == types.SessionActive
		o.mu.Unlock()
		if !active {
			return nil // paused or otherwise stopped mid-run; caller decides what's next
		}
	}

	return o.complete()
}

// runGroup spawns a PL agent per not-yet-completed task in the group
// and assigns it, concurrently, the way executeAgentWave runs one
// goroutine per ready agent under a WaitGroup. Unlike the teacher, task
// concurrency here is unbounded at this layer: the Agent Manager's own
// maxConcurrent gate provides back-pressure, and a spawn rejected with
// limit_reached waits for a sibling task to free a slot and retries, up
// to maxRetries.
func (o *Orchestrator) runGroup(ctx context.Context, taskIDs []string, parentID string) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(taskIDs))
	slotFreed := make(chan struct{}, len(taskIDs))

	for _, id := range taskIDs {
		o.mu.Lock()
		task := o.tasks[id]
		o.mu.Unlock()
		if task == nil || task.Status == types.TaskCompleted {
			continue
		}

		wg.Add(1)
		go func(taskID string) {
			defer wg.Done()
			if err := o.runTask(ctx, taskID, parentID, slotFreed); err != nil {
				errCh <- err
			}
		}(id)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, taskID, parentID string, slotFreed chan struct{}) error {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "orchestrator.runTask")
	defer span.End()
	span.SetAttributes(telemetry.TaskAttrs(taskID, string(types.TaskInProgress))...)

	o.mu.Lock()
	task := o.tasks[taskID]
	o.mu.Unlock()
	if task == nil {
		return nil
	}

	agent, err := o.spawnWithRetry(task, parentID, slotFreed)
	if err != nil {
		o.mu.Lock()
		task.Status = types.TaskFailed
		o.mu.Unlock()
		telemetry.RecordError(ctx, err)
		return err
	}
	span.SetAttributes(telemetry.AgentAttrs(agent.ID, string(agent.Role))...)

	o.mu.Lock()
	task.Status = types.TaskInProgress
	task.Progress = 50
	task.AgentID = agent.ID
	o.mu.Unlock()

	start := time.Now()
	result, execErr := o.agentMgr.AssignTask(ctx, agent.ID, task.Task)
	span.SetAttributes(telemetry.DurationAttrs(time.Since(start))...)

	o.mu.Lock()
	if execErr != nil {
		task.Status = types.TaskFailed
	} else {
		task.Status = types.TaskCompleted
		task.Progress = 100
		task.CompletedAt = time.Now()
		task.Output = result.Output
	}
	o.mu.Unlock()

	_ = o.agentMgr.Destroy(agent.ID)
	select {
	case slotFreed <- struct{}{}:
	default:
	}

	if execErr != nil {
		telemetry.RecordError(ctx, execErr)
	}
	return execErr
}

func (o *Orchestrator) spawnWithRetry(task *types.RuntimeTask, parentID string, slotFreed chan struct{}) (types.Agent, error) {
	attempts := 0
	for {
		agent, err := o.agentMgr.Spawn(agentmgr.SpawnOptions{
			Role:     types.RolePL,
			Mission:  task.Description,
			ParentID: parentID,
			Backend:  o.newBackend(types.RolePL),
		})
		if err == nil {
			return agent, nil
		}
		var limitErr *aidoserr.ResourceLimitError
		if !errors.As(err, &limitErr) {
			return types.Agent{}, err
		}
		attempts++
		if attempts > o.opts.MaxRetries {
			return types.Agent{}, err
		}
		<-slotFreed
	}
}

func (o *Orchestrator) newBackend(role types.AgentRole) subprocess.Agent {
	id := types.NewAgentID()
	if o.opts.BackendFactory != nil {
		return o.opts.BackendFactory(id, role)
	}
	return subprocess.NewMockAgent(id, 0)
}

// budgetGate raises a fatal BudgetError once cumulative tokens or
// elapsed wall time reach the configured caps, and publishes a
// non-fatal budget:warning once either ratio crosses
// BudgetWarningThreshold.
func (o *Orchestrator) budgetGate() error {
	o.mu.Lock()
	metrics := o.agentMgr.GetAggregatedMetrics()
	elapsed := time.Since(o.startedAt).Milliseconds()
	maxTokens := o.opts.MaxTotalTokens
	maxDuration := o.opts.MaxSessionDurationMs
	warnAt := o.opts.BudgetWarningThreshold
	o.mu.Unlock()

	if maxTokens > 0 && metrics.TokensUsed >= maxTokens || maxDuration > 0 && elapsed >= maxDuration {
		o.budgetEvents.Publish(types.BudgetEvent{
			Kind: "exceeded", TokensUsed: metrics.TokensUsed, MaxTokens: maxTokens,
			ElapsedMs: elapsed, MaxDurationMs: maxDuration, Timestamp: time.Now(),
		})
		return &aidoserr.BudgetError{
			Reason: "token or session duration budget exceeded", TokensUsed: metrics.TokensUsed,
			MaxTokens: maxTokens, ElapsedMs: elapsed, MaxDurationMs: maxDuration,
		}
	}

	tokenRatio := ratio(metrics.TokensUsed, maxTokens)
	durationRatio := ratio(int(elapsed), int(maxDuration))
	if tokenRatio >= warnAt || durationRatio >= warnAt {
		o.budgetEvents.Publish(types.BudgetEvent{
			Kind: "warning", TokensUsed: metrics.TokensUsed, MaxTokens: maxTokens,
			ElapsedMs: elapsed, MaxDurationMs: maxDuration, Timestamp: time.Now(),
		})
	}
	return nil
}

func ratio(used, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(used) / float64(max)
}

func (o *Orchestrator) complete() error {
	o.mu.Lock()
	o.setPhase(PhaseCompleted)
	o.session.Status = types.SessionCompleted
	o.session.UpdatedAt = time.Now()
	sess := o.session
	o.mu.Unlock()
	o.sessionEvents.Publish(types.SessionEvent{Kind: "completed", Session: sess, Timestamp: time.Now()})
	o.saveHistory()
	return nil
}

func (o *Orchestrator) fail(cause error) error {
	o.mu.Lock()
	o.setPhase(PhaseFailed)
	o.session.Status = types.SessionFailed
	o.session.UpdatedAt = time.Now()
	sess := o.session
	mgr := o.agentMgr
	o.mu.Unlock()

	if mgr != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := mgr.StopAll(stopCtx); err != nil {
			o.logger.Warn("error stopping agents after session failure", "error", err)
		}
		cancel()
	}

	o.sessionEvents.Publish(types.SessionEvent{Kind: "failed", Session: sess, Timestamp: time.Now()})
	o.saveHistory()
	return cause
}

// Pause stops every running agent's backend (but leaves the agent
// roster, task map, and every task's current persistent status
// untouched) and transitions to paused. Valid only from executing.
func (o *Orchestrator) Pause(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhaseExecuting {
		state := o.phase
		o.mu.Unlock()
		return &aidoserr.InvalidStateError{Operation: "pause", State: string(state)}
	}
	o.setPhase(PhasePaused)
	o.session.Status = types.SessionPaused
	o.session.UpdatedAt = time.Now()
	sess := o.session
	mgr := o.agentMgr
	o.mu.Unlock()

	if err := mgr.StopAll(ctx); err != nil {
		o.logger.Warn("error stopping agents on pause", "error", err)
	}

	o.sessionEvents.Publish(types.SessionEvent{Kind: "paused", Session: sess, Timestamp: time.Now()})
	o.saveHistory()
	return nil
}

// Resume re-enters Execute from paused. Any task still pending or
// in_progress gets a freshly spawned agent; completed tasks are
// skipped, per the Open Question (b) resolution.
func (o *Orchestrator) Resume(ctx context.Context) error {
	o.mu.Lock()
	if o.phase != PhasePaused {
		state := o.phase
		o.mu.Unlock()
		return &aidoserr.InvalidStateError{Operation: "resume", State: string(state)}
	}
	sess := o.session
	o.mu.Unlock()

	o.sessionEvents.Publish(types.SessionEvent{Kind: "resumed", Session: sess, Timestamp: time.Now()})
	o.saveHistory()
	return o.Execute(ctx)
}
