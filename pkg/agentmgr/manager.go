// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package agentmgr implements the Agent Manager (spec §4.4): a
// per-session registry of running agents, their parent/child
// ownership, and their lifecycle transitions. Destroy is grounded on
// internal/mergequeue/kill_switch.go's leaf-first, TOCTOU-safe,
// timeout-bounded cascade — generalized from branch-kill to agent
// teardown and from child-id slices under one mutex to the same
// pattern applied to this package's agent registry.
package agentmgr

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"open-swarm/internal/subprocess"
	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// DefaultDestroyTimeout bounds a single destroy cascade, the way
// kill_switch.go bounds killDependentBranchesWithTimeout at
// KillSwitchTimeout*10.
const DefaultDestroyTimeout = 30 * time.Second

// SpawnOptions configures one spawn call.
type SpawnOptions struct {
	Role     types.AgentRole
	Mission  string
	ParentID string
	Backend  subprocess.Agent
}

// statusTransitions lists the allowed agent status edges per §4.4.
// Transitions outside this set are logged as warnings but permitted,
// to preserve liveness on recovery.
var statusTransitions = map[types.AgentStatus][]types.AgentStatus{
	types.AgentIdle:      {types.AgentThinking},
	types.AgentThinking:  {types.AgentExecuting, types.AgentError, types.AgentIdle},
	types.AgentExecuting: {types.AgentDone, types.AgentBlocked, types.AgentError, types.AgentIdle},
	types.AgentBlocked:   {types.AgentExecuting, types.AgentError, types.AgentIdle},
	types.AgentDone:      {types.AgentIdle},
	types.AgentError:     {types.AgentIdle},
}

// Manager is a per-session registry of agents and their backends.
type Manager struct {
	mu             sync.RWMutex
	maxConcurrent  int
	destroyTimeout time.Duration
	agents         map[string]*types.Agent
	backends       map[string]subprocess.Agent
	unsubscribers  map[string]func()
	events         *pubsub.Bus[types.AgentEvent]
	taskEvents     *pubsub.Bus[types.TaskEvent]
	logger         *slog.Logger
}

// New creates a Manager enforcing maxConcurrent simultaneous
// thinking/executing agents.
func New(maxConcurrent int) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Manager{
		maxConcurrent:  maxConcurrent,
		destroyTimeout: DefaultDestroyTimeout,
		agents:         make(map[string]*types.Agent),
		backends:       make(map[string]subprocess.Agent),
		unsubscribers:  make(map[string]func()),
		events:         pubsub.New[types.AgentEvent](),
		taskEvents:     pubsub.New[types.TaskEvent](),
		logger:         slog.Default(),
	}
}

// Events returns the agent:* bus, fed both by this manager's own
// lifecycle events and by every spawned backend's wired-in events.
func (m *Manager) Events() *pubsub.Bus[types.AgentEvent] { return m.events }

// TaskEvents returns the task_assigned/task_completed/error bus.
func (m *Manager) TaskEvents() *pubsub.Bus[types.TaskEvent] { return m.taskEvents }

// activeCount returns the number of agents currently thinking or
// executing. Must be called with mu held.
func (m *Manager) activeCount() int {
	n := 0
	for _, a := range m.agents {
		if a.Status == types.AgentThinking || a.Status == types.AgentExecuting {
			n++
		}
	}
	return n
}

// Spawn registers a new agent backed by opts.Backend. Fails with a
// ResourceLimitError if maxConcurrent active agents are already
// running.
func (m *Manager) Spawn(opts SpawnOptions) (types.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.activeCount() >= m.maxConcurrent {
		m.events.Publish(types.AgentEvent{Kind: "limit_reached"})
		return types.Agent{}, &aidoserr.ResourceLimitError{Limit: m.maxConcurrent}
	}

	a := &types.Agent{
		ID:      types.NewAgentID(),
		Role:    opts.Role,
		Mission: opts.Mission,
		Status:  types.AgentIdle,
	}
	if opts.ParentID != "" {
		if parent, ok := m.agents[opts.ParentID]; ok {
			a.ParentID = opts.ParentID
			parent.Children = append(parent.Children, a.ID)
			parent.Metrics.ChildrenSpawned++
		}
	}

	m.agents[a.ID] = a
	if opts.Backend != nil {
		m.backends[a.ID] = opts.Backend
		m.unsubscribers[a.ID] = opts.Backend.Events().Subscribe(func(e types.AgentEvent) {
			e.Agent = *a
			m.events.Publish(e)
		})
	}

	m.events.Publish(types.AgentEvent{Kind: "spawned", Agent: a.Clone()})
	return a.Clone(), nil
}

// Destroy recursively destroys id leaf-first: children first
// (concurrently, each under its own timeout-bounded context), then the
// agent itself, then unregisters it and fixes up its parent's child
// list. Idempotent: destroying an unknown id is a no-op. Bounds the
// whole cascade the way killDependentBranchesWithTimeout wraps
// killDependentBranchesRecursive.
func (m *Manager) Destroy(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.destroyTimeout*10)
	defer cancel()
	return m.destroy(ctx, id)
}

func (m *Manager) destroy(ctx context.Context, id string) error {
	m.mu.RLock()
	agent, exists := m.agents[id]
	if !exists {
		m.mu.RUnlock()
		return nil
	}
	children := append([]string{}, agent.Children...) // TOCTOU-safe snapshot
	m.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, childID := range children {
		wg.Add(1)
		go func(childID string) {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := m.destroy(ctx, childID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(childID)
	}
	wg.Wait()

	m.mu.Lock()
	backend := m.backends[id]
	unsub := m.unsubscribers[id]
	m.mu.Unlock()

	if backend != nil {
		stopCtx, cancel := context.WithTimeout(ctx, m.destroyTimeout)
		stopErr := backend.Stop(stopCtx)
		cancel()
		if stopErr != nil && firstErr == nil {
			firstErr = stopErr
		}
	}
	if unsub != nil {
		unsub()
	}

	m.mu.Lock()
	delete(m.agents, id)
	delete(m.backends, id)
	delete(m.unsubscribers, id)
	if agent.ParentID != "" {
		if parent, ok := m.agents[agent.ParentID]; ok {
			parent.Children = removeString(parent.Children, id)
		}
	}
	m.mu.Unlock()

	m.events.Publish(types.AgentEvent{Kind: "destroyed", Agent: agent.Clone()})
	return firstErr
}

func removeString(ss []string, target string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

// AssignTask builds an instruction from task (priority mapped per
// §4.4: <=1 high, <=2 normal, else low), invokes the agent's backend,
// and emits task_assigned/task_completed/error.
func (m *Manager) AssignTask(ctx context.Context, agentID string, task types.Task) (subprocess.Result, error) {
	m.mu.Lock()
	agent, ok := m.agents[agentID]
	if !ok {
		m.mu.Unlock()
		return subprocess.Result{}, &aidoserr.InvalidStateError{Operation: "assignTask", State: "unknown agent " + agentID}
	}
	backend := m.backends[agentID]
	m.setStatusLocked(agent, types.AgentExecuting)
	m.mu.Unlock()

	instr := subprocess.Instruction{
		Type:     "task",
		Content:  task.Description,
		Priority: subprocess.PriorityFromTaskPriority(task.Priority),
	}
	m.taskEvents.Publish(types.TaskEvent{Kind: "assigned", Task: types.RuntimeTask{Task: task.Clone(), AgentID: agentID}})

	if backend == nil {
		m.mu.Lock()
		m.setStatusLocked(agent, types.AgentError)
		m.mu.Unlock()
		err := &aidoserr.InvalidStateError{Operation: "assignTask", State: "agent has no backend"}
		m.taskEvents.Publish(types.TaskEvent{Kind: "failed", Task: types.RuntimeTask{Task: task.Clone(), AgentID: agentID}})
		return subprocess.Result{}, err
	}

	result, err := backend.Execute(ctx, instr)

	m.mu.Lock()
	if err != nil {
		agent.Metrics.TasksFailed++
		m.setStatusLocked(agent, types.AgentError)
	} else {
		agent.Metrics.TasksCompleted++
		agent.Metrics.TokensUsed += result.TokensUsed
		agent.Metrics.ExecutionTimeMs += result.ExecutionTimeMs
		m.setStatusLocked(agent, types.AgentDone)
	}
	m.mu.Unlock()

	rt := types.RuntimeTask{Task: task.Clone(), AgentID: agentID, Output: result.Output}
	if err != nil {
		rt.Status = types.TaskFailed
		m.taskEvents.Publish(types.TaskEvent{Kind: "failed", Task: rt})
	} else {
		rt.Status = types.TaskCompleted
		rt.Progress = 100
		m.taskEvents.Publish(types.TaskEvent{Kind: "completed", Task: rt})
	}
	return result, err
}

// SetStatus transitions agent id to status. Invalid transitions are
// logged as warnings but permitted.
func (m *Manager) SetStatus(id string, status types.AgentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agent, ok := m.agents[id]
	if !ok {
		return
	}
	m.setStatusLocked(agent, status)
}

func (m *Manager) setStatusLocked(agent *types.Agent, status types.AgentStatus) {
	allowed := statusTransitions[agent.Status]
	valid := false
	for _, s := range allowed {
		if s == status {
			valid = true
			break
		}
	}
	if !valid && status != types.AgentError && status != types.AgentIdle {
		m.logger.Warn("invalid agent status transition", "agent", agent.ID, "from", agent.Status, "to", status)
	}
	agent.Status = status
	m.events.Publish(types.AgentEvent{Kind: "status_changed", Agent: agent.Clone()})
}

// GetAggregatedMetrics sums per-agent metrics across the session.
func (m *Manager) GetAggregatedMetrics() types.AgentMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total types.AgentMetrics
	for _, a := range m.agents {
		total.TokensUsed += a.Metrics.TokensUsed
		total.ExecutionTimeMs += a.Metrics.ExecutionTimeMs
		total.TasksCompleted += a.Metrics.TasksCompleted
		total.TasksFailed += a.Metrics.TasksFailed
		total.ChildrenSpawned += a.Metrics.ChildrenSpawned
	}
	return total
}

// TreeNode is one node of the forest buildAgentTree returns.
type TreeNode struct {
	Agent    types.Agent
	Children []TreeNode
	Depth    int
}

// BuildAgentTree yields a forest rooted at every agent with no parent.
func (m *Manager) BuildAgentTree() []TreeNode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var roots []string
	for id, a := range m.agents {
		if a.ParentID == "" {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)

	var build func(id string, depth int) TreeNode
	build = func(id string, depth int) TreeNode {
		a := m.agents[id]
		node := TreeNode{Agent: a.Clone(), Depth: depth}
		children := append([]string{}, a.Children...)
		sort.Strings(children)
		for _, childID := range children {
			if _, ok := m.agents[childID]; ok {
				node.Children = append(node.Children, build(childID, depth+1))
			}
		}
		return node
	}

	tree := make([]TreeNode, 0, len(roots))
	for _, id := range roots {
		tree = append(tree, build(id, 0))
	}
	return tree
}

// GetAgentSummaries returns a copy of every registered agent.
func (m *Manager) GetAgentSummaries() []types.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAgentsByRole filters agents by role.
func (m *Manager) GetAgentsByRole(role types.AgentRole) []types.Agent {
	return filterAgents(m.GetAgentSummaries(), func(a types.Agent) bool { return a.Role == role })
}

// GetAgentsByStatus filters agents by status.
func (m *Manager) GetAgentsByStatus(status types.AgentStatus) []types.Agent {
	return filterAgents(m.GetAgentSummaries(), func(a types.Agent) bool { return a.Status == status })
}

func filterAgents(agents []types.Agent, pred func(types.Agent) bool) []types.Agent {
	out := make([]types.Agent, 0)
	for _, a := range agents {
		if pred(a) {
			out = append(out, a)
		}
	}
	return out
}

// Get returns a copy of one agent.
func (m *Manager) Get(id string) (types.Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	if !ok {
		return types.Agent{}, false
	}
	return a.Clone(), true
}

// CountActive returns the number of currently thinking/executing agents.
func (m *Manager) CountActive() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeCount()
}

// StopAll stops every agent's backend without unregistering the agent
// or touching its task's persistent status, for the Orchestrator's
// pause (spec §4.6): the agent roster and parent/child tree survive a
// pause, only the running backends are torn down.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.backends))
	for id := range m.backends {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.mu.RLock()
			backend := m.backends[id]
			m.mu.RUnlock()
			if backend == nil {
				return
			}
			stopCtx, cancel := context.WithTimeout(ctx, m.destroyTimeout)
			defer cancel()
			if err := backend.Stop(stopCtx); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return firstErr
}
