// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package optimizer implements the Resource Optimizer / Scheduler
// (spec §4.3): it turns a task list plus a dependency graph into a
// worker-assigned schedule, and tracks worker state across the
// lifetime of that schedule.
package optimizer

import (
	"fmt"
	"sort"
	"time"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/graph"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// Strategy picks a worker for a task.
type Strategy string

const (
	StrategyRoundRobin      Strategy = "round_robin"
	StrategyLeastLoaded     Strategy = "least_loaded"
	StrategyComplexityAware Strategy = "complexity_aware"
	StrategyCategoryAware   Strategy = "category_aware"
)

// Options configures a Scheduler.
type Options struct {
	MaxWorkers        int
	Strategy          Strategy
	CriticalPathBoost int
	AssignTimeout     time.Duration
	TaskTimeout       time.Duration
}

// DefaultOptions mirrors the teacher's timeout-defaulting idiom (see
// internal/opencode/executor.go's ExecuteRequest.Validate): a zero
// value on a caller-supplied Options is filled in rather than treated
// as "no timeout".
func DefaultOptions() Options {
	return Options{
		MaxWorkers:        4,
		Strategy:          StrategyLeastLoaded,
		CriticalPathBoost: 2,
		AssignTimeout:     30 * time.Second,
		TaskTimeout:       10 * time.Minute,
	}
}

// Schedule is the result of createSchedule.
type Schedule struct {
	ScheduledTasks     []types.ScheduledTask
	TotalEstimatedTime time.Duration
	WorkerUtilization  map[string]float64
	Parallelism        float64
}

// Scheduler owns worker state and the active schedule for one session.
type Scheduler struct {
	opts    Options
	workers map[string]*types.WorkerState
	order   []string // worker ids in creation order, for round_robin cursor stability
	cursor  int

	scheduled map[string]*types.ScheduledTask
	events    *pubsub.Bus[types.ScheduleEvent]
	workerEvt *pubsub.Bus[types.WorkerEvent]
	taskEvt   *pubsub.Bus[types.TaskEvent]
}

// New creates a Scheduler with opts.MaxWorkers workers numbered w1..wN.
func New(opts Options) *Scheduler {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultOptions().MaxWorkers
	}
	if opts.Strategy == "" {
		opts.Strategy = DefaultOptions().Strategy
	}
	if opts.AssignTimeout <= 0 {
		opts.AssignTimeout = DefaultOptions().AssignTimeout
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = DefaultOptions().TaskTimeout
	}

	s := &Scheduler{
		opts:      opts,
		workers:   make(map[string]*types.WorkerState),
		scheduled: make(map[string]*types.ScheduledTask),
		events:    pubsub.New[types.ScheduleEvent](),
		workerEvt: pubsub.New[types.WorkerEvent](),
		taskEvt:   pubsub.New[types.TaskEvent](),
	}
	for i := 0; i < opts.MaxWorkers; i++ {
		id := fmt.Sprintf("w%d", i+1)
		s.workers[id] = &types.WorkerState{ID: id, Status: types.WorkerIdle}
		s.order = append(s.order, id)
	}
	return s
}

// Events returns the schedule:{created,updated} bus.
func (s *Scheduler) Events() *pubsub.Bus[types.ScheduleEvent] { return s.events }

// WorkerEvents returns the worker:{overloaded,completed,timeout} bus.
func (s *Scheduler) WorkerEvents() *pubsub.Bus[types.WorkerEvent] { return s.workerEvt }

// TaskEvents returns the task:{assigned,completed,failed} bus.
func (s *Scheduler) TaskEvents() *pubsub.Bus[types.TaskEvent] { return s.taskEvt }

// CreateSchedule builds a schedule for tasks using g for dependency and
// critical-path data. If g is nil, one is built from tasks.
func (s *Scheduler) CreateSchedule(tasks []types.Task, g *graph.Graph) Schedule {
	if g == nil {
		g = graph.New()
		g.BuildFromTasks(tasks)
	}

	criticalPath, _ := g.CriticalPath()
	onCriticalPath := make(map[string]bool, len(criticalPath))
	for _, id := range criticalPath {
		onCriticalPath[id] = true
	}

	adjusted := make(map[string]int, len(tasks))
	byID := make(map[string]types.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
		node, _ := g.Node(t.ID)
		adjusted[t.ID] = s.adjustedPriority(t, onCriticalPath[t.ID], len(node.Dependents))
	}

	order := make([]string, len(tasks))
	for i, t := range tasks {
		order[i] = t.ID
	}
	sort.SliceStable(order, func(i, j int) bool { return adjusted[order[i]] < adjusted[order[j]] })

	timeline := make(map[string]time.Duration, len(s.workers))
	startOf := make(map[string]time.Duration, len(tasks))
	durationOf := make(map[string]time.Duration, len(tasks))
	s.scheduled = make(map[string]*types.ScheduledTask, len(tasks))

	rrCursor := 0
	samples := make([]int, 100)
	inFlight := func(now time.Duration) int {
		n := 0
		for id := range byID {
			st, ok := startOf[id]
			if !ok {
				continue
			}
			if now >= st && now < st+durationOf[id] {
				n++
			}
		}
		return n
	}

	for _, id := range order {
		task := byID[id]
		duration := task.Complexity.EstimatedDuration()
		durationOf[id] = duration

		workerID, newCursor := s.pickWorker(task, timeline, rrCursor)
		rrCursor = newCursor

		depStart := time.Duration(0)
		node, _ := g.Node(id)
		for depID := range node.Dependencies {
			end := startOf[depID] + durationOf[depID]
			if end > depStart {
				depStart = end
			}
		}
		start := timeline[workerID]
		if depStart > start {
			start = depStart
		}

		startOf[id] = start
		timeline[workerID] = start + duration

		st := types.ScheduledTask{
			RuntimeTask:       types.RuntimeTask{Task: task.Clone(), Status: types.TaskPending},
			WorkerID:          workerID,
			ScheduledTime:     start,
			EstimatedDuration: duration,
			AdjustedPriority:  adjusted[id],
			Status:            types.ScheduleScheduled,
		}
		s.scheduled[id] = &st
	}

	totalTime := time.Duration(0)
	for _, end := range timeline {
		if end > totalTime {
			totalTime = end
		}
	}

	if totalTime > 0 {
		step := totalTime / 100
		if step <= 0 {
			step = 1
		}
		for i := 0; i < 100; i++ {
			samples[i] = inFlight(time.Duration(i) * step)
		}
	}
	parallelism := average(samples)

	utilization := make(map[string]float64, len(s.workers))
	for id := range s.workers {
		busy := time.Duration(0)
		for _, st := range s.scheduled {
			if st.WorkerID == id {
				busy += st.EstimatedDuration
			}
		}
		if totalTime > 0 {
			utilization[id] = float64(busy) / float64(totalTime)
		}
	}

	s.events.Publish(types.ScheduleEvent{Kind: "created", TotalEstimatedTime: totalTime, Parallelism: parallelism})

	result := make([]types.ScheduledTask, 0, len(order))
	for _, id := range order {
		result = append(result, *s.scheduled[id])
	}
	return Schedule{
		ScheduledTasks:     result,
		TotalEstimatedTime: totalTime,
		WorkerUtilization:  utilization,
		Parallelism:        parallelism,
	}
}

func average(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, v := range samples {
		sum += v
	}
	return float64(sum) / float64(len(samples))
}

// adjustedPriority implements §4.3's formula, clamped to >= 1.
func (s *Scheduler) adjustedPriority(t types.Task, onCriticalPath bool, dependentCount int) int {
	p := t.Priority
	if onCriticalPath {
		p -= s.opts.CriticalPathBoost
	}
	if t.Complexity == types.ComplexityHigh {
		p--
	}
	if dependentCount >= 2 {
		p--
	}
	if p < 1 {
		p = 1
	}
	return p
}

// pickWorker selects a worker per s.opts.Strategy. Returns the chosen
// worker id and the round_robin cursor to use for the next call.
func (s *Scheduler) pickWorker(task types.Task, timeline map[string]time.Duration, rrCursor int) (string, int) {
	strategy := s.opts.Strategy
	if strategy == StrategyComplexityAware {
		switch task.Complexity {
		case types.ComplexityHigh, types.ComplexityMedium:
			strategy = StrategyLeastLoaded
		default:
			strategy = StrategyRoundRobin
		}
	}
	if strategy == StrategyCategoryAware {
		strategy = StrategyLeastLoaded
	}

	switch strategy {
	case StrategyRoundRobin:
		id := s.order[rrCursor%len(s.order)]
		return id, rrCursor + 1
	default: // least_loaded
		best := s.order[0]
		for _, id := range s.order {
			if timeline[id] < timeline[best] {
				best = id
			}
		}
		return best, rrCursor
	}
}

// AssignTask transitions worker to busy and the scheduled task to
// running. Succeeds only if both exist and the worker is idle.
func (s *Scheduler) AssignTask(taskID, workerID string) error {
	w, ok := s.workers[workerID]
	if !ok {
		return &aidoserr.InvalidStateError{Operation: "assignTask", State: fmt.Sprintf("worker %q unknown", workerID)}
	}
	st, ok := s.scheduled[taskID]
	if !ok {
		return &aidoserr.InvalidStateError{Operation: "assignTask", State: fmt.Sprintf("task %q unknown", taskID)}
	}
	if w.Status != types.WorkerIdle {
		return &aidoserr.InvalidStateError{Operation: "assignTask", State: fmt.Sprintf("worker %q not idle", workerID)}
	}

	w.Status = types.WorkerBusy
	w.CurrentTaskID = taskID
	st.Status = types.ScheduleRunning
	st.RuntimeTask.Status = types.TaskInProgress

	s.taskEvt.Publish(types.TaskEvent{Kind: "assigned", Task: st.RuntimeTask})
	return nil
}

// CompleteTask flips the scheduled task to completed, frees the
// worker, and accumulates worker metrics.
func (s *Scheduler) CompleteTask(taskID string, duration time.Duration) error {
	st, ok := s.scheduled[taskID]
	if !ok {
		return &aidoserr.InvalidStateError{Operation: "completeTask", State: fmt.Sprintf("task %q unknown", taskID)}
	}
	st.Status = types.ScheduleCompleted
	st.RuntimeTask.Status = types.TaskCompleted
	st.RuntimeTask.Progress = 100

	if w, ok := s.workers[st.WorkerID]; ok {
		w.Status = types.WorkerIdle
		w.CurrentTaskID = ""
		w.CompletedTasks++
		w.TotalExecutionTime += duration
		w.Load = float64(w.TotalExecutionTime) / float64(w.CompletedTasks)
		s.workerEvt.Publish(types.WorkerEvent{Kind: "completed", WorkerID: w.ID, TaskID: taskID})
	}

	s.taskEvt.Publish(types.TaskEvent{Kind: "completed", Task: st.RuntimeTask})
	return nil
}

// FailTask mirrors CompleteTask with status=failed.
func (s *Scheduler) FailTask(taskID string, reason string) error {
	st, ok := s.scheduled[taskID]
	if !ok {
		return &aidoserr.InvalidStateError{Operation: "failTask", State: fmt.Sprintf("task %q unknown", taskID)}
	}
	st.Status = types.ScheduleFailed
	st.RuntimeTask.Status = types.TaskFailed
	st.RuntimeTask.Output = reason

	if w, ok := s.workers[st.WorkerID]; ok {
		w.Status = types.WorkerIdle
		w.CurrentTaskID = ""
	}

	s.taskEvt.Publish(types.TaskEvent{Kind: "failed", Task: st.RuntimeTask})
	return nil
}

// GetNextTasks returns ready tasks (all deps in completed) capped by
// the number of currently idle workers.
func (s *Scheduler) GetNextTasks(completed map[string]bool) []string {
	idleCount := 0
	for _, w := range s.workers {
		if w.Status == types.WorkerIdle {
			idleCount++
		}
	}

	ready := make([]string, 0)
	for id, st := range s.scheduled {
		if completed[id] || st.RuntimeTask.Status != types.TaskPending {
			continue
		}
		ready = append(ready, id)
	}
	sort.Slice(ready, func(i, j int) bool {
		return s.scheduled[ready[i]].AdjustedPriority < s.scheduled[ready[j]].AdjustedPriority
	})
	if len(ready) > idleCount {
		ready = ready[:idleCount]
	}
	return ready
}

// SetWorkerCount upsizes freely; downsizing removes only idle workers
// from the tail of s.order.
func (s *Scheduler) SetWorkerCount(n int) {
	if n > len(s.order) {
		for i := len(s.order); i < n; i++ {
			id := fmt.Sprintf("w%d", i+1)
			s.workers[id] = &types.WorkerState{ID: id, Status: types.WorkerIdle}
			s.order = append(s.order, id)
		}
		return
	}
	for len(s.order) > n {
		last := s.order[len(s.order)-1]
		if s.workers[last].Status != types.WorkerIdle {
			break // cannot remove a busy worker; stop shrinking here
		}
		delete(s.workers, last)
		s.order = s.order[:len(s.order)-1]
	}
}

// IsLoadImbalanced reports whether (max-min)/max exceeds threshold
// across workers' cumulative execution times.
func (s *Scheduler) IsLoadImbalanced(threshold float64) bool {
	if len(s.workers) == 0 {
		return false
	}
	var min, max time.Duration
	first := true
	for _, w := range s.workers {
		if first {
			min, max = w.TotalExecutionTime, w.TotalExecutionTime
			first = false
			continue
		}
		if w.TotalExecutionTime < min {
			min = w.TotalExecutionTime
		}
		if w.TotalExecutionTime > max {
			max = w.TotalExecutionTime
		}
	}
	if max == 0 {
		return false
	}
	return float64(max-min)/float64(max) > threshold
}

// WorkerState returns a copy of one worker's state.
func (s *Scheduler) WorkerState(id string) (types.WorkerState, bool) {
	w, ok := s.workers[id]
	if !ok {
		return types.WorkerState{}, false
	}
	return *w, true
}
