// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"open-swarm/internal/subprocess"
	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/types"
)

func fastBackendFactory(id string, role types.AgentRole) subprocess.Agent {
	return subprocess.NewMockAgent(id, 5*time.Millisecond)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.BackendFactory = fastBackendFactory
	opts.MaxSessionDurationMs = 60000
	return opts
}

func TestStartSessionAutoStartRunsToCompletion(t *testing.T) {
	o := New(testOptions())
	err := o.StartSession(context.Background(), "build a widget")
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, o.Phase())
	assert.Equal(t, types.SessionCompleted, o.Session().Status)

	tasks := o.Tasks()
	require.Len(t, tasks, 3) // generic template: design -> implement -> test
	for _, task := range tasks {
		assert.Equal(t, types.TaskCompleted, task.Status)
		assert.Equal(t, 100, task.Progress)
		assert.NotEmpty(t, task.Output)
	}
}

func TestStartSessionRejectsSecondCallWhileActive(t *testing.T) {
	opts := testOptions()
	opts.AutoStart = false
	o := New(opts)

	require.NoError(t, o.StartSession(context.Background(), "build a widget"))
	assert.Equal(t, PhasePlanning, o.Phase())

	err := o.StartSession(context.Background(), "build another widget")
	require.Error(t, err)
	var stateErr *aidoserr.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "startSession", stateErr.Operation)
}

func TestExecuteRejectsWrongPhase(t *testing.T) {
	o := New(testOptions())
	err := o.Execute(context.Background())
	require.Error(t, err)
	var stateErr *aidoserr.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, PhaseIdle, o.Phase())
}

func TestPauseRequiresExecutingPhase(t *testing.T) {
	o := New(testOptions())
	err := o.Pause(context.Background())
	require.Error(t, err)
	var stateErr *aidoserr.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
}

func TestPauseThenResumeCompletesSession(t *testing.T) {
	opts := testOptions()
	opts.AutoStart = false
	o := New(opts)

	require.NoError(t, o.StartSession(context.Background(), "build a widget"))
	require.Equal(t, PhasePlanning, o.Phase())

	// Simulate having reached executing without running any task yet,
	// the way Execute() leaves things the instant before its wave loop.
	o.mu.Lock()
	o.phase = PhaseExecuting
	o.session.Status = types.SessionActive
	o.mu.Unlock()

	require.NoError(t, o.Pause(context.Background()))
	assert.Equal(t, PhasePaused, o.Phase())
	assert.Equal(t, types.SessionPaused, o.Session().Status)

	require.NoError(t, o.Resume(context.Background()))
	assert.Equal(t, PhaseCompleted, o.Phase())
	assert.Equal(t, types.SessionCompleted, o.Session().Status)

	for _, task := range o.Tasks() {
		assert.Equal(t, types.TaskCompleted, task.Status)
	}
}

func TestBudgetGateFailsSessionWhenTokensExhausted(t *testing.T) {
	opts := testOptions()
	// The generic template's first task ("Design solution") costs more
	// than this under the mock agent's deterministic len(content)*4
	// token estimate, so the gate trips before the second group runs.
	opts.MaxTotalTokens = 50
	o := New(opts)

	err := o.StartSession(context.Background(), "build a widget")
	require.Error(t, err)
	var budgetErr *aidoserr.BudgetError
	require.ErrorAs(t, err, &budgetErr)

	assert.Equal(t, PhaseFailed, o.Phase())
	assert.Equal(t, types.SessionFailed, o.Session().Status)

	tasks := o.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, types.TaskCompleted, tasks[0].Status) // first group ran before the gate tripped
}

func TestRunGroupRetriesAroundResourceLimit(t *testing.T) {
	opts := testOptions()
	opts.MaxConcurrentAgents = 1 // forces contention within a >1-task parallel group
	o := New(opts)

	// "login" matches the login template: 5 tasks, a middle group of 2
	// and a final group of 2, both requiring the retry-around-the-gate
	// path to complete at all under maxConcurrent=1.
	err := o.StartSession(context.Background(), "implement login")
	require.NoError(t, err)

	assert.Equal(t, PhaseCompleted, o.Phase())
	tasks := o.Tasks()
	require.Len(t, tasks, 5)
	for _, task := range tasks {
		assert.Equal(t, types.TaskCompleted, task.Status)
	}
}

func TestAgentManagerAccessorReflectsSession(t *testing.T) {
	o := New(testOptions())
	require.Nil(t, o.AgentManager())

	require.NoError(t, o.StartSession(context.Background(), "build a widget"))
	mgr := o.AgentManager()
	require.NotNil(t, mgr)

	summaries := mgr.GetAgentSummaries()
	assert.NotEmpty(t, summaries) // at least the root PM agent remains registered
}

func TestScheduleIsPopulatedForReporting(t *testing.T) {
	o := New(testOptions())
	require.NoError(t, o.StartSession(context.Background(), "build a widget"))

	sched := o.Schedule()
	assert.Len(t, sched.ScheduledTasks, 3)
	assert.Greater(t, sched.TotalEstimatedTime, time.Duration(0))
}
