// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package temporalengine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"open-swarm/internal/subprocess"
	"open-swarm/pkg/types"
)

func TestDAGWorkflowSequentialSuccess(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activities := &TaskActivities{}
	env.OnActivity(activities.ExecuteTask, mock.Anything, mock.Anything).Return(subprocess.Result{Success: true, Output: "done"}, nil)

	input := WorkflowInput{
		SessionID: "sess-1",
		Objective: "build a widget",
		Tasks: []types.Task{
			{ID: "t1", Description: "design"},
			{ID: "t2", Description: "implement", Dependencies: []string{"t1"}},
		},
	}

	env.ExecuteWorkflow(DAGWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestDAGWorkflowParallelGroup(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activities := &TaskActivities{}
	env.OnActivity(activities.ExecuteTask, mock.Anything, mock.Anything).Return(subprocess.Result{Success: true, Output: "done"}, nil)

	input := WorkflowInput{
		SessionID: "sess-2",
		Objective: "implement login",
		Tasks: []types.Task{
			{ID: "t1", Description: "setup"},
			{ID: "t2", Description: "lint", Dependencies: []string{"t1"}},
			{ID: "t3", Description: "test", Dependencies: []string{"t1"}},
			{ID: "t4", Description: "build", Dependencies: []string{"t2", "t3"}},
		},
	}

	env.ExecuteWorkflow(DAGWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
}

func TestDAGWorkflowFailsOnTaskFailure(t *testing.T) {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	activities := &TaskActivities{}
	env.OnActivity(activities.ExecuteTask, mock.Anything, mock.Anything).Return(subprocess.Result{}, errors.New("boom"))

	input := WorkflowInput{
		SessionID: "sess-3",
		Objective: "build a widget",
		Tasks: []types.Task{
			{ID: "t1", Description: "design"},
		},
	}

	env.ExecuteWorkflow(DAGWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}
