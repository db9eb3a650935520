// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"open-swarm/pkg/types"
)

func TestSaveWritesYAMLUnderHistorySubdir(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)

	rec := Record{
		SessionID:  "sess-1",
		Objective:  "build a widget",
		Status:     "completed",
		TaskCounts: TaskCounts{Completed: 3},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
		TokensUsed: 120,
		AgentCount: 4,
	}
	require.NoError(t, r.Save(rec))

	path := filepath.Join(dir, "history", "sess-1.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var roundTripped Record
	require.NoError(t, yaml.Unmarshal(data, &roundTripped))
	assert.Equal(t, rec.SessionID, roundTripped.SessionID)
	assert.Equal(t, rec.Objective, roundTripped.Objective)
	assert.Equal(t, rec.TaskCounts, roundTripped.TaskCounts)
	assert.Equal(t, rec.TokensUsed, roundTripped.TokensUsed)
}

func TestSaveOverwritesExistingRecordForSameSession(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir)

	require.NoError(t, r.Save(Record{SessionID: "sess-1", Status: "active"}))
	require.NoError(t, r.Save(Record{SessionID: "sess-1", Status: "completed"}))

	path := filepath.Join(dir, "history", "sess-1.yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec Record
	require.NoError(t, yaml.Unmarshal(data, &rec))
	assert.Equal(t, "completed", rec.Status)
}

func TestRecordFromSessionTalliesTaskCounts(t *testing.T) {
	sess := types.Session{ID: "sess-2", Objective: "do a thing", Status: types.SessionActive}
	tasks := []types.RuntimeTask{
		{Status: types.TaskPending},
		{Status: types.TaskInProgress},
		{Status: types.TaskCompleted},
		{Status: types.TaskCompleted},
		{Status: types.TaskFailed},
	}

	rec := RecordFromSession(sess, tasks, 500, 2)

	assert.Equal(t, "sess-2", rec.SessionID)
	assert.Equal(t, TaskCounts{Pending: 1, InProgress: 1, Completed: 2, Failed: 1}, rec.TaskCounts)
	assert.Equal(t, 500, rec.TokensUsed)
	assert.Equal(t, 2, rec.AgentCount)
}
