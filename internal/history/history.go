// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package history implements the session-history persistence format
// (SPEC_FULL §3.1): one YAML document per session under
// <output-dir>/history/<session-id>.yaml, written on every
// session:* event transition. This package only writes the record —
// reading it back for display is the out-of-scope "history show" CLI
// collaborator's job.
//
// Grounded on internal/config's YAML round-trip convention
// (gopkg.in/yaml.v3, ConfigError-shaped wrapped errors for marshal/
// write failures).
package history

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/types"
)

// TaskCounts tallies runtime tasks by status at the moment a record is
// saved.
type TaskCounts struct {
	Pending    int `yaml:"pending"`
	InProgress int `yaml:"in_progress"`
	Completed  int `yaml:"completed"`
	Failed     int `yaml:"failed"`
}

// Record is the persisted shape of one session, per SPEC_FULL §3.1.
type Record struct {
	SessionID  string     `yaml:"sessionId"`
	Objective  string     `yaml:"objective"`
	Status     string     `yaml:"status"`
	TaskCounts TaskCounts `yaml:"taskCounts"`
	CreatedAt  time.Time  `yaml:"createdAt"`
	UpdatedAt  time.Time  `yaml:"updatedAt"`
	TokensUsed int        `yaml:"tokensUsed"`
	AgentCount int        `yaml:"agentCount"`
}

// Recorder writes session history records under one output directory.
type Recorder struct {
	dir string
}

// NewRecorder returns a Recorder that writes under
// <outputDir>/history/.
func NewRecorder(outputDir string) *Recorder {
	return &Recorder{dir: filepath.Join(outputDir, "history")}
}

// Save writes rec to <dir>/<sessionId>.yaml, creating the history
// directory if it doesn't exist yet. Overwrites any previous record for
// the same session, since a session's history file reflects its latest
// known state, not an append-only log.
func (r *Recorder) Save(rec Record) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return &aidoserr.ConfigError{Field: "history.dir", Message: "failed to create history directory: " + err.Error()}
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return &aidoserr.ConfigError{Field: "(root)", Message: "failed to marshal history record: " + err.Error()}
	}

	path := filepath.Join(r.dir, rec.SessionID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &aidoserr.ConfigError{Field: "(root)", Message: "failed to write history record: " + err.Error()}
	}
	return nil
}

// RecordFromSession builds a Record from a session and its tasks, the
// shape Save expects.
func RecordFromSession(sess types.Session, tasks []types.RuntimeTask, tokensUsed, agentCount int) Record {
	var counts TaskCounts
	for _, t := range tasks {
		switch t.Status {
		case types.TaskPending:
			counts.Pending++
		case types.TaskInProgress:
			counts.InProgress++
		case types.TaskCompleted:
			counts.Completed++
		case types.TaskFailed:
			counts.Failed++
		}
	}
	return Record{
		SessionID:  sess.ID,
		Objective:  sess.Objective,
		Status:     string(sess.Status),
		TaskCounts: counts,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  sess.UpdatedAt,
		TokensUsed: tokensUsed,
		AgentCount: agentCount,
	}
}
