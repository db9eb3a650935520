// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoFilePresent(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.API.Provider)
	assert.Equal(t, 4, cfg.Agents.MaxConcurrent)
	assert.Equal(t, 1000000, cfg.Budget.MaxTotalTokens)
}

func TestLoadAppliesExecutionDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "inprocess", cfg.Execution.Backend)
	assert.Equal(t, "aidos-tasks", cfg.Execution.TaskQueue)
	assert.Equal(t, "default", cfg.Execution.Namespace)
	assert.Equal(t, "localhost:7233", cfg.Execution.HostPort)
}

func TestValidateRejectsUnknownExecutionBackend(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	cfg.Execution.Backend = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestLoadReadsFirstMatchingSearchPath(t *testing.T) {
	dir := t.TempDir()
	content := `
api:
  provider: openai
  model: gpt-5
  maxTokens: 4096
agents:
  maxConcurrent: 8
  timeoutMs: 120000
budget:
  maxTotalTokens: 500000
  maxSessionDurationMs: 1800000
output:
  directory: /tmp/out
ui:
  theme: light
  logLines: 50
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aidos.config.yaml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.API.Provider)
	assert.Equal(t, "gpt-5", cfg.API.Model)
	assert.Equal(t, 8, cfg.Agents.MaxConcurrent)
	assert.Equal(t, 500000, cfg.Budget.MaxTotalTokens)
	assert.Equal(t, "/tmp/out", cfg.Output.Directory)
	assert.Equal(t, "light", cfg.UI.Theme)
}

func TestLoadFallsBackToAlternateSearchPathName(t *testing.T) {
	dir := t.TempDir()
	content := "api:\n  provider: cohere\n  model: command\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".aidos.yaml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "cohere", cfg.API.Provider)
}

func TestLoadEnvOverlayOverridesFile(t *testing.T) {
	dir := t.TempDir()
	content := "api:\n  provider: openai\n  model: gpt-5\nagents:\n  maxConcurrent: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aidos.config.yaml"), []byte(content), 0644))

	t.Setenv("AIDOS_AGENTS_MAXCONCURRENT", "16")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Agents.MaxConcurrent)
	assert.Equal(t, "openai", cfg.API.Provider)
}

func TestApplyOverridesIsHighestPrecedence(t *testing.T) {
	dir := t.TempDir()
	content := "agents:\n  maxConcurrent: 8\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "aidos.config.yaml"), []byte(content), 0644))
	t.Setenv("AIDOS_AGENTS_MAXCONCURRENT", "16")

	cfg, err := Load(dir)
	require.NoError(t, err)
	cfg.ApplyOverrides(map[string]any{"agents.maxConcurrent": 32})
	assert.Equal(t, 32, cfg.Agents.MaxConcurrent)
}

func TestValidateRejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		errContains string
	}{
		{"missing provider", func(c *Config) { c.API.Provider = "" }, "api.provider"},
		{"missing model", func(c *Config) { c.API.Model = "" }, "api.model"},
		{"zero max concurrent", func(c *Config) { c.Agents.MaxConcurrent = 0 }, "agents.maxConcurrent"},
		{"zero budget", func(c *Config) { c.Budget.MaxTotalTokens = 0 }, "budget.maxTotalTokens"},
		{"zero duration", func(c *Config) { c.Budget.MaxSessionDurationMs = 0 }, "budget.maxSessionDurationMs"},
		{"missing output dir", func(c *Config) { c.Output.Directory = "" }, "output.directory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(t.TempDir())
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestSaveToFileRoundTrips(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	cfg.API.Model = "claude-opus"

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, cfg.SaveToFile(path))

	reloaded, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	// SaveToFile wrote to an arbitrary filename, not one of the search
	// paths, so reloaded reflects defaults; verify the file round-trips
	// through YAML instead.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "claude-opus")
	_ = reloaded
}
