// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package config implements the Config Manager (spec §6): a layered
// configuration loader (defaults < file < env < runtime) with
// validation. Struct tree and Validate naming are grounded on this
// file's original Config/Load/Validate; the layering itself is
// re-based on spf13/viper, which the original plain yaml.Unmarshal
// loader never attempted.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"open-swarm/pkg/aidoserr"
)

// APIConfig configures the decomposition/assistant API.
type APIConfig struct {
	Provider  string `mapstructure:"provider" yaml:"provider"`
	Model     string `mapstructure:"model" yaml:"model"`
	MaxTokens int    `mapstructure:"maxTokens" yaml:"maxTokens"`
}

// AgentsConfig bounds the Agent Manager.
type AgentsConfig struct {
	MaxConcurrent int `mapstructure:"maxConcurrent" yaml:"maxConcurrent"`
	TimeoutMs     int `mapstructure:"timeoutMs" yaml:"timeoutMs"`
}

// BudgetConfig bounds total session cost.
type BudgetConfig struct {
	MaxTotalTokens       int   `mapstructure:"maxTotalTokens" yaml:"maxTotalTokens"`
	MaxSessionDurationMs int64 `mapstructure:"maxSessionDurationMs" yaml:"maxSessionDurationMs"`
}

// OutputConfig controls where session artifacts are written.
type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

// UIConfig controls the CLI's presentation.
type UIConfig struct {
	Theme    string `mapstructure:"theme" yaml:"theme"`
	LogLines int    `mapstructure:"logLines" yaml:"logLines"`
}

// ExecutionConfig selects and configures the Orchestrator's execution
// backend (spec §4.6.1). Backend "inprocess" (the default) drives
// execution directly from the Dependency Graph's parallel groups;
// "temporal" instead hands each group to internal/temporalengine's
// DAGWorkflow over TaskQueue/Namespace/HostPort.
type ExecutionConfig struct {
	Backend   string `mapstructure:"backend" yaml:"backend"`
	TaskQueue string `mapstructure:"taskQueue" yaml:"taskQueue"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
	HostPort  string `mapstructure:"hostPort" yaml:"hostPort"`
}

// Config is the complete AIDOS configuration tree, keyed exactly as
// §6's recognized keys: api, agents, budget, output, ui, execution.
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Agents    AgentsConfig    `mapstructure:"agents" yaml:"agents"`
	Budget    BudgetConfig    `mapstructure:"budget" yaml:"budget"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
	UI        UIConfig        `mapstructure:"ui" yaml:"ui"`
	Execution ExecutionConfig `mapstructure:"execution" yaml:"execution"`
}

// searchPaths lists the config file names checked in the working
// directory, in order, per §6.
var searchPaths = []string{"aidos.config.yaml", "aidos.config.yml", ".aidos.yaml"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.provider", "anthropic")
	v.SetDefault("api.model", "claude-sonnet")
	v.SetDefault("api.maxTokens", 8192)
	v.SetDefault("agents.maxConcurrent", 4)
	v.SetDefault("agents.timeoutMs", 600000)
	v.SetDefault("budget.maxTotalTokens", 1000000)
	v.SetDefault("budget.maxSessionDurationMs", int64(3600000))
	v.SetDefault("output.directory", "./aidos-output")
	v.SetDefault("ui.theme", "dark")
	v.SetDefault("ui.logLines", 200)
	v.SetDefault("execution.backend", "inprocess")
	v.SetDefault("execution.taskQueue", "aidos-tasks")
	v.SetDefault("execution.namespace", "default")
	v.SetDefault("execution.hostPort", "localhost:7233")
}

// Load builds a Config from defaults, then the first matching file in
// searchPaths under dir, then an AIDOS_-prefixed environment overlay.
// A missing config file is not an error; a file that exists but fails
// to parse is.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AIDOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, name := range searchPaths {
		v.SetConfigFile(dir + "/" + name)
		if err := v.ReadInConfig(); err == nil {
			break
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &aidoserr.ConfigError{Field: "(root)", Message: "failed to unmarshal config: " + err.Error()}
	}

	return &cfg, nil
}

// ApplyOverrides is the runtime layer (highest precedence), called by
// the orchestrator's constructor options — never by a file or env
// value, per §6.
func (c *Config) ApplyOverrides(overrides map[string]any) {
	for key, value := range overrides {
		applyOverride(c, key, value)
	}
}

func applyOverride(c *Config, key string, value any) {
	switch key {
	case "api.provider":
		c.API.Provider = toString(value)
	case "api.model":
		c.API.Model = toString(value)
	case "api.maxTokens":
		c.API.MaxTokens = toInt(value)
	case "agents.maxConcurrent":
		c.Agents.MaxConcurrent = toInt(value)
	case "agents.timeoutMs":
		c.Agents.TimeoutMs = toInt(value)
	case "budget.maxTotalTokens":
		c.Budget.MaxTotalTokens = toInt(value)
	case "budget.maxSessionDurationMs":
		c.Budget.MaxSessionDurationMs = int64(toInt(value))
	case "output.directory":
		c.Output.Directory = toString(value)
	case "ui.theme":
		c.UI.Theme = toString(value)
	case "ui.logLines":
		c.UI.LogLines = toInt(value)
	case "execution.backend":
		c.Execution.Backend = toString(value)
	case "execution.taskQueue":
		c.Execution.TaskQueue = toString(value)
	case "execution.namespace":
		c.Execution.Namespace = toString(value)
	case "execution.hostPort":
		c.Execution.HostPort = toString(value)
	}
}

func toString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}

// SaveToFile writes c to path as YAML, the format every search path in
// §6 uses. Round-trips with Load (modulo env/runtime overlays, which
// SaveToFile never persists).
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return &aidoserr.ConfigError{Field: "(root)", Message: "failed to marshal config: " + err.Error()}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &aidoserr.ConfigError{Field: "(root)", Message: "failed to write config file: " + err.Error()}
	}
	return nil
}

// Validate checks the fields the rest of the system relies on being
// non-zero.
func (c *Config) Validate() error {
	if c.API.Provider == "" {
		return &aidoserr.ConfigError{Field: "api.provider", Message: "must not be empty"}
	}
	if c.API.Model == "" {
		return &aidoserr.ConfigError{Field: "api.model", Message: "must not be empty"}
	}
	if c.Agents.MaxConcurrent <= 0 {
		return &aidoserr.ConfigError{Field: "agents.maxConcurrent", Message: "must be positive"}
	}
	if c.Budget.MaxTotalTokens <= 0 {
		return &aidoserr.ConfigError{Field: "budget.maxTotalTokens", Message: "must be positive"}
	}
	if c.Budget.MaxSessionDurationMs <= 0 {
		return &aidoserr.ConfigError{Field: "budget.maxSessionDurationMs", Message: "must be positive"}
	}
	if c.Output.Directory == "" {
		return &aidoserr.ConfigError{Field: "output.directory", Message: "must not be empty"}
	}
	if c.Execution.Backend != "inprocess" && c.Execution.Backend != "temporal" {
		return &aidoserr.ConfigError{Field: "execution.backend", Message: "must be \"inprocess\" or \"temporal\""}
	}
	return nil
}
