// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package aidoserr defines the error taxonomy shared across AIDOS core
// components: configuration, validation, resource-limit, budget, agent
// execution, safety-veto, and invalid-state errors. Each kind is a
// distinct type rather than a sentinel, so callers type-switch or use
// errors.As instead of comparing against exported error values.
package aidoserr

import "fmt"

// AIDOSError is implemented by every error kind in this package.
type AIDOSError interface {
	error
	Code() string
	Recoverable() bool
}

// ConfigError reports a missing, malformed, or invalid configuration.
// Fatal at load time.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Code() string      { return "configuration_error" }
func (e *ConfigError) Recoverable() bool { return false }

// ValidationError reports an invalid task decomposition (dangling
// dependency or cycle). Recovered locally by the decomposer when
// possible; otherwise fatal for the session.
type ValidationError struct {
	TaskID  string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.TaskID, e.Message)
}

func (e *ValidationError) Code() string      { return "validation_error" }
func (e *ValidationError) Recoverable() bool { return true }

// ResourceLimitError reports that an agent spawn was denied because
// maxConcurrent was reached. Recoverable: the orchestrator retries once
// a slot frees, up to maxRetries.
type ResourceLimitError struct {
	Limit int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("resource limit reached: maxConcurrent=%d", e.Limit)
}

func (e *ResourceLimitError) Code() string      { return "resource_limit_error" }
func (e *ResourceLimitError) Recoverable() bool { return true }

// BudgetError reports that the token or wall-time cap was exceeded.
// Non-retryable; terminates the session with failed.
type BudgetError struct {
	Reason         string
	TokensUsed     int
	MaxTokens      int
	ElapsedMs      int64
	MaxDurationMs  int64
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("budget exceeded: %s (tokens=%d/%d elapsedMs=%d/%d)",
		e.Reason, e.TokensUsed, e.MaxTokens, e.ElapsedMs, e.MaxDurationMs)
}

func (e *BudgetError) Code() string      { return "budget_error" }
func (e *BudgetError) Recoverable() bool { return false }

// AgentExecutionError reports a subprocess nonzero exit, timeout, or
// parse-level failure. Per-task failure; escalated to the session only
// if a critical-path task fails.
type AgentExecutionError struct {
	AgentID string
	TaskID  string
	Cause   error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %s execution failed for task %s: %v", e.AgentID, e.TaskID, e.Cause)
}

func (e *AgentExecutionError) Unwrap() error  { return e.Cause }
func (e *AgentExecutionError) Code() string   { return "agent_execution_error" }
func (e *AgentExecutionError) Recoverable() bool { return true }

// SafetyVetoError reports a command or file blocked by guardrails.
// Non-retryable at that call site; the self-healing loop may generate
// an alternative.
type SafetyVetoError struct {
	Subject string
	Reason  string
}

func (e *SafetyVetoError) Error() string {
	return fmt.Sprintf("safety veto: %s: %s", e.Subject, e.Reason)
}

func (e *SafetyVetoError) Code() string      { return "safety_veto" }
func (e *SafetyVetoError) Recoverable() bool { return false }

// InvalidStateError reports a programmer error such as resume without
// paused, or a double start. Surfaces synchronously.
type InvalidStateError struct {
	Operation string
	State     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state for %s: currently %s", e.Operation, e.State)
}

func (e *InvalidStateError) Code() string      { return "invalid_state_error" }
func (e *InvalidStateError) Recoverable() bool { return false }

var (
	_ AIDOSError = (*ConfigError)(nil)
	_ AIDOSError = (*ValidationError)(nil)
	_ AIDOSError = (*ResourceLimitError)(nil)
	_ AIDOSError = (*BudgetError)(nil)
	_ AIDOSError = (*AgentExecutionError)(nil)
	_ AIDOSError = (*SafetyVetoError)(nil)
	_ AIDOSError = (*InvalidStateError)(nil)
)
