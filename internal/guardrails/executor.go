// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/bitfield/script"

	"open-swarm/pkg/aidoserr"
	"open-swarm/pkg/pubsub"
	"open-swarm/pkg/types"
)

// defaultAllowlist is the fixed set of command prefixes the Safe
// Executor permits, matched longest-prefix-first.
var defaultAllowlist = []string{
	"git status", "git diff", "git log", "git add", "git commit", "git branch",
	"go build", "go test", "go vet", "go run", "go fmt", "go mod",
	"npm install", "npm test", "npm run", "npm ci",
	"ls", "cat", "grep", "find", "echo", "mkdir", "cp", "mv",
}

// defaultDenylist matches commands that are never permitted, whatever
// the allowlist/sandbox outcome — per §4.7, never approvable.
var defaultDenylist = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+-rf\s+(/|~|\$HOME)\b`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`chmod\s+777\b`),
	regexp.MustCompile(`\b(curl|wget)\s+https?://`),
	regexp.MustCompile(`cat\s+.*\.env\b`),
	regexp.MustCompile(`git\s+push\s+.*--force\b`),
	regexp.MustCompile(`npm\s+publish\b`),
	regexp.MustCompile(`\beval\b`),
	regexp.MustCompile(`kill\s+-9\b`),
}

var systemBinPaths = []string{"/usr/bin", "/bin", "/usr/local/bin", "/usr/sbin", "/sbin"}

// ExecutorConfig configures a SafeExecutor.
type ExecutorConfig struct {
	Allowlist    []string
	Denylist     []*regexp.Regexp
	SandboxMode  bool
	WorkingDir   string
	ApprovalMode bool
}

// DefaultExecutorConfig returns the fixed allowlist/denylist named in
// §4.7, sandboxed to wd with approval mode off.
func DefaultExecutorConfig(wd string) ExecutorConfig {
	return ExecutorConfig{
		Allowlist:   append([]string{}, defaultAllowlist...),
		Denylist:    append([]*regexp.Regexp{}, defaultDenylist...),
		SandboxMode: true,
		WorkingDir:  wd,
	}
}

// LogEntry is one recorded SafeExecutor decision.
type LogEntry struct {
	Command    string
	Blocked    bool
	Approved   bool
	Reason     string
	Success    bool
	Output     string
	ExitCode   int
	ApprovalID string
	Timestamp  time.Time
}

// SafeExecutor runs shell commands through allowlist, denylist, and
// sandbox gates before invoking bitfield/script, matching
// internal/temporal/activities_shell.go's ShellActivities.RunScript use
// of the same library for capturing combined stdout/stderr with an
// exit code.
type SafeExecutor struct {
	cfg      ExecutorConfig
	approval *ApprovalStore
	mu       sync.Mutex
	log      []LogEntry
	events   *pubsub.Bus[types.CommandEvent]
}

// NewSafeExecutor creates an executor bound to cfg and approval.
func NewSafeExecutor(cfg ExecutorConfig, approval *ApprovalStore) *SafeExecutor {
	if approval == nil {
		approval = NewApprovalStore()
	}
	return &SafeExecutor{cfg: cfg, approval: approval, events: pubsub.New[types.CommandEvent]()}
}

// Events returns the blocked/executed/approved bus.
func (e *SafeExecutor) Events() *pubsub.Bus[types.CommandEvent] { return e.events }

// Execute runs command through the three gates (allowlist, denylist,
// sandbox). approvalID, when non-empty and cfg.ApprovalMode is set,
// lets a prior-approved allowlist/sandbox rejection through; denylist
// rejections can never be approved.
func (e *SafeExecutor) Execute(ctx context.Context, command, approvalID string) (LogEntry, error) {
	if e.matchesDenylist(command) {
		entry := e.record(LogEntry{Command: command, Blocked: true, Reason: "denylist match", ApprovalID: approvalID, Timestamp: time.Now()})
		e.events.Publish(types.CommandEvent{Kind: "blocked", Command: command, Reason: entry.Reason})
		return entry, &aidoserr.SafetyVetoError{Subject: command, Reason: entry.Reason}
	}

	violation := e.allowlistViolation(command)
	if violation == "" && e.cfg.SandboxMode {
		violation = e.sandboxViolation(command)
	}

	if violation != "" {
		if e.cfg.ApprovalMode && approvalID != "" && e.approval.IsApproved(approvalID) {
			entry := e.record(LogEntry{Command: command, Approved: true, Reason: violation, ApprovalID: approvalID, Timestamp: time.Now()})
			e.events.Publish(types.CommandEvent{Kind: "approved", Command: command, Reason: violation})
			return e.run(ctx, command, entry)
		}
		if e.cfg.ApprovalMode {
			e.approval.RequestApproval(approvalID, violation)
		}
		entry := e.record(LogEntry{Command: command, Blocked: true, Reason: violation, ApprovalID: approvalID, Timestamp: time.Now()})
		e.events.Publish(types.CommandEvent{Kind: "blocked", Command: command, Reason: violation})
		return entry, &aidoserr.SafetyVetoError{Subject: command, Reason: violation}
	}

	return e.run(ctx, command, LogEntry{Command: command, Timestamp: time.Now()})
}

func (e *SafeExecutor) run(ctx context.Context, command string, entry LogEntry) (LogEntry, error) {
	output, err := script.Exec(command).String()
	entry.Output = output
	entry.Success = err == nil
	if err != nil {
		entry.ExitCode = 1
	}
	entry = e.record(entry)
	e.events.Publish(types.CommandEvent{Kind: "executed", Command: command})
	if err != nil {
		return entry, &aidoserr.AgentExecutionError{AgentID: "safe-executor", Cause: err}
	}
	return entry, nil
}

func (e *SafeExecutor) record(entry LogEntry) LogEntry {
	e.mu.Lock()
	e.log = append(e.log, entry)
	e.mu.Unlock()
	return entry
}

func (e *SafeExecutor) matchesDenylist(command string) bool {
	for _, re := range e.cfg.Denylist {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}

// allowlistViolation returns a non-empty reason if command matches no
// allowlist prefix (longest-prefix match, so "git commit -m x" matches
// the "git commit" entry).
func (e *SafeExecutor) allowlistViolation(command string) string {
	trimmed := strings.TrimSpace(command)
	best := -1
	for _, prefix := range e.cfg.Allowlist {
		if strings.HasPrefix(trimmed, prefix) && len(prefix) > best {
			best = len(prefix)
		}
	}
	if best < 0 {
		return "command does not match the allowlist"
	}
	return ""
}

// sandboxViolation inspects every whitespace-separated argument that
// looks like a path: an absolute path must sit inside WorkingDir or a
// system binary directory; a relative path with ".." must not resolve
// outside WorkingDir.
func (e *SafeExecutor) sandboxViolation(command string) string {
	for _, arg := range strings.Fields(command) {
		if !strings.Contains(arg, "/") {
			continue
		}
		if filepath.IsAbs(arg) {
			if isUnderAny(arg, systemBinPaths) || isUnder(arg, e.cfg.WorkingDir) {
				continue
			}
			return "absolute path outside working directory: " + arg
		}
		if strings.Contains(arg, "..") {
			resolved := filepath.Join(e.cfg.WorkingDir, arg)
			if !isUnder(resolved, e.cfg.WorkingDir) {
				return "relative path escapes working directory: " + arg
			}
		}
	}
	return ""
}

func isUnder(path, dir string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func isUnderAny(path string, dirs []string) bool {
	for _, d := range dirs {
		if isUnder(path, d) {
			return true
		}
	}
	return false
}

// GetLog returns recorded entries filtered per the flags, most recent
// first, capped at limit (0 means unlimited).
func (e *SafeExecutor) GetLog(onlyBlocked, onlyFailed bool, limit int) []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []LogEntry
	for i := len(e.log) - 1; i >= 0; i-- {
		entry := e.log[i]
		if onlyBlocked && !entry.Blocked {
			continue
		}
		if onlyFailed && entry.Success {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
