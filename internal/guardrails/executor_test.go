// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeExecutorAllowsAllowlistedCommand(t *testing.T) {
	e := NewSafeExecutor(DefaultExecutorConfig("/tmp"), nil)
	entry, err := e.Execute(context.Background(), "echo hello", "")
	require.NoError(t, err)
	require.False(t, entry.Blocked)
	require.True(t, entry.Success)
}

func TestSafeExecutorBlocksDenylistedCommand(t *testing.T) {
	e := NewSafeExecutor(DefaultExecutorConfig("/tmp"), nil)
	_, err := e.Execute(context.Background(), "sudo rm -rf /", "")
	require.Error(t, err)
}

func TestSafeExecutorBlocksNonAllowlistedCommand(t *testing.T) {
	e := NewSafeExecutor(DefaultExecutorConfig("/tmp"), nil)
	entry, err := e.Execute(context.Background(), "curl-replacement-tool fetch", "")
	require.Error(t, err)
	require.True(t, entry.Blocked)
}

func TestSafeExecutorSandboxRejectsEscapingPath(t *testing.T) {
	e := NewSafeExecutor(DefaultExecutorConfig("/tmp/workdir"), nil)
	_, err := e.Execute(context.Background(), "cat ../../etc/passwd", "")
	require.Error(t, err)
}

func TestSafeExecutorDenylistCannotBeApproved(t *testing.T) {
	approval := NewApprovalStore()
	approval.Approve("req-1")
	cfg := DefaultExecutorConfig("/tmp")
	cfg.ApprovalMode = true
	e := NewSafeExecutor(cfg, approval)

	_, err := e.Execute(context.Background(), "sudo rm -rf /", "req-1")
	require.Error(t, err)
}

func TestSafeExecutorApprovalModeLetsApprovedSandboxViolationThrough(t *testing.T) {
	approval := NewApprovalStore()
	cfg := DefaultExecutorConfig("/tmp/workdir")
	cfg.ApprovalMode = true
	e := NewSafeExecutor(cfg, approval)

	_, err := e.Execute(context.Background(), "ls /", "req-2")
	require.Error(t, err)

	approval.Approve("req-2")
	entry, err := e.Execute(context.Background(), "ls /", "req-2")
	require.NoError(t, err)
	require.True(t, entry.Approved)
}

func TestSafeExecutorGetLogFiltersByBlockedAndFailed(t *testing.T) {
	e := NewSafeExecutor(DefaultExecutorConfig("/tmp"), nil)
	_, _ = e.Execute(context.Background(), "echo hi", "")
	_, _ = e.Execute(context.Background(), "sudo rm -rf /", "")

	blocked := e.GetLog(true, false, 0)
	require.Len(t, blocked, 1)

	all := e.GetLog(false, false, 1)
	require.Len(t, all, 1)
}
