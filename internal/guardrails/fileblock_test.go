// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBlocklistBlocksDotEnv(t *testing.T) {
	b := NewFileBlocklist()
	require.True(t, b.IsBlocked(".env"))
	require.True(t, b.IsBlocked(".env.local"))
	require.True(t, b.IsBlocked("config/secrets.yaml"))
	require.True(t, b.IsBlocked("id_rsa"))
}

func TestFileBlocklistAllowsOrdinarySource(t *testing.T) {
	b := NewFileBlocklist()
	require.False(t, b.IsBlocked("internal/decomposer/decomposer.go"))
}

func TestFileBlocklistBlocksInsideGitignoredDir(t *testing.T) {
	b := NewFileBlocklist()
	require.True(t, b.IsBlocked("node_modules/some-pkg/index.js"))
}
