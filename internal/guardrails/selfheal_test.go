// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package guardrails

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassifyErrorBucketsByMessage(t *testing.T) {
	require.Equal(t, ClassSyntax, ClassifyError("ParseError", "unexpected token '}'"))
	require.Equal(t, ClassType, ClassifyError("TypeError", "cannot use x (type int) as string"))
	require.Equal(t, ClassTest, ClassifyError("AssertionFailure", "test failed: expected 2 got 3"))
	require.Equal(t, ClassRuntime, ClassifyError("Panic", "runtime error: index out of range"))
	require.Equal(t, ClassUnknown, ClassifyError("Mystery", "something weird happened"))
}

func TestSelfHealLoopSucceedsOnFirstVerifyingFix(t *testing.T) {
	strategies := BuiltinStrategies(
		func(ctx context.Context, errMessage, content string) (string, error) { return "fixed:" + content, nil },
		nil, nil, nil,
	)
	loop := NewSelfHealLoop(strategies, 3, time.Second, nil)

	res, err := loop.Heal(context.Background(), "ParseError", "unexpected token", "original", func(ctx context.Context, content string) bool {
		return content == "fixed:original"
	})
	require.NoError(t, err)
	require.True(t, res.Healed)
	require.Equal(t, "syntax", res.StrategyID)
}

func TestSelfHealLoopEscalatesOnExhaustion(t *testing.T) {
	escalated := false
	strategies := BuiltinStrategies(
		func(ctx context.Context, errMessage, content string) (string, error) { return "still broken", nil },
		nil, nil, nil,
	)
	loop := NewSelfHealLoop(strategies, 3, time.Second, func(ctx context.Context, class ErrorClass, lastErr error) {
		escalated = true
	})

	res, err := loop.Heal(context.Background(), "ParseError", "unexpected token", "original", func(ctx context.Context, content string) bool {
		return false
	})
	require.NoError(t, err)
	require.False(t, res.Healed)
	require.True(t, escalated)
}

func TestSelfHealLoopRejectsConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	strategies := BuiltinStrategies(
		func(ctx context.Context, errMessage, content string) (string, error) {
			close(started)
			<-release
			return "fixed", nil
		}, nil, nil, nil,
	)
	loop := NewSelfHealLoop(strategies, 1, time.Second, nil)

	go func() {
		_, _ = loop.Heal(context.Background(), "ParseError", "x", "c", func(ctx context.Context, content string) bool { return true })
	}()

	<-started
	_, err := loop.Heal(context.Background(), "ParseError", "x", "c", func(ctx context.Context, content string) bool { return true })
	require.Error(t, err)
	close(release)
}
