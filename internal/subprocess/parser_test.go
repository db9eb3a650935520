// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamParserAssistantBlocks(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"assistant","message":{"content":[{"type":"thinking","thinking":"pondering"},{"type":"text","text":"hello"},{"type":"tool_use","name":"grep"}]}}` + "\n"))

	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	require.Equal(t, []string{"thinking", "text", "tool_use", "progress"}, kinds)
	require.Equal(t, 0, events[len(events)-1].Progress) // 0 of 1 tool_result so far
}

func TestStreamParserToolResultCompletesProgress(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"grep"}]}}` + "\n"))
	p.Feed([]byte(`{"type":"assistant","message":{"content":[{"type":"tool_result","content":"ok"}]}}` + "\n"))

	last := events[len(events)-1]
	require.Equal(t, "progress", last.Kind)
	require.Equal(t, 100, last.Progress)
}

func TestStreamParserResultMessage(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"result","success":true,"message":"done","cost_usd":0.02,"duration_ms":1500}` + "\n"))

	require.Len(t, events, 1)
	e := events[0]
	require.Equal(t, "result", e.Kind)
	require.True(t, e.Success)
	require.Equal(t, "done", e.Message)
	require.Equal(t, int64(1500), e.DurationMs)
	require.Equal(t, 2000, e.TokensUsed) // round(0.02/0.01*1000)
	require.Equal(t, int64(1500), p.Metrics().TotalExecutionTimeMs)
	require.Equal(t, 2000, p.Metrics().TokensUsed)
}

func TestStreamParserIgnoresSystemAndUser(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"system","data":"boot"}` + "\n" + `{"type":"user","data":"hi"}` + "\n"))
	require.Empty(t, events)
}

func TestStreamParserSurfacesInvalidLineAsText(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte("not json at all\n"))
	require.Len(t, events, 1)
	require.Equal(t, "text", events[0].Kind)
	require.Equal(t, "not json at all", events[0].Text)
}

func TestStreamParserBuffersPartialLinesAcrossFeeds(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"result","success":true`))
	require.Empty(t, events)
	p.Feed([]byte(`,"message":"ok"}` + "\n"))
	require.Len(t, events, 1)
	require.Equal(t, "ok", events[0].Message)
}

func TestStreamParserFlushDispatchesTrailingPartial(t *testing.T) {
	var events []ParsedEvent
	p := NewStreamParser(func(e ParsedEvent) { events = append(events, e) })

	p.Feed([]byte(`{"type":"result","success":true,"message":"no newline"}`))
	require.Empty(t, events)
	p.Flush()
	require.Len(t, events, 1)
}
