// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

package subprocess

import (
	"bytes"
	"encoding/json"
)

// ParsedEvent is one unit of output the stream parser hands to its
// caller. Kind is one of thinking|text|tool_use|tool_result|result|progress.
type ParsedEvent struct {
	Kind       string
	Text       string
	Success    bool
	Message    string
	CostUSD    float64
	DurationMs int64
	TokensUsed int
	Progress   int
}

// StreamParser buffers partial lines across Feed calls and dispatches
// each complete newline-delimited JSON message as one or more
// ParsedEvents. Grounded on internal/temporal/output_parser.go's
// stateful-accumulation style, generalized from path extraction to the
// assistant/result/system/user message vocabulary in spec §4.5/§6.
type StreamParser struct {
	buf             []byte
	toolUseCount    int
	toolResultCount int
	metrics         Metrics
	onEvent         func(ParsedEvent)
}

// NewStreamParser creates a parser that calls onEvent for every
// recognized or unrecognized line.
func NewStreamParser(onEvent func(ParsedEvent)) *StreamParser {
	return &StreamParser{onEvent: onEvent}
}

// Feed appends chunk to the internal buffer and dispatches every
// complete line found in it. A trailing partial line is retained for
// the next Feed call.
func (p *StreamParser) Feed(chunk []byte) {
	p.buf = append(p.buf, chunk...)
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		p.dispatch(line)
	}
}

// Flush dispatches any remaining buffered partial line (the process
// exited without a trailing newline) and clears the buffer.
func (p *StreamParser) Flush() {
	if len(bytes.TrimSpace(p.buf)) > 0 {
		p.dispatch(p.buf)
	}
	p.buf = nil
}

// Metrics returns the parser's accumulated metrics snapshot.
func (p *StreamParser) Metrics() Metrics { return p.metrics }

func (p *StreamParser) dispatch(line []byte) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return
	}

	var msg map[string]any
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		p.emit(ParsedEvent{Kind: "text", Text: string(trimmed)})
		return
	}

	kind, _ := msg["type"].(string)
	switch kind {
	case "assistant":
		p.dispatchAssistant(msg)
	case "result":
		p.dispatchResult(msg)
	case "system", "user":
		// intentionally ignored per §4.5
	default:
		p.emit(ParsedEvent{Kind: "text", Text: string(trimmed)})
	}
}

func (p *StreamParser) dispatchAssistant(msg map[string]any) {
	message, _ := msg["message"].(map[string]any)
	if message == nil {
		return
	}
	content, _ := message["content"].([]any)
	for _, raw := range content {
		block, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		blockType, _ := block["type"].(string)
		switch blockType {
		case "thinking":
			text, _ := block["thinking"].(string)
			p.emit(ParsedEvent{Kind: "thinking", Text: text})
		case "text":
			text, _ := block["text"].(string)
			p.emit(ParsedEvent{Kind: "text", Text: text})
		case "tool_use":
			p.toolUseCount++
			p.metrics.ToolUseCount = p.toolUseCount
			name, _ := block["name"].(string)
			p.emit(ParsedEvent{Kind: "tool_use", Text: name})
			p.emitProgress()
		case "tool_result":
			p.toolResultCount++
			p.metrics.ToolResultCount = p.toolResultCount
			text, _ := block["content"].(string)
			p.emit(ParsedEvent{Kind: "tool_result", Text: text})
			p.emitProgress()
		}
	}
}

func (p *StreamParser) emitProgress() {
	if p.toolUseCount == 0 {
		return
	}
	pct := p.toolResultCount * 100 / p.toolUseCount
	p.emit(ParsedEvent{Kind: "progress", Progress: pct})
}

func (p *StreamParser) dispatchResult(msg map[string]any) {
	success, _ := msg["success"].(bool)
	message, _ := msg["message"].(string)
	costUSD, _ := msg["cost_usd"].(float64)
	durationMs := int64(asFloat(msg["duration_ms"]))

	p.metrics.TotalExecutionTimeMs += durationMs
	tokens := approximateTokens(costUSD)
	p.metrics.TokensUsed += tokens

	p.emit(ParsedEvent{
		Kind:       "result",
		Success:    success,
		Message:    message,
		CostUSD:    costUSD,
		DurationMs: durationMs,
		TokensUsed: tokens,
	})
}

// approximateTokens implements §4.5's cost-to-token estimate:
// round(cost_usd / 0.01 * 1000).
func approximateTokens(costUSD float64) int {
	return int(costUSD/0.01*1000 + 0.5)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func (p *StreamParser) emit(e ParsedEvent) {
	if p.onEvent != nil {
		p.onEvent(e)
	}
}
