// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package llm defines the provider interface for streaming chat models.
// Providers deliver output as a channel of typed events so consumers can
// relay deltas without callback plumbing.
package llm

import (
	"context"
	"encoding/json"

	"github.com/teradata-labs/weft/pkg/types"
)

// ToolSpec is the model-facing description of a tool. InputSchema is a
// JSON Schema document passed through to the provider verbatim.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Request is a single chat completion request.
type Request struct {
	// Model is the provider model identifier.
	Model string

	// System is the system prompt sent out-of-band from messages.
	System string

	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int

	// Messages is the full conversation history, oldest first.
	Messages []types.Message

	// Tools the model may invoke this turn. Nil means no tools.
	Tools []ToolSpec
}

// Usage reports raw token counts from the provider. Cost is derived
// downstream; providers report counts only.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// Response is the assembled result of a completed stream.
type Response struct {
	// Content is the concatenated text output.
	Content string

	// Thinking is the concatenated reasoning trace, if the model
	// emitted thinking blocks.
	Thinking string

	// ToolCalls are requested tool invocations, in emission order.
	ToolCalls []types.ToolCall

	// StopReason is the provider stop reason ("end_turn", "tool_use",
	// "max_tokens", ...).
	StopReason string

	// Usage is the token accounting for this call.
	Usage Usage
}

// EventType discriminates stream events.
type EventType string

const (
	// EventTextDelta carries an incremental chunk of response text.
	EventTextDelta EventType = "text_delta"

	// EventThinkingDelta carries an incremental chunk of reasoning.
	EventThinkingDelta EventType = "thinking_delta"

	// EventDone carries the final assembled Response. Terminal.
	EventDone EventType = "done"

	// EventError carries a transport or API failure. Terminal.
	EventError EventType = "error"
)

// StreamEvent is one element of a provider stream. The channel is
// closed after the terminal event (EventDone or EventError).
type StreamEvent struct {
	Type     EventType
	Text     string    // EventTextDelta
	Thinking string    // EventThinkingDelta
	Response *Response // EventDone
	Err      error     // EventError
}

// Provider is a streaming chat model backend.
type Provider interface {
	// Stream starts a completion and returns a channel of events.
	// The returned error covers request construction only; transport
	// failures arrive as an EventError on the channel. The channel is
	// always closed after its terminal event.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)

	// Name returns the provider name.
	Name() string

	// Model returns the default model identifier.
	Model() string
}

// Complete drains a stream and returns the final response. Used where
// deltas are not interesting, e.g. summarization calls.
func Complete(ctx context.Context, p Provider, req Request) (*Response, error) {
	events, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch ev.Type {
		case EventDone:
			return ev.Response, nil
		case EventError:
			return nil, ev.Err
		}
	}
	return nil, ctx.Err()
}
