// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package types contains shared types used across the weft daemon.
// This package breaks import cycles by providing common types that the
// agent, llm, conversation, and server packages all depend on.
package types

import (
	"time"
)

// Message roles. A conversation is an ordered sequence of these three
// roles; the full sequence is the only context sent to the model.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolResult = "tool_result"
)

// Content block types.
const (
	BlockText       = "text"
	BlockThinking   = "thinking"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the model-assigned identifier for this tool_use block
	ID string `json:"id"`

	// Name is the tool name
	Name string `json:"name"`

	// Input contains the tool parameters as decoded JSON
	Input map[string]interface{} `json:"input"`
}

// ContentBlock is one element of a typed block sequence inside a
// message. Exactly one payload group is populated, selected by Type.
type ContentBlock struct {
	Type string `json:"type"`

	// Text content (BlockText) or reasoning trace (BlockThinking)
	Text string `json:"text,omitempty"`

	// Tool invocation request (BlockToolUse)
	ID    string                 `json:"id,omitempty"`
	Name  string                 `json:"name,omitempty"`
	Input map[string]interface{} `json:"input,omitempty"`

	// Tool result (BlockToolResult)
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Message is a single element of a conversation. Messages are appended,
// never edited.
type Message struct {
	// ID is the unique message identifier (from database)
	ID string `json:"id,omitempty"`

	// Role is the message sender (user, assistant, tool_result)
	Role string `json:"role"`

	// Content is the message text (for text-only messages)
	Content string `json:"content,omitempty"`

	// Blocks contains the typed content block sequence.
	// If present, this takes precedence over Content.
	Blocks []ContentBlock `json:"blocks,omitempty"`

	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TextMessage builds a single-text-block message with the given role.
func TextMessage(role, text string) Message {
	return Message{
		Role:    role,
		Content: text,
		Blocks:  []ContentBlock{{Type: BlockText, Text: text}},
	}
}

// ToolCalls extracts the tool_use blocks of an assistant message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, b := range m.Blocks {
		if b.Type == BlockToolUse {
			calls = append(calls, ToolCall{ID: b.ID, Name: b.Name, Input: b.Input})
		}
	}
	return calls
}

// TurnUsage tracks token usage and derived cost for one model call.
type TurnUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CostUSD             float64 `json:"cost_usd"`
	StopReason          string  `json:"stop_reason,omitempty"`
	DurationMs          int64   `json:"duration_ms"`
}

// Add accumulates another turn's usage into this one. Token counts and
// cost are summed; StopReason keeps the most recent turn's value.
func (u *TurnUsage) Add(other TurnUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CostUSD += other.CostUSD
	u.StopReason = other.StopReason
	u.DurationMs += other.DurationMs
}

// Conversation identifies a persisted conversation scoped to a store.
type Conversation struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	AgentID   string    `json:"agent_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
