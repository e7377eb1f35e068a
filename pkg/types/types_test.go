// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package types

import (
	"testing"
)

func TestTextMessage(t *testing.T) {
	msg := TextMessage(RoleUser, "hello")
	if msg.Role != RoleUser {
		t.Errorf("role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.Content != "hello" {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.Blocks) != 1 || msg.Blocks[0].Type != BlockText || msg.Blocks[0].Text != "hello" {
		t.Errorf("blocks = %+v", msg.Blocks)
	}
}

func TestMessageToolCalls(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Blocks: []ContentBlock{
			{Type: BlockText, Text: "let me check"},
			{Type: BlockToolUse, ID: "tu_1", Name: "run_query", Input: map[string]interface{}{"limit": 5}},
			{Type: BlockToolUse, ID: "tu_2", Name: "read_file"},
		},
	}

	calls := msg.ToolCalls()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].ID != "tu_1" || calls[0].Name != "run_query" {
		t.Errorf("first call = %+v", calls[0])
	}
	if calls[1].ID != "tu_2" {
		t.Errorf("second call = %+v", calls[1])
	}

	if got := TextMessage(RoleUser, "x").ToolCalls(); got != nil {
		t.Errorf("text message has tool calls: %+v", got)
	}
}

func TestTurnUsageAdd(t *testing.T) {
	total := TurnUsage{}
	total.Add(TurnUsage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.0006, StopReason: "tool_use", DurationMs: 50})
	total.Add(TurnUsage{InputTokens: 200, OutputTokens: 30, CacheReadTokens: 80, CostUSD: 0.001, StopReason: "end_turn", DurationMs: 70})

	if total.InputTokens != 300 || total.OutputTokens != 50 {
		t.Errorf("tokens = %d/%d", total.InputTokens, total.OutputTokens)
	}
	if total.CacheReadTokens != 80 {
		t.Errorf("cache read = %d", total.CacheReadTokens)
	}
	if diff := total.CostUSD - 0.0016; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("cost = %v", total.CostUSD)
	}
	if total.StopReason != "end_turn" {
		t.Errorf("stop reason = %q, want last turn's", total.StopReason)
	}
	if total.DurationMs != 120 {
		t.Errorf("duration = %d", total.DurationMs)
	}
}
